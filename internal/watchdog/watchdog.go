// Package watchdog 检测长时间没有移动的车辆
package watchdog

import "github.com/hongjun500/simlink/internal/sim"

// DefaultEpsilon 判定为移动的最小位移，世界单位
const DefaultEpsilon = 1.0

// Watchdog 相对参考位置的位移小于 epsilon 时累加空闲时间，
// 否则清零并以当前位置为新的参考。空闲时间达到 timeout 时触发一次。
type Watchdog struct {
	timeout float64
	epsilon float64

	ref    sim.Vec3
	hasRef bool
	idle   float64
	fired  bool
}

// New timeout<=0 时不会触发
func New(timeout, epsilon float64) *Watchdog {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Watchdog{timeout: timeout, epsilon: epsilon}
}

// Sample 每个 tick 调用一次，仅在首次超时时返回 true
func (w *Watchdog) Sample(pos sim.Vec3, dt float64) bool {
	if !w.hasRef {
		w.ref, w.hasRef = pos, true
		return false
	}
	if pos.Dist(w.ref) < w.epsilon {
		w.idle += dt
	} else {
		w.idle = 0
		w.ref = pos
	}
	if w.fired || w.timeout <= 0 || w.idle < w.timeout {
		return false
	}
	w.fired = true
	return true
}

// Idle 累计的空闲时间，秒
func (w *Watchdog) Idle() float64 { return w.idle }

// Fired 是否已经触发
func (w *Watchdog) Fired() bool { return w.fired }

// Reset 回到初始状态，下一次 Sample 重新记录参考位置
func (w *Watchdog) Reset() {
	*w = Watchdog{timeout: w.timeout, epsilon: w.epsilon}
}
