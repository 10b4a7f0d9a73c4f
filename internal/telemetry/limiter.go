package telemetry

// Limiter 按仿真时间限制发送频率。超出频率的 tick 直接跳过，不会积压。
type Limiter struct {
	interval float64
	acc      float64
}

// NewLimiter fps<=0 时每个 tick 都放行
func NewLimiter(fps float64) *Limiter {
	if fps <= 0 {
		return &Limiter{}
	}
	return &Limiter{interval: 1 / fps}
}

// Allow 累加 dt，达到一个间隔时放行并扣除一个间隔
func (l *Limiter) Allow(dt float64) bool {
	if l.interval == 0 {
		return true
	}
	l.acc += dt
	if l.acc < l.interval {
		return false
	}
	l.acc -= l.interval
	// 一个大步长最多放行一次，余量不跨越下一个间隔
	if l.acc >= l.interval {
		l.acc = 0
	}
	return true
}
