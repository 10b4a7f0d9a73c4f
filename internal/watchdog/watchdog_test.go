package watchdog

import (
	"testing"

	"github.com/hongjun500/simlink/internal/sim"
)

func TestStationaryFiresExactlyOnce(t *testing.T) {
	w := New(10, 1)
	const dt = 0.05
	fired := 0
	firedAt := -1
	// 30 秒内保持静止
	for i := 0; i < 600; i++ {
		if w.Sample(sim.Vec3{X: 5}, dt) {
			fired++
			firedAt = i
		}
	}
	if fired != 1 {
		t.Fatalf("expected exactly one stall event, got %d", fired)
	}
	// 第一个样本只记录参考位置，之后 200 个样本累计到 10 秒
	if firedAt < 199 || firedAt > 201 {
		t.Fatalf("fired at sample %d, want ~200", firedAt)
	}
}

func TestMovementResetsIdle(t *testing.T) {
	w := New(1, 1)
	x := 0.0
	for i := 0; i < 1000; i++ {
		x += 0.5 // 每两个样本移动超过 epsilon
		if w.Sample(sim.Vec3{X: x}, 0.05) {
			t.Fatalf("moving vehicle should never stall (sample %d)", i)
		}
	}
}

func TestCreepBelowEpsilonAccumulates(t *testing.T) {
	w := New(1, 1)
	x := 0.0
	fired := false
	for i := 0; i < 100 && !fired; i++ {
		x += 0.001
		fired = w.Sample(sim.Vec3{X: x}, 0.05)
	}
	if !fired {
		t.Fatalf("creeping below epsilon should still stall")
	}
}

func TestDisabledTimeout(t *testing.T) {
	w := New(0, 1)
	for i := 0; i < 1000; i++ {
		if w.Sample(sim.Vec3{}, 1) {
			t.Fatalf("timeout 0 should disable the watchdog")
		}
	}
}

func TestReset(t *testing.T) {
	w := New(1, 1)
	for i := 0; i < 30; i++ {
		w.Sample(sim.Vec3{}, 0.05)
	}
	if !w.Fired() {
		t.Fatalf("expected fired")
	}
	w.Reset()
	if w.Fired() || w.Idle() != 0 {
		t.Fatalf("reset should clear state")
	}
}
