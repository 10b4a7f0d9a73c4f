package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/hongjun500/simlink/internal/mainthread"
	"github.com/hongjun500/simlink/internal/protocol"
)

type countingAgent struct {
	calls int
	dts   []float64
	onRun func(w *World)
}

func (a *countingAgent) Update(w *World, dt float64) {
	a.calls++
	a.dts = append(a.dts, dt)
	if a.onRun != nil {
		a.onRun(w)
	}
}

func newTestWorld(opt Options) *World {
	if opt.TickRate == 0 {
		opt.TickRate = 50
	}
	return NewWorld(opt)
}

func TestWorldDrainsTasksBeforeStep(t *testing.T) {
	w := newTestWorld(Options{})
	v := NewHeadlessVehicle("car-1", 0, PathNode{Rot: Identity})
	w.AddVehicle(v)

	// 同一 tick 内先执行任务，再推进物理，油门在本 tick 即生效
	if err := w.Submit(func(w *World) {
		w.Vehicle("car-1").Car.RequestThrottle(1)
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	w.Tick()
	if v.Car.Velocity().Len() == 0 {
		t.Fatalf("expected the car to move in the same tick the task ran")
	}
	if got, want := w.Time(), 0.02; math.Abs(got-want) > 1e-9 {
		t.Fatalf("sim time = %v, want %v", got, want)
	}
}

func TestWorldTaskOrderIsFIFO(t *testing.T) {
	w := newTestWorld(Options{})
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_ = w.Submit(func(*World) { order = append(order, i) })
	}
	w.Tick()
	for i, v := range order {
		if v != i {
			t.Fatalf("unexpected order %v", order)
		}
	}
}

func TestWorldTaskForRemovedVehicleIsNoop(t *testing.T) {
	w := newTestWorld(Options{})
	w.AddVehicle(NewHeadlessVehicle("gone", 0, PathNode{Rot: Identity}))
	ran := false
	_ = w.Submit(func(w *World) {
		ran = true
		if v := w.Vehicle("gone"); v != nil {
			t.Errorf("vehicle should be resolved as absent")
		}
	})
	w.RemoveVehicle("gone")
	w.Tick()
	if !ran {
		t.Fatalf("task should still run after its vehicle is removed")
	}
}

func TestWorldQueueOverflow(t *testing.T) {
	w := newTestWorld(Options{QueueCapacity: 2, Overflow: mainthread.RejectNew})
	_ = w.Submit(func(*World) {})
	_ = w.Submit(func(*World) {})
	if err := w.Submit(func(*World) {}); !errors.Is(err, mainthread.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestWorldPanickingTaskDoesNotStopTick(t *testing.T) {
	w := newTestWorld(Options{})
	ran := false
	_ = w.Submit(func(*World) { panic("boom") })
	_ = w.Submit(func(*World) { ran = true })
	w.Tick()
	if !ran {
		t.Fatalf("task after a panicking task should run")
	}
}

func TestWorldSynchronousStepping(t *testing.T) {
	w := newTestWorld(Options{})
	agent := &countingAgent{}
	w.AddAgent("a", agent)

	if err := w.RequestSteps(1); !errors.Is(err, ErrNotSynchronous) {
		t.Fatalf("expected ErrNotSynchronous in async mode, got %v", err)
	}

	w.SetStepMode(StepMode{Synchronous: true, TickDuration: 0.1})
	w.Tick()
	if agent.calls != 0 || w.Time() != 0 {
		t.Fatalf("synchronous world must not advance without a request")
	}

	if err := w.RequestSteps(3); err != nil {
		t.Fatalf("request steps: %v", err)
	}
	w.Tick()
	if agent.calls != 3 {
		t.Fatalf("expected 3 steps, got %d", agent.calls)
	}
	for _, dt := range agent.dts {
		if dt != 0.1 {
			t.Fatalf("expected dt 0.1, got %v", dt)
		}
	}
	if math.Abs(w.Time()-0.3) > 1e-9 {
		t.Fatalf("sim time = %v, want 0.3", w.Time())
	}
	if w.PendingSteps() != 0 {
		t.Fatalf("pending steps should be consumed")
	}
}

func TestWorldSwitchBackToAsyncDropsPendingSteps(t *testing.T) {
	w := newTestWorld(Options{StepMode: StepMode{Synchronous: true, TickDuration: 0.1}})
	_ = w.RequestSteps(5)
	w.SetStepMode(StepMode{Synchronous: false})
	if w.PendingSteps() != 0 {
		t.Fatalf("pending steps should be cleared")
	}
	if got := w.StepMode().TickDuration; got != 0.02 {
		t.Fatalf("tick duration should fall back to the fixed step, got %v", got)
	}
}

func TestWorldAgentMayRemoveOtherAgent(t *testing.T) {
	w := newTestWorld(Options{})
	b := &countingAgent{}
	a := &countingAgent{onRun: func(w *World) { w.RemoveAgent("b") }}
	w.AddAgent("a", a)
	w.AddAgent("b", b)
	w.Tick()
	if a.calls != 1 || b.calls != 0 {
		t.Fatalf("a=%d b=%d", a.calls, b.calls)
	}
}

func TestWorldHooksRunBeforeTasks(t *testing.T) {
	w := newTestWorld(Options{})
	var seq []string
	w.OnTick(func(*World) { seq = append(seq, "hook") })
	_ = w.Submit(func(*World) { seq = append(seq, "task") })
	w.Tick()
	if len(seq) != 2 || seq[0] != "hook" || seq[1] != "task" {
		t.Fatalf("unexpected sequence %v", seq)
	}
}

func TestWorldExecIsExclusiveWithTick(t *testing.T) {
	w := newTestWorld(Options{})
	w.AddVehicle(NewHeadlessVehicle("car-1", 0, PathNode{Rot: Identity}))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			w.Exec(func(w *World) { w.Vehicle("car-1").Car.RequestThrottle(0.5) })
		}
	}()
	for i := 0; i < 100; i++ {
		w.Tick()
	}
	<-done
	if w.Vehicle("car-1").Car.Throttle() != 0.5 {
		t.Fatalf("throttle not applied")
	}
}

func TestWorldPanickingAgentDoesNotStopTick(t *testing.T) {
	w := newTestWorld(Options{})
	b := &countingAgent{}
	w.AddAgent("a", &countingAgent{onRun: func(*World) { panic("boom") }})
	w.AddAgent("b", b)
	w.Tick()
	w.Tick()
	if b.calls != 2 {
		t.Fatalf("agent after a panicking agent should still update, calls=%d", b.calls)
	}
	if w.Ticks() != 2 {
		t.Fatalf("ticks = %d", w.Ticks())
	}
}

func TestWorldExecRecoversPanic(t *testing.T) {
	w := newTestWorld(Options{})
	w.Exec(func(*World) { panic("boom") })
	// 锁已释放，tick 可以继续
	w.Tick()
	ran := false
	w.Exec(func(*World) { ran = true })
	if !ran {
		t.Fatalf("Exec should keep working after a panic")
	}
}

func TestRangeLidarCapsPointCount(t *testing.T) {
	l := NewRangeLidar()
	l.SetConfig(protocol.LidarConfig{DegPerSweepInc: 1e-15, NumSweepsLevels: 1 << 20, MaxRange: 10})
	pts := l.Scan(Vec3{}, Identity)
	if limit := int(360/protocol.MinDegPerSweepInc) * protocol.MaxNumSweepsLevels; len(pts) > limit {
		t.Fatalf("scan returned %d points, cap is %d", len(pts), limit)
	}
}

func TestStubCameraClampsImageSize(t *testing.T) {
	c := NewStubCamera(true)
	c.SetConfig(protocol.CamConfig{ImgW: 1 << 20, ImgH: 8, ImgD: 1, ImgEnc: "PNG"})
	if got := c.Config().ImgW; got != protocol.MaxImgSide {
		t.Fatalf("img_w = %d, want %d", got, protocol.MaxImgSide)
	}
}
