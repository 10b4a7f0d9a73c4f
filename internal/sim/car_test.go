package sim

import (
	"math"
	"testing"
)

func TestKinematicCarDrivesForward(t *testing.T) {
	car := NewKinematicCar(PathNode{Rot: Identity})
	car.RequestThrottle(1)
	for i := 0; i < 50; i++ {
		car.Step(0.02)
	}
	pos, _ := car.Transform()
	if pos.Z <= 0 || math.Abs(pos.X) > 1e-9 {
		t.Fatalf("expected straight motion along +z, got %+v", pos)
	}
	if car.Distance() <= 0 {
		t.Fatalf("distance should accumulate")
	}

	car.RequestThrottle(0)
	car.RequestFootBrake(1)
	for i := 0; i < 500; i++ {
		car.Step(0.02)
	}
	if car.Velocity().Len() != 0 {
		t.Fatalf("brake should stop the car, speed %v", car.Velocity().Len())
	}
}

func TestKinematicCarSteeringTurns(t *testing.T) {
	car := NewKinematicCar(PathNode{Rot: Identity})
	car.RequestThrottle(1)
	car.RequestSteering(16)
	for i := 0; i < 20; i++ {
		car.Step(0.02)
	}
	if car.Gyro().Y <= 0 {
		t.Fatalf("positive steering should give a positive yaw rate")
	}
}

func TestKinematicCarRestore(t *testing.T) {
	spawn := PathNode{Pos: Vec3{X: 3, Z: 4}, Rot: YawQuat(math.Pi / 2)}
	car := NewKinematicCar(spawn)
	car.RequestThrottle(1)
	car.Step(0.1)
	car.RestorePosRot()
	pos, rot := car.Transform()
	if pos != spawn.Pos || math.Abs(rot.Yaw()-math.Pi/2) > 1e-9 {
		t.Fatalf("restore mismatch: %+v %+v", pos, rot)
	}
	if car.Velocity().Len() != 0 {
		t.Fatalf("restore should zero the velocity")
	}
}

func TestQuatEulerDegrees(t *testing.T) {
	_, yaw, _ := YawQuat(-math.Pi / 2).Euler()
	if math.Abs(yaw-270) > 1e-9 {
		t.Fatalf("yaw = %v, want 270", yaw)
	}
}

func TestPool(t *testing.T) {
	p := NewPool(2)
	a, _ := p.Acquire()
	b, _ := p.Acquire()
	if a != 0 || b != 1 {
		t.Fatalf("unexpected slots %d %d", a, b)
	}
	if _, err := p.Acquire(); err != ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	p.Release(0)
	p.Release(0)
	if c, err := p.Acquire(); err != nil || c != 0 {
		t.Fatalf("released slot should be reused, got %d %v", c, err)
	}
	if p.InUse() != 2 {
		t.Fatalf("in use = %d", p.InUse())
	}
}

func TestStubCameraEncodesConfiguredSize(t *testing.T) {
	cam := NewStubCamera(false)
	if len(cam.ImageBytes()) == 0 {
		t.Fatalf("default frame should not be empty")
	}
	jpg := cam.ImageBytes()
	if jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Fatalf("expected a JPEG header")
	}
}
