package sim

import "math"

// KinematicCar 自行车模型的无界面车辆，供没有物理引擎时使用
type KinematicCar struct {
	WheelBase   float64 // 世界单位
	EngineAccel float64
	BrakeDecel  float64
	Drag        float64

	pos   Vec3
	yaw   float64
	speed float64
	vel   Vec3
	accel Vec3
	gyro  Vec3

	steerDeg float64
	throttle float64
	brake    float64

	spawnPos Vec3
	spawnRot Quat

	distance      float64
	lastCollision string
}

// NewKinematicCar 在出生点创建车辆
func NewKinematicCar(spawn PathNode) *KinematicCar {
	c := &KinematicCar{
		WheelBase:   2.5 * WorldScale / 4,
		EngineAccel: 5 * WorldScale,
		BrakeDecel:  10 * WorldScale,
		Drag:        0.4,
	}
	c.SetSpawn(spawn)
	c.RestorePosRot()
	return c
}

func (c *KinematicCar) RequestSteering(degrees float64) { c.steerDeg = degrees }
func (c *KinematicCar) RequestThrottle(v float64)       { c.throttle = v }
func (c *KinematicCar) RequestFootBrake(v float64)      { c.brake = v }
func (c *KinematicCar) Steering() float64               { return c.steerDeg }
func (c *KinematicCar) Throttle() float64               { return c.throttle }
func (c *KinematicCar) Brake() float64                  { return c.brake }
func (c *KinematicCar) Velocity() Vec3                  { return c.vel }
func (c *KinematicCar) Accel() Vec3                     { return c.accel }
func (c *KinematicCar) Gyro() Vec3                      { return c.gyro }
func (c *KinematicCar) Transform() (Vec3, Quat)         { return c.pos, YawQuat(c.yaw) }
func (c *KinematicCar) LastCollision() string           { return c.lastCollision }
func (c *KinematicCar) ClearLastCollision()             { c.lastCollision = "" }

// Distance 累计行驶距离，世界单位
func (c *KinematicCar) Distance() float64 { return c.distance }

// Collide 记录一次与 name 的碰撞
func (c *KinematicCar) Collide(name string) { c.lastCollision = name }

// SetSpawn 更新 RestorePosRot 使用的位姿
func (c *KinematicCar) SetSpawn(spawn PathNode) {
	c.spawnPos = spawn.Pos
	c.spawnRot = spawn.Rot
}

func (c *KinematicCar) RestorePosRot() {
	c.SetPose(c.spawnPos, c.spawnRot)
}

func (c *KinematicCar) SetPose(pos Vec3, rot Quat) {
	c.pos = pos
	c.yaw = rot.Yaw()
	c.speed = 0
	c.vel = Vec3{}
	c.accel = Vec3{}
	c.gyro = Vec3{}
}

func (c *KinematicCar) Step(dt float64) {
	if dt <= 0 {
		return
	}
	prev := c.vel

	a := c.throttle*c.EngineAccel - c.Drag*c.speed
	stop := Clamp(c.brake, 0, 1) * c.BrakeDecel * dt
	c.speed += a * dt
	switch {
	case c.speed > stop:
		c.speed -= stop
	case c.speed < -stop:
		c.speed += stop
	default:
		c.speed = 0
	}

	yawRate := c.speed / c.WheelBase * math.Tan(c.steerDeg*math.Pi/180)
	c.yaw += yawRate * dt
	fwd := Vec3{X: math.Sin(c.yaw), Z: math.Cos(c.yaw)}
	c.vel = fwd.Scale(c.speed)
	c.pos = c.pos.Add(c.vel.Scale(dt))
	c.distance += math.Abs(c.speed) * dt
	c.accel = c.vel.Sub(prev).Scale(1 / dt)
	c.gyro = Vec3{Y: yawRate}
}

// wheelOdometer 由行驶距离换算车轮转数
type wheelOdometer struct {
	label         string
	car           *KinematicCar
	circumference float64
}

func (o *wheelOdometer) Label() string { return o.label }

func (o *wheelOdometer) Rotations() float64 {
	if o.circumference <= 0 {
		return 0
	}
	return o.car.Distance() / o.circumference
}

// WheelOdometers 前后轴各一个转数计
func WheelOdometers(car *KinematicCar) []Odometer {
	circ := 2 * math.Pi * 0.33 * WorldScale / 4
	return []Odometer{
		&wheelOdometer{label: "odom_front", car: car, circumference: circ},
		&wheelOdometer{label: "odom_rear", car: car, circumference: circ},
	}
}
