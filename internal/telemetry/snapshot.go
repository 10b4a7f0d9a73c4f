// Package telemetry 组装并限速发送遥测快照
package telemetry

import (
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
)

// SteerToAngle 转向角与归一化转向量之比，度
const SteerToAngle = 16.0

// Snapshot 单次遥测，每次重新组装，不跨 tick 复用
type Snapshot struct {
	SteeringAngle float64
	Throttle      float64
	Image         []byte
	ImageB        []byte // 副摄像头未启用时为 nil
	Lidar         []sim.LidarPoint
	HasLidar      bool
	Odometers     map[string]float64
	Hit           string
	Time          float64
	Speed         float64
	Accel         sim.Vec3
	Gyro          sim.Vec3
	Pitch         float64
	Yaw           float64
	Roll          float64

	HasPath    bool
	ActiveNode int
	TotalNodes int

	Extended bool
	CTE      float64
	Pos      sim.Vec3
	Vel      sim.Vec3
}

// Assemble 读取车辆状态。碰撞标记在读取后立即清除。
func Assemble(w *sim.World, v *sim.Vehicle, extended bool) Snapshot {
	car := v.Car
	vel := car.Velocity().Scale(1 / sim.WorldScale)
	pos, rot := car.Transform()
	pitch, yaw, roll := rot.Euler()

	s := Snapshot{
		SteeringAngle: car.Steering() / SteerToAngle,
		Throttle:      car.Throttle(),
		Hit:           "none",
		Time:          w.Time(),
		Speed:         vel.Len(),
		Accel:         car.Accel().Scale(1 / sim.WorldScale),
		Gyro:          car.Gyro(),
		Pitch:         pitch,
		Yaw:           yaw,
		Roll:          roll,
		Extended:      extended,
	}
	if v.Camera != nil {
		s.Image = v.Camera.ImageBytes()
	}
	if v.CameraB != nil && v.CameraB.Active() {
		s.ImageB = v.CameraB.ImageBytes()
	}
	if v.Lidar != nil && v.Lidar.Active() {
		s.HasLidar = true
		s.Lidar = v.Lidar.Scan(pos, rot)
	}
	if len(v.Odometers) > 0 {
		s.Odometers = make(map[string]float64, len(v.Odometers))
		for _, o := range v.Odometers {
			s.Odometers[o.Label()] = o.Rotations()
		}
	}
	if hit := car.LastCollision(); hit != "" {
		s.Hit = hit
	}
	car.ClearLastCollision()

	if p := w.Path(); p != nil && len(p.Nodes()) > 0 {
		s.HasPath = true
		s.ActiveNode = v.ActiveSpan
		s.TotalNodes = len(p.Nodes())
		if extended {
			s.CTE = p.CrossTrackError(pos)
		}
	}
	if extended {
		s.Pos = pos.Scale(1 / sim.WorldScale)
		s.Vel = vel
	}
	return s
}

// Message 转换为出站 telemetry 消息
func (s Snapshot) Message() *protocol.Message {
	m := protocol.NewMessage(protocol.MsgTelemetry).
		Set("steering_angle", s.SteeringAngle).
		Set("throttle", s.Throttle).
		Set("image", s.Image)
	if s.ImageB != nil {
		m.Set("imageb", s.ImageB)
	}
	if s.HasLidar {
		points := make([]any, 0, len(s.Lidar))
		for _, p := range s.Lidar {
			points = append(points, map[string]any{"d": p.D, "rx": p.RX, "ry": p.RY})
		}
		m.Set("lidar", points)
	}
	for label, n := range s.Odometers {
		m.Set(label, n)
	}
	m.Set("hit", s.Hit).
		Set("time", s.Time).
		Set("speed", s.Speed).
		Set("accel_x", s.Accel.X).
		Set("accel_y", s.Accel.Y).
		Set("accel_z", s.Accel.Z).
		Set("gyro_x", s.Gyro.X).
		Set("gyro_y", s.Gyro.Y).
		Set("gyro_z", s.Gyro.Z).
		Set("pitch", s.Pitch).
		Set("yaw", s.Yaw).
		Set("roll", s.Roll)
	if s.HasPath {
		if s.Extended {
			m.Set("cte", s.CTE)
		}
		m.Set("activeNode", s.ActiveNode).
			Set("totalNodes", s.TotalNodes)
	}
	if s.Extended {
		m.Set("pos_x", s.Pos.X).
			Set("pos_y", s.Pos.Y).
			Set("pos_z", s.Pos.Z).
			Set("vel_x", s.Vel.X).
			Set("vel_y", s.Vel.Y).
			Set("vel_z", s.Vel.Z)
	}
	return m
}
