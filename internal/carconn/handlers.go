package carconn

import (
	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/dispatch"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
	"github.com/hongjun500/simlink/internal/telemetry"
)

const (
	// ResetFootBrake reset_car 之后施加的刹车量
	ResetFootBrake = 10.0
	// DefaultCarName car_config 的占位名称，收到时忽略整条配置
	DefaultCarName = "Racer Name"
)

func (c *Connection) register() {
	c.disp.Register(protocol.MsgGetProtocolVersion, dispatch.InlineHandler(onProtocolVersion))
	c.disp.Register(protocol.MsgControl, dispatch.DeferredHandler(c.onControl))
	c.disp.Register(protocol.MsgExitScene, dispatch.DeferredHandler(c.onExitScene))
	c.disp.Register(protocol.MsgResetCar, dispatch.DeferredHandler(c.onResetCar))
	c.disp.Register(protocol.MsgStepMode, dispatch.DeferredHandler(c.onStepMode))
	c.disp.Register(protocol.MsgQuitApp, dispatch.DeferredHandler(c.onQuitApp))
	c.disp.Register(protocol.MsgRegenRoad, dispatch.DeferredHandler(c.onRegenRoad))
	c.disp.Register(protocol.MsgCarConfig, dispatch.DeferredHandler(c.onCarConfig))
	c.disp.Register(protocol.MsgCamConfig, dispatch.DeferredHandler(c.onCamConfig))
	c.disp.Register(protocol.MsgCamConfigB, dispatch.DeferredHandler(c.onCamConfig))
	c.disp.Register(protocol.MsgLidarConfig, dispatch.DeferredHandler(c.onLidarConfig))
	c.disp.Register(protocol.MsgSetPosition, dispatch.DeferredHandler(c.onSetPosition))
	c.disp.Register(protocol.MsgNodePosition, dispatch.DeferredHandler(c.onNodePosition))
}

func onProtocolVersion(protocol.Command) (*protocol.Message, error) {
	return protocol.ProtocolVersionReply(), nil
}

// Controls 钳制并换算后的控制量
type Controls struct {
	SteeringDeg float64
	Throttle    float64
	Brake       float64
}

// ClampControl steering、throttle 限制在 [-1,1]，brake 限制在 [0,1]，
// 转向再乘以 telemetry.SteerToAngle 换算为角度
func ClampControl(cmd protocol.Control) Controls {
	return Controls{
		SteeringDeg: sim.Clamp(cmd.Steering, -1, 1) * telemetry.SteerToAngle,
		Throttle:    sim.Clamp(cmd.Throttle, -1, 1),
		Brake:       sim.Clamp(cmd.Brake, 0, 1),
	}
}

// vehicleTask 任务执行时按 ID 查找车辆，车辆已不存在时什么也不做
func (c *Connection) vehicleTask(fn func(w *sim.World, v *sim.Vehicle)) sim.Task {
	id := c.id
	return func(w *sim.World) {
		if v := w.Vehicle(id); v != nil {
			fn(w, v)
		}
	}
}

// onControl 三个字段已全部解析成功才会到达这里，不存在部分生效
func (c *Connection) onControl(cmd protocol.Command) sim.Task {
	ctl := ClampControl(cmd.(protocol.Control))
	return c.vehicleTask(func(_ *sim.World, v *sim.Vehicle) {
		v.Car.RequestSteering(ctl.SteeringDeg)
		v.Car.RequestThrottle(ctl.Throttle)
		v.Car.RequestFootBrake(ctl.Brake)
	})
}

func (c *Connection) onExitScene(protocol.Command) sim.Task {
	return func(w *sim.World) {
		if s := w.Scene(); s != nil {
			s.ExitScene(w)
		}
	}
}

func (c *Connection) onResetCar(protocol.Command) sim.Task {
	return c.vehicleTask(func(_ *sim.World, v *sim.Vehicle) {
		v.Car.RestorePosRot()
		v.Car.RequestSteering(0)
		v.Car.RequestThrottle(0)
		v.Car.RequestFootBrake(ResetFootBrake)
		v.ActiveSpan = 0
	})
}

func (c *Connection) onStepMode(cmd protocol.Command) sim.Task {
	sm := cmd.(protocol.StepMode)
	return func(w *sim.World) {
		w.SetStepMode(sim.StepMode{Synchronous: sm.Synchronous, TickDuration: sm.TimeStep})
	}
}

func (c *Connection) onQuitApp(protocol.Command) sim.Task {
	return func(w *sim.World) {
		c.log.Info("quit_app")
		if app := w.App(); app != nil {
			app.Quit()
		}
	}
}

func (c *Connection) onRegenRoad(cmd protocol.Command) sim.Task {
	rr := cmd.(protocol.RegenRoad)
	return func(w *sim.World) {
		if s := w.Scene(); s != nil {
			s.RegenRoad(w, rr)
		}
	}
}

func (c *Connection) onCarConfig(cmd protocol.Command) sim.Task {
	cc := cmd.(protocol.CarConfig)
	if cc.CarName == DefaultCarName {
		return nil
	}
	return c.vehicleTask(func(_ *sim.World, v *sim.Vehicle) {
		v.Name = cc.CarName
		v.BodyStyle = cc.BodyStyle
		v.BodyRGB = [3]int{cc.BodyR, cc.BodyG, cc.BodyB}
		v.FontSize = cc.FontSize
	})
}

func (c *Connection) onCamConfig(cmd protocol.Command) sim.Task {
	cfg := cmd.(protocol.CamConfig)
	return c.vehicleTask(func(_ *sim.World, v *sim.Vehicle) {
		cam := v.Camera
		if cfg.Camera == 1 {
			cam = v.CameraB
		}
		if cam == nil {
			return
		}
		if cfg.Camera == 1 && !cam.Active() {
			cam.SetActive(true)
		}
		cam.SetConfig(cfg)
	})
}

func (c *Connection) onLidarConfig(cmd protocol.Command) sim.Task {
	cfg := cmd.(protocol.LidarConfig)
	return c.vehicleTask(func(_ *sim.World, v *sim.Vehicle) {
		if v.Lidar == nil {
			return
		}
		if !v.Lidar.Active() {
			v.Lidar.SetActive(true)
		}
		v.Lidar.SetConfig(cfg)
	})
}

// onSetPosition 仅在扩展遥测模式下生效
func (c *Connection) onSetPosition(cmd protocol.Command) sim.Task {
	if !c.opt.ExtendedTelemetry {
		c.log.Debug("set_position_ignored")
		return nil
	}
	sp := cmd.(protocol.SetPosition)
	return c.vehicleTask(func(_ *sim.World, v *sim.Vehicle) {
		rot := sim.Identity
		if sp.HasRotation {
			rot = sim.Quat{X: sp.Qx, Y: sp.Qy, Z: sp.Qz, W: sp.Qw}
		}
		v.Car.SetPose(sim.Vec3{X: sp.PosX, Y: sp.PosY, Z: sp.PosZ}, rot)
	})
}

// onNodePosition 索引越界时不回复
func (c *Connection) onNodePosition(cmd protocol.Command) sim.Task {
	idx := cmd.(protocol.NodePosition).Index
	return func(w *sim.World) {
		p := w.Path()
		if p == nil {
			return
		}
		nodes := p.Nodes()
		if idx < 0 || idx >= len(nodes) {
			c.log.Debug("node_position_out_of_range", zap.Int("index", idx), zap.Int("nodes", len(nodes)))
			return
		}
		n := nodes[idx]
		reply := protocol.NodePositionReply(idx,
			[3]float64{n.Pos.X, n.Pos.Y, n.Pos.Z},
			[4]float64{n.Rot.X, n.Rot.Y, n.Rot.Z, n.Rot.W})
		if err := c.sess.Send(reply); err != nil {
			c.log.Debug("node_position_dropped", zap.Error(err))
		}
	}
}
