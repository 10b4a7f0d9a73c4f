package sim

import (
	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/protocol"
)

// NewHeadlessVehicle 默认车辆：运动学车辆、主副摄像头、测距仪与转数计
func NewHeadlessVehicle(id string, slot int, spawn PathNode) *Vehicle {
	car := NewKinematicCar(spawn)
	return &Vehicle{
		ID:        id,
		Slot:      slot,
		Car:       car,
		Camera:    NewStubCamera(true),
		CameraB:   NewStubCamera(false),
		Lidar:     NewRangeLidar(),
		Odometers: WheelOdometers(car),
		FontSize:  protocol.DefaultFontSize,
	}
}

// QuitFunc 将函数适配为 AppController，一般传入根 context 的 cancel
type QuitFunc func()

func (f QuitFunc) Quit() { f() }

// respawner 支持更新出生点的车辆
type respawner interface {
	SetSpawn(spawn PathNode)
}

// TrackScene 基于生成赛道的场景控制器
type TrackScene struct {
	Options TrackOptions
	Log     *zap.Logger
}

// Load 生成赛道并放入世界
func (s *TrackScene) Load(w *World) {
	w.SetPath(GenerateTrack(s.Options))
	w.SetScene(s)
}

// ExitScene 没有菜单场景可回，所有车辆回到出生点并松开控制
func (s *TrackScene) ExitScene(w *World) {
	s.logger().Info("scene_exit", zap.Int("vehicles", w.VehicleCount()))
	for _, v := range w.Vehicles() {
		v.Car.RestorePosRot()
		v.Car.RequestSteering(0)
		v.Car.RequestThrottle(0)
		v.ActiveSpan = 0
	}
}

// RegenRoad turn_increment 为 0 时沿用原值
func (s *TrackScene) RegenRoad(w *World, cmd protocol.RegenRoad) {
	if cmd.TurnIncrement != 0 {
		s.Options.TurnIncrement = cmd.TurnIncrement
	}
	s.Options.Style = cmd.RoadStyle
	s.Options.Seed = cmd.RandSeed
	w.SetPath(GenerateTrack(s.Options))
	for _, v := range w.Vehicles() {
		spawn := SpawnPose(w.Path(), v.Slot)
		if r, ok := v.Car.(respawner); ok {
			r.SetSpawn(spawn)
		}
		v.Car.SetPose(spawn.Pos, spawn.Rot)
		v.ActiveSpan = 0
	}
	s.logger().Info("road_regen",
		zap.Int("road_style", cmd.RoadStyle),
		zap.Int("rand_seed", cmd.RandSeed),
		zap.Float64("turn_increment", s.Options.TurnIncrement))
}

func (s *TrackScene) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
