package sim

import "github.com/hongjun500/simlink/internal/protocol"

// Car 车辆控制面。数值均为世界坐标单位，未按遥测比例缩放。
type Car interface {
	RequestSteering(degrees float64)
	RequestThrottle(v float64)
	RequestFootBrake(v float64)

	Steering() float64 // 当前转向角，度
	Throttle() float64

	Velocity() Vec3
	Accel() Vec3
	Gyro() Vec3
	Transform() (Vec3, Quat)

	// LastCollision 最近一次碰撞对象的名称，没有碰撞时返回空串
	LastCollision() string
	ClearLastCollision()

	RestorePosRot()
	SetPose(pos Vec3, rot Quat)

	Step(dt float64)
}

// Camera 图像传感器
type Camera interface {
	SetConfig(cfg protocol.CamConfig)
	Active() bool
	SetActive(on bool)
	// ImageBytes 按当前配置编码好的一帧图像
	ImageBytes() []byte
}

// LidarPoint 单条测距结果：距离与水平/垂直角度
type LidarPoint struct {
	D  float64
	RX float64
	RY float64
}

// Lidar 测距传感器
type Lidar interface {
	SetConfig(cfg protocol.LidarConfig)
	Active() bool
	SetActive(on bool)
	Scan(pos Vec3, rot Quat) []LidarPoint
}

// Odometer 车轮/车轴转数计
type Odometer interface {
	Label() string
	Rotations() float64
}

// PathNode 路径节点
type PathNode struct {
	Pos Vec3
	Rot Quat
}

// Path 赛道中心线
type Path interface {
	Nodes() []PathNode
	ClosestSpanIndex(pos Vec3) int
	CrossTrackError(pos Vec3) float64
}

// SceneController 场景级操作
type SceneController interface {
	ExitScene(w *World)
	RegenRoad(w *World, cmd protocol.RegenRoad)
}

// AppController 进程级操作
type AppController interface {
	Quit()
}

// WorldScale 世界单位与遥测单位之比：遥测中的速度、加速度与位置均除以该值
const WorldScale = 8.0
