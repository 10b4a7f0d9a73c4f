package sim

// Vehicle 仿真中的一辆车及其传感器。只在 tick goroutine 上读写。
type Vehicle struct {
	ID        string
	Slot      int
	Car       Car
	Camera    Camera
	CameraB   Camera
	Lidar     Lidar
	Odometers []Odometer

	// ActiveSpan 最近的路径段索引
	ActiveSpan int

	Name      string
	BodyStyle string
	BodyRGB   [3]int
	FontSize  int
}

// VehicleFactory 在指定出生点创建车辆
type VehicleFactory func(id string, slot int, spawn PathNode) *Vehicle
