package protocol

// MsgType 消息类型标识，对应线上 JSON 的 msg_type 字段
type MsgType string

// FieldMsgType 所有消息必须携带的判别字段
const FieldMsgType = "msg_type"

// ProtocolVersion 当前协议版本
const ProtocolVersion = "2"

// 入站消息类型（控制端 -> 仿真）
const (
	MsgGetProtocolVersion MsgType = "get_protocol_version"
	MsgControl            MsgType = "control"
	MsgExitScene          MsgType = "exit_scene"
	MsgResetCar           MsgType = "reset_car"
	MsgStepMode           MsgType = "step_mode"
	MsgQuitApp            MsgType = "quit_app"
	MsgRegenRoad          MsgType = "regen_road"
	MsgCarConfig          MsgType = "car_config"
	MsgCamConfig          MsgType = "cam_config"
	MsgCamConfigB         MsgType = "cam_config_b"
	MsgLidarConfig        MsgType = "lidar_config"
	MsgSetPosition        MsgType = "set_position"
	MsgNodePosition       MsgType = "node_position"
)

// 出站消息类型（仿真 -> 控制端）
const (
	MsgProtocolVersion           MsgType = "protocol_version"
	MsgTelemetry                 MsgType = "telemetry"
	MsgCarLoaded                 MsgType = "car_loaded"
	MsgCollisionWithStartingLine MsgType = "collision_with_starting_line"
)

// InboundTypes 返回所有已知的入站消息类型
func InboundTypes() []MsgType {
	return []MsgType{
		MsgGetProtocolVersion,
		MsgControl,
		MsgExitScene,
		MsgResetCar,
		MsgStepMode,
		MsgQuitApp,
		MsgRegenRoad,
		MsgCarConfig,
		MsgCamConfig,
		MsgCamConfigB,
		MsgLidarConfig,
		MsgSetPosition,
		MsgNodePosition,
	}
}
