package protocol

import (
	"errors"
	"fmt"
)

// Command 入站消息解析后的不可变值。集合封闭：只有本包内的类型实现 isCommand。
type Command interface {
	MsgType() MsgType
	isCommand()
}

type GetProtocolVersion struct{}

// Control 未经钳制的原始控制量
type Control struct {
	Steering float64
	Throttle float64
	Brake    float64
}

type ExitScene struct{}

type ResetCar struct{}

type StepMode struct {
	Synchronous bool
	TimeStep    float64
}

type QuitApp struct{}

type RegenRoad struct {
	RoadStyle     int
	RandSeed      int
	TurnIncrement float64
}

type CarConfig struct {
	BodyStyle string
	BodyR     int
	BodyG     int
	BodyB     int
	CarName   string
	FontSize  int
}

// CamConfig Camera 为 0 表示主摄像头（cam_config），1 表示副摄像头（cam_config_b）
type CamConfig struct {
	Camera   int
	FOV      float64
	OffsetX  float64
	OffsetY  float64
	OffsetZ  float64
	RotX     float64
	RotY     float64
	RotZ     float64
	FishEyeX float64
	FishEyeY float64
	ImgW     int
	ImgH     int
	ImgD     int
	ImgEnc   string
}

type LidarConfig struct {
	OffsetX         float64
	OffsetY         float64
	OffsetZ         float64
	RotX            float64
	DegPerSweepInc  float64
	DegAngDown      float64
	DegAngDelta     float64
	MaxRange        float64
	Noise           float64
	NumSweepsLevels int
}

// SetPosition HasRotation 仅当 Qx/Qy/Qz/Qw 四个字段都存在时为 true
type SetPosition struct {
	PosX, PosY, PosZ float64
	HasRotation      bool
	Qx, Qy, Qz, Qw   float64
}

type NodePosition struct {
	Index int
}

func (GetProtocolVersion) MsgType() MsgType { return MsgGetProtocolVersion }
func (Control) MsgType() MsgType            { return MsgControl }
func (ExitScene) MsgType() MsgType          { return MsgExitScene }
func (ResetCar) MsgType() MsgType           { return MsgResetCar }
func (StepMode) MsgType() MsgType           { return MsgStepMode }
func (QuitApp) MsgType() MsgType            { return MsgQuitApp }
func (RegenRoad) MsgType() MsgType          { return MsgRegenRoad }
func (CarConfig) MsgType() MsgType          { return MsgCarConfig }
func (LidarConfig) MsgType() MsgType        { return MsgLidarConfig }
func (SetPosition) MsgType() MsgType        { return MsgSetPosition }
func (NodePosition) MsgType() MsgType       { return MsgNodePosition }

func (c CamConfig) MsgType() MsgType {
	if c.Camera == 1 {
		return MsgCamConfigB
	}
	return MsgCamConfig
}

func (GetProtocolVersion) isCommand() {}
func (Control) isCommand()            {}
func (ExitScene) isCommand()          {}
func (ResetCar) isCommand()           {}
func (StepMode) isCommand()           {}
func (QuitApp) isCommand()            {}
func (RegenRoad) isCommand()          {}
func (CarConfig) isCommand()          {}
func (CamConfig) isCommand()          {}
func (LidarConfig) isCommand()        {}
func (SetPosition) isCommand()        {}
func (NodePosition) isCommand()       {}

// 摄像头可选字段的默认值
const (
	DefaultImgW     = 160
	DefaultImgH     = 120
	DefaultImgD     = 3
	DefaultImgEnc   = "JPG"
	DefaultFontSize = 100
)

// 传感器配置的取值范围，超出时整条消息按 FieldError 丢弃
const (
	MaxImgSide         = 4096
	MinDegPerSweepInc  = 0.1
	MaxNumSweepsLevels = 64
	MaxLidarRange      = 10000.0
)

// ErrUnknownType 没有对应的命令类型
var ErrUnknownType = errors.New("unknown msg_type")

// ParseCommand 将消息解析为对应的 Command。必填字段缺失或非法时返回 FieldError。
func ParseCommand(m *Message) (Command, error) {
	switch t := m.Type(); t {
	case MsgGetProtocolVersion:
		return GetProtocolVersion{}, nil
	case MsgControl:
		return parseControl(m)
	case MsgExitScene:
		return ExitScene{}, nil
	case MsgResetCar:
		return ResetCar{}, nil
	case MsgStepMode:
		return parseStepMode(m)
	case MsgQuitApp:
		return QuitApp{}, nil
	case MsgRegenRoad:
		return parseRegenRoad(m)
	case MsgCarConfig:
		return parseCarConfig(m)
	case MsgCamConfig:
		return parseCamConfig(m, 0)
	case MsgCamConfigB:
		return parseCamConfig(m, 1)
	case MsgLidarConfig:
		return parseLidarConfig(m)
	case MsgSetPosition:
		return parseSetPosition(m)
	case MsgNodePosition:
		idx, err := m.Int("index")
		if err != nil {
			return nil, err
		}
		return NodePosition{Index: idx}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}

// fieldReader 收集第一个错误，之后的读取全部短路
type fieldReader struct {
	m   *Message
	err error
}

func (r *fieldReader) float(key string) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.m.Float(key)
	r.err = err
	return v
}

func (r *fieldReader) floatOr(key string, def float64) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.m.FloatOr(key, def)
	r.err = err
	return v
}

func (r *fieldReader) int(key string) int {
	if r.err != nil {
		return 0
	}
	v, err := r.m.Int(key)
	r.err = err
	return v
}

func (r *fieldReader) intOr(key string, def int) int {
	if r.err != nil {
		return 0
	}
	v, err := r.m.IntOr(key, def)
	r.err = err
	return v
}

// intIn 在 r 无错误时检查整数范围
func (r *fieldReader) intIn(key string, v, lo, hi int) {
	if r.err == nil && (v < lo || v > hi) {
		r.err = invalid(key, "int", fmt.Errorf("%d out of range [%d, %d]", v, lo, hi))
	}
}

// floatIn 在 r 无错误时检查浮点范围
func (r *fieldReader) floatIn(key string, v, lo, hi float64) {
	if r.err == nil && (v < lo || v > hi) {
		r.err = invalid(key, "float", fmt.Errorf("%v out of range [%v, %v]", v, lo, hi))
	}
}

func (r *fieldReader) str(key string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.m.String(key)
	r.err = err
	return v
}

func (r *fieldReader) strOr(key, def string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.m.StringOr(key, def)
	r.err = err
	return v
}

func parseControl(m *Message) (Command, error) {
	r := fieldReader{m: m}
	c := Control{
		Steering: r.float("steering"),
		Throttle: r.float("throttle"),
		Brake:    r.float("brake"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func parseStepMode(m *Message) (Command, error) {
	r := fieldReader{m: m}
	mode := r.str("step_mode")
	step := r.float("time_step")
	if r.err != nil {
		return nil, r.err
	}
	return StepMode{Synchronous: mode == "synchronous", TimeStep: step}, nil
}

func parseRegenRoad(m *Message) (Command, error) {
	r := fieldReader{m: m}
	c := RegenRoad{
		RoadStyle:     r.int("road_style"),
		RandSeed:      r.int("rand_seed"),
		TurnIncrement: r.float("turn_increment"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func parseCarConfig(m *Message) (Command, error) {
	r := fieldReader{m: m}
	c := CarConfig{
		BodyStyle: r.str("body_style"),
		BodyR:     r.int("body_r"),
		BodyG:     r.int("body_g"),
		BodyB:     r.int("body_b"),
		CarName:   r.str("car_name"),
		FontSize:  r.intOr("font_size", DefaultFontSize),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func parseCamConfig(m *Message, camera int) (Command, error) {
	r := fieldReader{m: m}
	c := CamConfig{
		Camera:   camera,
		FOV:      r.float("fov"),
		OffsetX:  r.float("offset_x"),
		OffsetY:  r.float("offset_y"),
		OffsetZ:  r.float("offset_z"),
		RotX:     r.float("rot_x"),
		RotY:     r.floatOr("rot_y", 0),
		RotZ:     r.floatOr("rot_z", 0),
		FishEyeX: r.floatOr("fish_eye_x", 0),
		FishEyeY: r.floatOr("fish_eye_y", 0),
		ImgW:     r.intOr("img_w", DefaultImgW),
		ImgH:     r.intOr("img_h", DefaultImgH),
		ImgD:     r.intOr("img_d", DefaultImgD),
		ImgEnc:   r.strOr("img_enc", DefaultImgEnc),
	}
	r.intIn("img_w", c.ImgW, 1, MaxImgSide)
	r.intIn("img_h", c.ImgH, 1, MaxImgSide)
	if r.err == nil && c.ImgD != 1 && c.ImgD != 3 {
		r.err = invalid("img_d", "int", fmt.Errorf("%d is not 1 or 3", c.ImgD))
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func parseLidarConfig(m *Message) (Command, error) {
	r := fieldReader{m: m}
	c := LidarConfig{
		OffsetX:         r.float("offset_x"),
		OffsetY:         r.float("offset_y"),
		OffsetZ:         r.float("offset_z"),
		RotX:            r.float("rot_x"),
		DegPerSweepInc:  r.float("degPerSweepInc"),
		DegAngDown:      r.float("degAngDown"),
		DegAngDelta:     r.float("degAngDelta"),
		MaxRange:        r.float("maxRange"),
		Noise:           r.float("noise"),
		NumSweepsLevels: r.int("numSweepsLevels"),
	}
	r.floatIn("degPerSweepInc", c.DegPerSweepInc, MinDegPerSweepInc, 360)
	r.intIn("numSweepsLevels", c.NumSweepsLevels, 1, MaxNumSweepsLevels)
	r.floatIn("maxRange", c.MaxRange, 0, MaxLidarRange)
	if r.err == nil && c.MaxRange == 0 {
		r.err = invalid("maxRange", "float", fmt.Errorf("must be positive"))
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func parseSetPosition(m *Message) (Command, error) {
	r := fieldReader{m: m}
	c := SetPosition{
		PosX: r.float("pos_x"),
		PosY: r.float("pos_y"),
		PosZ: r.float("pos_z"),
		Qw:   1,
	}
	if m.Has("Qx") && m.Has("Qy") && m.Has("Qz") && m.Has("Qw") {
		c.HasRotation = true
		c.Qx = r.float("Qx")
		c.Qy = r.float("Qy")
		c.Qz = r.float("Qz")
		c.Qw = r.float("Qw")
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}
