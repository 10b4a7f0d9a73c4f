package sim

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/hongjun500/simlink/internal/protocol"
)

// StubCamera 输出指定尺寸的纯色图像，没有渲染器时使用
type StubCamera struct {
	cfg    protocol.CamConfig
	active bool
	frame  []byte
}

// NewStubCamera 默认 160x120 RGB JPG
func NewStubCamera(active bool) *StubCamera {
	c := &StubCamera{active: active}
	c.SetConfig(protocol.CamConfig{
		ImgW:   protocol.DefaultImgW,
		ImgH:   protocol.DefaultImgH,
		ImgD:   protocol.DefaultImgD,
		ImgEnc: protocol.DefaultImgEnc,
	})
	return c
}

func (c *StubCamera) Config() protocol.CamConfig { return c.cfg }
func (c *StubCamera) Active() bool               { return c.active }
func (c *StubCamera) SetActive(on bool)          { c.active = on }
func (c *StubCamera) ImageBytes() []byte         { return c.frame }

// SetConfig 鱼眼参数为 0 时保留原值
func (c *StubCamera) SetConfig(cfg protocol.CamConfig) {
	if cfg.FishEyeX == 0 {
		cfg.FishEyeX = c.cfg.FishEyeX
	}
	if cfg.FishEyeY == 0 {
		cfg.FishEyeY = c.cfg.FishEyeY
	}
	if cfg.ImgW <= 0 {
		cfg.ImgW = protocol.DefaultImgW
	}
	if cfg.ImgH <= 0 {
		cfg.ImgH = protocol.DefaultImgH
	}
	cfg.ImgW = min(cfg.ImgW, protocol.MaxImgSide)
	cfg.ImgH = min(cfg.ImgH, protocol.MaxImgSide)
	c.cfg = cfg
	c.frame = encodeBlank(cfg)
}

func encodeBlank(cfg protocol.CamConfig) []byte {
	rect := image.Rect(0, 0, cfg.ImgW, cfg.ImgH)
	var img image.Image
	if cfg.ImgD == 1 {
		g := image.NewGray(rect)
		for i := range g.Pix {
			g.Pix[i] = 0x80
		}
		img = g
	} else {
		rgba := image.NewRGBA(rect)
		for y := 0; y < cfg.ImgH; y++ {
			for x := 0; x < cfg.ImgW; x++ {
				rgba.Set(x, y, color.RGBA{R: 0x60, G: 0x60, B: 0x60, A: 0xff})
			}
		}
		img = rgba
	}
	var buf bytes.Buffer
	var err error
	if strings.EqualFold(cfg.ImgEnc, "PNG") {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75})
	}
	if err != nil {
		return nil
	}
	return buf.Bytes()
}

// RangeLidar 没有障碍物的测距仪，每条射线都返回最大量程
type RangeLidar struct {
	cfg    protocol.LidarConfig
	active bool
}

func NewRangeLidar() *RangeLidar {
	return &RangeLidar{cfg: protocol.LidarConfig{
		DegPerSweepInc:  2,
		DegAngDelta:     -1,
		MaxRange:        50,
		NumSweepsLevels: 1,
	}}
}

func (l *RangeLidar) Config() protocol.LidarConfig       { return l.cfg }
func (l *RangeLidar) SetConfig(cfg protocol.LidarConfig) { l.cfg = cfg }
func (l *RangeLidar) Active() bool                       { return l.active }
func (l *RangeLidar) SetActive(on bool)                  { l.active = on }

func (l *RangeLidar) Scan(pos Vec3, rot Quat) []LidarPoint {
	if l.cfg.DegPerSweepInc <= 0 || l.cfg.NumSweepsLevels <= 0 {
		return nil
	}
	inc := max(l.cfg.DegPerSweepInc, protocol.MinDegPerSweepInc)
	levels := min(l.cfg.NumSweepsLevels, protocol.MaxNumSweepsLevels)
	perSweep := int(360 / inc)
	out := make([]LidarPoint, 0, perSweep*levels)
	for level := 0; level < levels; level++ {
		ry := l.cfg.DegAngDown + float64(level)*l.cfg.DegAngDelta
		for i := 0; i < perSweep; i++ {
			out = append(out, LidarPoint{D: l.cfg.MaxRange, RX: float64(i) * inc, RY: ry})
		}
	}
	return out
}
