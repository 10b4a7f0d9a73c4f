package telemetry

import (
	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
)

// Sender 非阻塞发送，缓冲满时返回错误
type Sender interface {
	Send(m *protocol.Message) error
}

// Assembler 每个 tick 最多组装一次快照
type Assembler struct {
	limiter  *Limiter
	extended bool
	out      Sender
	log      *zap.Logger
}

func NewAssembler(fps float64, extended bool, out Sender, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{limiter: NewLimiter(fps), extended: extended, out: out, log: log}
}

// Update 到达发送间隔时组装并发送一帧，返回是否已交给传输层。
// 发送失败时丢弃该帧，不重试。
func (a *Assembler) Update(w *sim.World, v *sim.Vehicle, dt float64) bool {
	if !a.limiter.Allow(dt) {
		return false
	}
	snap := Assemble(w, v, a.extended)
	if err := a.out.Send(snap.Message()); err != nil {
		a.log.Debug("telemetry_dropped", zap.String("vehicle", v.ID), zap.Error(err))
		observe.IncTelemetry("dropped")
		return false
	}
	observe.IncTelemetry("sent")
	return true
}
