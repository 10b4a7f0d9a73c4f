// Package carconn 每辆车一个的控制端连接：生命周期状态机、消息处理器与控制通道。
package carconn

import (
	"sync"

	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/dispatch"
	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
	"github.com/hongjun500/simlink/internal/telemetry"
	"github.com/hongjun500/simlink/internal/watchdog"
)

// State 连接生命周期状态
type State int

const (
	Unconnected State = iota
	SendingTelemetry
)

func (s State) String() string {
	if s == SendingTelemetry {
		return "sending_telemetry"
	}
	return "unconnected"
}

// Session 连接底层的双工传输
type Session interface {
	ID() string
	Send(m *protocol.Message) error
	Close() error
}

// Owner 持有连接的集合，负责把车辆移出世界并归还出生位
type Owner interface {
	Evict(w *sim.World, id string, reason string)
}

// Options 进程级配置，在构造时传入
type Options struct {
	TelemetryFPS      float64
	ExtendedTelemetry bool
	StallTimeout      float64 // 秒，<=0 关闭
	StallEpsilon      float64

	// OnStartingLine 越过起跑线时在 tick goroutine 上回调，可为 nil
	OnStartingLine func(id string, simTime float64)
}

// Connection 车辆与控制端之间的连接。除 Dispatch 与 Disconnect 外，
// 所有方法都只在 tick goroutine 上调用。
type Connection struct {
	id    string
	sess  Session
	disp  *dispatch.Dispatcher
	owner Owner
	opt   Options
	log   *zap.Logger

	state    State
	telem    *telemetry.Assembler
	dog      *watchdog.Watchdog
	lastSpan int

	closeOnce sync.Once
}

// New 创建连接并注册全部处理器。id 同时作为车辆 ID。
func New(sess Session, sink dispatch.TaskSink, mode dispatch.Mode, owner Owner, opt Options, log *zap.Logger) *Connection {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("conn", sess.ID()))
	c := &Connection{
		id:       sess.ID(),
		sess:     sess,
		owner:    owner,
		opt:      opt,
		log:      log,
		telem:    telemetry.NewAssembler(opt.TelemetryFPS, opt.ExtendedTelemetry, sess, log),
		dog:      watchdog.New(opt.StallTimeout, opt.StallEpsilon),
		lastSpan: -1,
	}
	c.disp = dispatch.New(mode, sink, sess, log)
	c.register()
	return c
}

func (c *Connection) ID() string { return c.id }

// State 当前状态
func (c *Connection) State() State { return c.state }

// Dispatcher 连接的处理器表
func (c *Connection) Dispatcher() *dispatch.Dispatcher { return c.disp }

// Dispatch 在 I/O goroutine 上处理一条入站消息
func (c *Connection) Dispatch(m *protocol.Message) error {
	return c.disp.Dispatch(m)
}

// Start 车辆进入世界后调用：发送 car_loaded 并开始发送遥测
func (c *Connection) Start(w *sim.World) {
	if c.state != Unconnected {
		return
	}
	if err := c.sess.Send(protocol.CarLoaded()); err != nil {
		c.log.Warn("car_loaded_send_error", zap.Error(err))
	}
	c.state = SendingTelemetry
	c.log.Info("car_loaded", zap.Float64("time", w.Time()))
}

// Update 实现 sim.Agent，每个物理步调用一次
func (c *Connection) Update(w *sim.World, dt float64) {
	if c.state != SendingTelemetry {
		return
	}
	v := w.Vehicle(c.id)
	if v == nil {
		return
	}
	pos, _ := v.Car.Transform()
	c.trackProgress(w, v, pos)
	c.telem.Update(w, v, dt)

	if c.dog.Sample(pos, dt) {
		c.log.Warn("stall_timeout", zap.Float64("idle", c.dog.Idle()))
		observe.IncEviction("stall")
		c.Disconnect()
		c.owner.Evict(w, c.id, "stall")
	}
}

// trackProgress 更新最近路径段，环绕回起点时发送 collision_with_starting_line
func (c *Connection) trackProgress(w *sim.World, v *sim.Vehicle, pos sim.Vec3) {
	p := w.Path()
	if p == nil {
		return
	}
	n := len(p.Nodes())
	if n == 0 {
		return
	}
	span := p.ClosestSpanIndex(pos)
	// ActiveSpan 被外部改写（重置、换赛道、瞬移）时不算越线
	if c.lastSpan >= 0 && v.ActiveSpan == c.lastSpan && c.lastSpan-span > n/2 {
		if err := c.sess.Send(protocol.CollisionWithStartingLine(0, w.Time())); err != nil {
			c.log.Debug("starting_line_send_error", zap.Error(err))
		}
		c.log.Info("starting_line", zap.Float64("time", w.Time()))
		if c.opt.OnStartingLine != nil {
			c.opt.OnStartingLine(c.id, w.Time())
		}
	}
	c.lastSpan = span
	v.ActiveSpan = span
}

// Disconnect 先清空处理器表，再关闭传输。可重复调用，可在任意 goroutine 调用。
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		c.disp.Reset()
		if err := c.sess.Close(); err != nil {
			c.log.Debug("session_close_error", zap.Error(err))
		}
		c.log.Info("disconnect")
	})
}
