// Package spawner 会话到车辆的映射：为每个新会话生成车辆，会话结束或停滞时回收。
//
// 传输层回调运行在 I/O goroutine 上，只记录生命周期事件；
// 车辆的创建与移除都在 tick 钩子 reap 中完成。
package spawner

import (
	"sync"

	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/bus/redisstream"
	"github.com/hongjun500/simlink/internal/carconn"
	"github.com/hongjun500/simlink/internal/dispatch"
	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
	"github.com/hongjun500/simlink/internal/transport"
)

// Events 生命周期事件的出口，*redisstream.Async 实现该接口
type Events interface {
	Offer(e *redisstream.Event) bool
}

type Options struct {
	Mode        dispatch.Mode
	Conn        carconn.Options
	MaxVehicles int // <=0 不限
}

type lifecycle struct {
	open bool
	id   string
	conn *carconn.Connection
}

// Spawner 实现 transport.Gateway 与 carconn.Owner
type Spawner struct {
	world   *sim.World
	pool    *sim.Pool
	factory sim.VehicleFactory
	opt     Options
	events  Events
	log     *zap.Logger

	mu      sync.Mutex
	conns   map[string]*carconn.Connection
	pending []lifecycle
}

// New 创建 Spawner 并把 reap 注册为 world 的 tick 钩子。events 可为 nil。
func New(w *sim.World, factory sim.VehicleFactory, opt Options, events Events, log *zap.Logger) *Spawner {
	if factory == nil {
		factory = sim.NewHeadlessVehicle
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Spawner{
		world:   w,
		pool:    sim.NewPool(opt.MaxVehicles),
		factory: factory,
		opt:     opt,
		events:  events,
		log:     log,
		conns:   make(map[string]*carconn.Connection),
	}
	if s.opt.Conn.OnStartingLine == nil {
		s.opt.Conn.OnStartingLine = s.startingLine
	}
	w.OnTick(s.reap)
	return s
}

// OnSessionOpen 创建连接，车辆在下一个 tick 生成
func (s *Spawner) OnSessionOpen(sc *transport.SessionContext) {
	conn := carconn.New(sc, s.world, s.opt.Mode, s, s.opt.Conn, s.log)
	s.mu.Lock()
	s.conns[sc.ID()] = conn
	s.pending = append(s.pending, lifecycle{open: true, id: sc.ID(), conn: conn})
	s.mu.Unlock()
	s.log.Info("session_open", zap.String("conn", sc.ID()), zap.String("remote", sc.RemoteAddr))
	s.publish(&redisstream.Event{Type: redisstream.EventConnected, Vehicle: sc.ID()})
}

// OnMessage 交给连接的分发器。错误已在分发器内记录。
func (s *Spawner) OnMessage(sc *transport.SessionContext, m *protocol.Message) {
	conn := s.Connection(sc.ID())
	if conn == nil {
		return
	}
	_ = conn.Dispatch(m)
}

// OnSessionClose 立即停止接收消息，车辆在下一个 tick 移除
func (s *Spawner) OnSessionClose(sc *transport.SessionContext) {
	s.mu.Lock()
	conn, ok := s.conns[sc.ID()]
	delete(s.conns, sc.ID())
	if ok {
		s.pending = append(s.pending, lifecycle{id: sc.ID(), conn: conn})
	}
	s.mu.Unlock()
	if ok {
		conn.Disconnect()
	}
}

// Connection 按会话 ID 查找连接
func (s *Spawner) Connection(id string) *carconn.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[id]
}

// Connections 当前会话数
func (s *Spawner) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Evict 在 tick goroutine 上把车辆移出世界并归还出生位，重复调用无副作用
func (s *Spawner) Evict(w *sim.World, id string, reason string) {
	v := w.RemoveVehicle(id)
	if v == nil {
		return
	}
	s.pool.Release(v.Slot)
	observe.SetVehicles(w.VehicleCount())
	s.log.Info("vehicle_removed", zap.String("vehicle", id), zap.Int("slot", v.Slot), zap.String("reason", reason))

	typ := redisstream.EventEvicted
	if reason == "disconnected" {
		typ = redisstream.EventDisconnected
	}
	s.publish(&redisstream.Event{Type: typ, Vehicle: id, Slot: v.Slot, Reason: reason, SimTime: w.Time()})
}

// reap tick 钩子：按到达顺序处理开启与关闭
func (s *Spawner) reap(w *sim.World) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range batch {
		if e.open {
			s.spawn(w, e.id, e.conn)
		} else {
			s.Evict(w, e.id, "disconnected")
		}
	}
}

func (s *Spawner) spawn(w *sim.World, id string, conn *carconn.Connection) {
	if conn.Dispatcher().Closed() {
		// 会话在生成前就已关闭
		return
	}
	slot, err := s.pool.Acquire()
	if err != nil {
		s.log.Warn("pool_exhausted", zap.String("conn", id), zap.Int("in_use", s.pool.InUse()))
		observe.IncEviction("pool_exhausted")
		s.publish(&redisstream.Event{Type: redisstream.EventEvicted, Vehicle: id, Reason: "pool_exhausted", SimTime: w.Time()})
		conn.Disconnect()
		return
	}
	v := s.factory(id, slot, sim.SpawnPose(w.Path(), slot))
	w.AddVehicle(v)
	w.AddAgent(id, conn)
	conn.Start(w)
	observe.SetVehicles(w.VehicleCount())
	s.publish(&redisstream.Event{Type: redisstream.EventCarLoaded, Vehicle: id, Slot: slot, SimTime: w.Time()})
}

func (s *Spawner) startingLine(id string, simTime float64) {
	s.publish(&redisstream.Event{Type: redisstream.EventStartingLine, Vehicle: id, SimTime: simTime})
}

func (s *Spawner) publish(e *redisstream.Event) {
	if s.events == nil {
		return
	}
	s.events.Offer(e)
}
