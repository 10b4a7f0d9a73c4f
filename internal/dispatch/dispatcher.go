// Package dispatch 按 msg_type 将入站消息路由到处理器。
//
// 处理器分两类：Inline 处理器在 I/O goroutine 上同步执行，只能读取已解析的
// Command 并返回应答；Deferred 处理器返回一个 sim.Task，由仿真 tick 执行。
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrClosed             = errors.New("dispatcher closed")
)

// Mode 决定 Deferred 处理器产生的任务如何执行
type Mode int

const (
	// Deferred 任务进入主线程队列，在下一个 tick 执行
	Deferred Mode = iota
	// Inline 任务在 I/O goroutine 上持有世界锁立即执行
	Inline
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "deferred":
		return Deferred, nil
	case "inline":
		return Inline, nil
	default:
		return Deferred, fmt.Errorf("unknown dispatch mode: %s", s)
	}
}

func (m Mode) String() string {
	if m == Inline {
		return "inline"
	}
	return "deferred"
}

// InlineFunc 无状态处理器，返回的消息（可为 nil）回发给控制端
type InlineFunc func(cmd protocol.Command) (*protocol.Message, error)

// DeferredFunc 返回在 tick 上执行的任务，返回 nil 表示忽略该消息
type DeferredFunc func(cmd protocol.Command) sim.Task

// Handler 二选一：inline 或 deferred
type Handler struct {
	inline   InlineFunc
	deferred DeferredFunc
}

func InlineHandler(fn InlineFunc) Handler     { return Handler{inline: fn} }
func DeferredHandler(fn DeferredFunc) Handler { return Handler{deferred: fn} }

// IsInline 是否为 inline 处理器
func (h Handler) IsInline() bool { return h.inline != nil }

// Sender 回发 inline 处理器的应答
type Sender interface {
	Send(m *protocol.Message) error
}

// TaskSink 任务的执行方，一般是 *sim.World
type TaskSink interface {
	Submit(t sim.Task) error
	Exec(t sim.Task)
}

// Dispatcher 一个连接的处理器表。Reset 之后不再调用任何处理器。
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[protocol.MsgType]Handler
	closed   bool

	mode  Mode
	sink  TaskSink
	reply Sender
	log   *zap.Logger
}

func New(mode Mode, sink TaskSink, reply Sender, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[protocol.MsgType]Handler),
		mode:     mode,
		sink:     sink,
		reply:    reply,
		log:      log,
	}
}

// Register 重复注册同一 msg_type 时替换原处理器；Reset 之后注册无效
func (d *Dispatcher) Register(t protocol.MsgType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.handlers[t] = h
}

// Registered 已注册的处理器
func (d *Dispatcher) Registered(t protocol.MsgType) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[t]
	return h, ok
}

// Mode 当前分发模式
func (d *Dispatcher) Mode() Mode { return d.mode }

// Dispatch 处理一条消息。所有错误都已记录日志，返回值仅供调用方判断，
// 调用方不应因此关闭连接。
func (d *Dispatcher) Dispatch(m *protocol.Message) error {
	task, err := d.dispatch(m)
	if err != nil || task == nil {
		return err
	}
	// 先取世界锁再取读锁，与 tick 中 Disconnect -> Reset 的加锁顺序一致。
	// 持锁期间 Reset 无法开始；Reset 已开始则任务不再执行。
	d.sink.Exec(func(w *sim.World) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return
		}
		task(w)
	})
	return nil
}

// dispatch 在读锁内完成查找、解析与处理器调用。Inline 模式下返回待执行的任务。
func (d *Dispatcher) dispatch(m *protocol.Message) (sim.Task, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	t := m.Type()
	h, ok := d.handlers[t]
	if !ok {
		d.log.Warn("unknown_msg_type", zap.String("msg_type", string(t)))
		observe.IncDropped("unknown_type")
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
	}
	observe.IncMessage(string(t))

	cmd, err := protocol.ParseCommand(m)
	if err != nil {
		d.log.Warn("field_error", zap.String("msg_type", string(t)), zap.Error(err))
		observe.IncDropped("field_error")
		return nil, err
	}

	if h.inline != nil {
		reply, err := h.inline(cmd)
		if err != nil {
			d.log.Warn("handler_error", zap.String("msg_type", string(t)), zap.Error(err))
			return nil, err
		}
		if reply != nil && d.reply != nil {
			if err := d.reply.Send(reply); err != nil {
				d.log.Debug("reply_dropped", zap.String("msg_type", string(reply.Type())), zap.Error(err))
				return nil, err
			}
		}
		return nil, nil
	}

	task := h.deferred(cmd)
	if task == nil {
		return nil, nil
	}
	if d.mode == Inline {
		return task, nil
	}
	if err := d.sink.Submit(task); err != nil {
		d.log.Warn("task_rejected", zap.String("msg_type", string(t)), zap.Error(err))
		observe.IncDropped("queue_full")
		return nil, err
	}
	return nil, nil
}

// Reset 清空处理器表。与进行中的处理器调用互斥，返回后不会再有处理器被调用。
// 已入队的任务不受影响。
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.handlers = make(map[protocol.MsgType]Handler)
}

// Closed 是否已 Reset
func (d *Dispatcher) Closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
