package transport

import (
	"sync"
	"sync/atomic"

	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
)

const (
	SessionContextUnClosed = iota
	SessionContextClosed
)

// Session 传输层统一的会话管理接口
// 负责底层连接的生命周期管理和数据传输
type Session interface {
	ID() string
	RemoteAddr() string
	Send(*protocol.Message) error // 非阻塞，缓冲满时返回 ErrBackpressure
	Close() error
}

// SessionContext 交给业务层的会话句柄，关闭后拒绝发送
type SessionContext struct {
	Id         string
	RemoteAddr string
	sess       Session

	closed    int32
	closeOnce sync.Once
}

func NewSessionContext(s Session) *SessionContext {
	return &SessionContext{Id: s.ID(), RemoteAddr: s.RemoteAddr(), sess: s}
}

func (sc *SessionContext) ID() string { return sc.Id }

func (sc *SessionContext) Send(m *protocol.Message) error {
	if atomic.LoadInt32(&sc.closed) == SessionContextClosed {
		return ErrSessionClosed
	}
	return sc.sess.Send(m)
}

func (sc *SessionContext) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		atomic.StoreInt32(&sc.closed, SessionContextClosed)
		err = sc.sess.Close()
	})
	return err
}

// Closed 是否已关闭
func (sc *SessionContext) Closed() bool {
	return atomic.LoadInt32(&sc.closed) == SessionContextClosed
}

// outbox 会话的发送缓冲。Send 只编码并入队，由写 goroutine 落到网络。
type outbox struct {
	codec     protocol.MessageCodec
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

func newOutbox(codec protocol.MessageCodec, size int) *outbox {
	if size <= 0 {
		size = defaultOutBuffer
	}
	return &outbox{
		codec:  codec,
		out:    make(chan []byte, size),
		closed: make(chan struct{}),
	}
}

// send 非阻塞写入输出缓冲，缓冲已满时丢弃并返回 ErrBackpressure
func (o *outbox) send(m *protocol.Message) error {
	data, err := o.codec.Encode(m)
	if err != nil {
		return err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	select {
	case <-o.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case o.out <- data:
		return nil
	default:
		observe.IncDropped("backpressure")
		return ErrBackpressure
	}
}

// close 关闭后 outgoing 通道被关闭，写 goroutine 随之退出
func (o *outbox) close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		close(o.closed)
		close(o.out)
		o.mu.Unlock()
	})
}

func (o *outbox) outgoing() <-chan []byte { return o.out }

func (o *outbox) done() <-chan struct{} { return o.closed }
