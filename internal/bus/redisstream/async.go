package redisstream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/observe"
)

// Publisher 事件的同步发布端，*Bus 实现该接口
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// Async 在独立 goroutine 上发布事件。Offer 从不阻塞 tick，缓冲满时丢弃。
type Async struct {
	pub     Publisher
	ch      chan *Event
	timeout time.Duration
	log     *zap.Logger
}

func NewAsync(pub Publisher, size int, log *zap.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Async{pub: pub, ch: make(chan *Event, size), timeout: 2 * time.Second, log: log}
}

// Offer 投递一条事件，缓冲已满时返回 false
func (a *Async) Offer(e *Event) bool {
	if a == nil || e == nil {
		return false
	}
	if e.When.IsZero() {
		e.When = time.Now()
	}
	select {
	case a.ch <- e:
		return true
	default:
		observe.IncDropped("event_backpressure")
		a.log.Debug("event_dropped", zap.String("type", e.Type), zap.String("vehicle", e.Vehicle))
		return false
	}
}

// Run 发布缓冲中的事件直到 ctx 结束
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-a.ch:
			pctx, cancel := context.WithTimeout(ctx, a.timeout)
			if err := a.pub.Publish(pctx, e); err != nil {
				a.log.Warn("event_publish_error", zap.String("type", e.Type), zap.Error(err))
			}
			cancel()
		}
	}
}
