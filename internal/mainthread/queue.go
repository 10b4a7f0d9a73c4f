// Package mainthread 把 I/O goroutine 上的工作转交给唯一的仿真 goroutine。
// 生产者可并发，消费者只有一个，每个 tick 取空一次。
package mainthread

import (
	"errors"
	"sync"
)

// ErrQueueFull 队列已满且策略为 RejectNew 时 Push 返回
var ErrQueueFull = errors.New("main-thread queue full")

// OverflowPolicy 队列满时 Push 的处理方式
type OverflowPolicy int

const (
	// RejectNew 保留已排队的工作，拒绝新项
	RejectNew OverflowPolicy = iota
	// DropOldest 丢弃队首腾出位置
	DropOldest
)

// ParsePolicy 解析配置中的策略名
func ParsePolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "reject_new", "reject":
		return RejectNew, nil
	case "drop_oldest":
		return DropOldest, nil
	default:
		return RejectNew, errors.New("unknown overflow policy: " + s)
	}
}

func (p OverflowPolicy) String() string {
	if p == DropOldest {
		return "drop_oldest"
	}
	return "reject_new"
}

// Metrics 接收队列深度与溢出通知
type Metrics interface {
	SetQueueDepth(n int)
	IncQueueOverflow(policy string)
}

// Queue 定长环形 FIFO，同一生产者推入的项按推入顺序取出
type Queue[T any] struct {
	mu      sync.Mutex
	data    []T
	head    int
	count   int
	policy  OverflowPolicy
	metrics Metrics
}

// New 容量最小为 1
func New[T any](capacity int, policy OverflowPolicy, metrics Metrics) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		data:    make([]T, capacity),
		policy:  policy,
		metrics: metrics,
	}
}

// Push DropOldest 下总是成功，被挤出的项不会执行
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.data) {
		if q.metrics != nil {
			q.metrics.IncQueueOverflow(q.policy.String())
		}
		if q.policy == RejectNew {
			return ErrQueueFull
		}
		var zero T
		q.data[q.head] = zero
		q.head = (q.head + 1) % len(q.data)
		q.count--
	}
	q.data[(q.head+q.count)%len(q.data)] = item
	q.count++
	q.storeDepthLocked()
	return nil
}

// Drain 按 FIFO 顺序取出全部项并清空队列
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	out := make([]T, q.count)
	var zero T
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.data)
		out[i] = q.data[idx]
		q.data[idx] = zero
	}
	q.head = 0
	q.count = 0
	q.storeDepthLocked()
	return out
}

// Len 当前排队数
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Capacity 队列容量
func (q *Queue[T]) Capacity() int {
	return len(q.data)
}

func (q *Queue[T]) storeDepthLocked() {
	if q.metrics != nil {
		q.metrics.SetQueueDepth(q.count)
	}
}
