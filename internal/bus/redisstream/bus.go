// Package redisstream 把车辆生命周期事件发布到 Redis Stream，供外部调度器或看板消费。
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// 生命周期事件类型
const (
	EventConnected    = "vehicle_connected"
	EventCarLoaded    = "car_loaded"
	EventStartingLine = "starting_line"
	EventEvicted      = "vehicle_evicted"
	EventDisconnected = "vehicle_disconnected"
)

// Event 一条生命周期事件
type Event struct {
	Type    string    `json:"type"`
	When    time.Time `json:"when"`
	Vehicle string    `json:"vehicle"`
	Slot    int       `json:"slot,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	SimTime float64   `json:"sim_time,omitempty"`
}

// Bus Redis Stream 的发布/消费端
type Bus struct {
	cli    *redis.Client
	stream string
	group  string
}

func New(addr string, db int, stream, group string) *Bus {
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Bus{cli: cli, stream: stream, group: group}
}

// Ping 检查 Redis 是否可达
func (b *Bus) Ping(ctx context.Context) error {
	return b.cli.Ping(ctx).Err()
}

// EnsureGroup 创建消费组，stream 不存在时一并创建；组已存在时返回 BUSYGROUP，忽略
func (b *Bus) EnsureGroup(ctx context.Context) error {
	err := b.cli.XGroupCreateMkStream(ctx, b.stream, b.group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, e *Event) error {
	values, err := encodeEvent(e)
	if err != nil {
		return err
	}
	return b.cli.XAdd(ctx, &redis.XAddArgs{Stream: b.stream, Values: values}).Err()
}

// Handler 处理一条事件，返回的错误不影响 ACK
type Handler func(ctx context.Context, e *Event) error

// Consume 以消费组读取事件并交给 handler，ctx 取消时返回
func (b *Bus) Consume(ctx context.Context, consumer string, handler Handler) error {
	for {
		res, err := b.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    100,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// 临时错误，等待后重试
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, str := range res {
			if ids := deliver(ctx, str.Messages, handler); len(ids) > 0 {
				_ = b.cli.XAck(ctx, b.stream, b.group, ids...).Err()
			}
		}
	}
}

// deliver 解码并交付一批消息，返回需要 ACK 的 ID，无法解码的条目同样 ACK
func deliver(ctx context.Context, msgs []redis.XMessage, handler Handler) []string {
	ids := make([]string, 0, len(msgs))
	for _, xmsg := range msgs {
		if e, err := decodeEvent(xmsg.Values); err == nil {
			_ = handler(ctx, e)
		}
		ids = append(ids, xmsg.ID)
	}
	return ids
}

func (b *Bus) Close() error { return b.cli.Close() }

func encodeEvent(e *Event) (map[string]any, error) {
	if e == nil || e.Type == "" {
		return nil, fmt.Errorf("redisstream: event without type")
	}
	if e.When.IsZero() {
		e.When = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return map[string]any{"type": e.Type, "data": payload}, nil
}

func decodeEvent(values map[string]any) (*Event, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("redisstream: entry without data")
	}
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
