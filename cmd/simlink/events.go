package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hongjun500/simlink/internal/bus/redisstream"
	"github.com/hongjun500/simlink/internal/config"
)

var (
	eventsConfigPath string
	eventsRedisAddr  string
	eventsDB         int
	eventsStream     string
	eventsGroup      string
	eventsConsumer   string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow vehicle lifecycle events from the Redis stream",
	Long:  "events joins the configured consumer group and prints every lifecycle event serve publishes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(eventsConfigPath)
		if err != nil {
			return err
		}
		applyEventsFlags(cmd, &cfg.Redis)
		if cfg.Redis.Addr == "" {
			return errors.New("events: no redis address, set --redis or redis.addr")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus := redisstream.New(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Stream, cfg.Redis.Group)
		defer bus.Close()
		if err := bus.EnsureGroup(ctx); err != nil {
			return fmt.Errorf("events: create group %s: %w", cfg.Redis.Group, err)
		}
		out := cmd.OutOrStdout()
		err = bus.Consume(ctx, eventsConsumer, func(_ context.Context, e *redisstream.Event) error {
			_, err := fmt.Fprintln(out, formatEvent(e))
			return err
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	f := eventsCmd.Flags()
	f.StringVarP(&eventsConfigPath, "config", "c", "", "path to YAML configuration")
	f.StringVar(&eventsRedisAddr, "redis", "", "redis address")
	f.IntVar(&eventsDB, "db", 0, "redis database")
	f.StringVar(&eventsStream, "stream", "", "stream key")
	f.StringVar(&eventsGroup, "group", "", "consumer group")
	f.StringVar(&eventsConsumer, "consumer", defaultConsumer(), "consumer name inside the group")
}

// applyEventsFlags 只覆盖显式给出的参数
func applyEventsFlags(cmd *cobra.Command, r *config.Redis) {
	f := cmd.Flags()
	if f.Changed("redis") {
		r.Addr = eventsRedisAddr
	}
	if f.Changed("db") {
		r.DB = eventsDB
	}
	if f.Changed("stream") {
		r.Stream = eventsStream
	}
	if f.Changed("group") {
		r.Group = eventsGroup
	}
}

func defaultConsumer() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return "simlink-events-" + h
	}
	return "simlink-events"
}

// formatEvent 一行一个事件，空字段省略
func formatEvent(e *redisstream.Event) string {
	var b strings.Builder
	b.WriteString(e.When.UTC().Format(time.RFC3339Nano))
	b.WriteByte(' ')
	b.WriteString(e.Type)
	fmt.Fprintf(&b, " vehicle=%s", e.Vehicle)
	if e.Slot != 0 {
		fmt.Fprintf(&b, " slot=%d", e.Slot)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", e.Reason)
	}
	if e.SimTime != 0 {
		fmt.Fprintf(&b, " sim_time=%.3f", e.SimTime)
	}
	return b.String()
}
