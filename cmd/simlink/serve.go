package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hongjun500/simlink/internal/bus/redisstream"
	"github.com/hongjun500/simlink/internal/carconn"
	"github.com/hongjun500/simlink/internal/config"
	"github.com/hongjun500/simlink/internal/dispatch"
	"github.com/hongjun500/simlink/internal/mainthread"
	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
	"github.com/hongjun500/simlink/internal/spawner"
	"github.com/hongjun500/simlink/internal/transport"
	"github.com/hongjun500/simlink/pkg/logger"
)

var (
	serveConfigPath  string
	serveTCPAddr     string
	serveWSAddr      string
	serveHTTPAddr    string
	serveFraming     string
	serveCodec       string
	serveExtended    bool
	serveSynchronous bool
	serveMaxVehicles int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation and accept controller connections",
	Long:  "serve runs the simulation tick loop and spawns one vehicle per controller connection.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !cmd.Flags().Changed("log-level") {
			logger.SetLevel(cfg.LogLevel)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveConfigPath, "config", "c", "", "path to YAML configuration")
	f.StringVar(&serveTCPAddr, "tcp", "", "TCP listen address")
	f.StringVar(&serveWSAddr, "ws", "", "WebSocket listen address")
	f.StringVar(&serveHTTPAddr, "http", "", "metrics and step endpoint address")
	f.StringVar(&serveFraming, "framing", "", "TCP framing: line|length")
	f.StringVar(&serveCodec, "codec", "", "wire codec: json|protobuf")
	f.BoolVar(&serveExtended, "extended", false, "send extended telemetry and honour set_position")
	f.BoolVar(&serveSynchronous, "sync", false, "start in synchronous step mode")
	f.IntVar(&serveMaxVehicles, "max-vehicles", 0, "maximum concurrent vehicles (0 = unlimited)")
}

// applyServeFlags 只覆盖显式给出的参数
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("tcp") {
		cfg.TCPAddr = serveTCPAddr
	}
	if f.Changed("ws") {
		cfg.WSAddr = serveWSAddr
	}
	if f.Changed("http") {
		cfg.HTTPAddr = serveHTTPAddr
	}
	if f.Changed("framing") {
		cfg.Framing = serveFraming
	}
	if f.Changed("codec") {
		cfg.Codec = serveCodec
	}
	if f.Changed("extended") {
		cfg.ExtendedTelemetry = serveExtended
	}
	if f.Changed("sync") {
		cfg.Synchronous = serveSynchronous
	}
	if f.Changed("max-vehicles") {
		cfg.MaxVehicles = serveMaxVehicles
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.L()
	overflow, err := mainthread.ParsePolicy(cfg.QueueOverflow)
	if err != nil {
		return err
	}
	mode, err := dispatch.ParseMode(cfg.DispatchMode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	world := sim.NewWorld(sim.Options{
		TickRate:      cfg.TickRate,
		QueueCapacity: cfg.QueueCapacity,
		Overflow:      overflow,
		StepMode:      sim.StepMode{Synchronous: cfg.Synchronous, TickDuration: cfg.TimeStep},
		Metrics:       observe.QueueMetrics{},
		Logger:        logger.Named("world"),
	})
	scene := &sim.TrackScene{
		Options: sim.TrackOptions{
			Style:         cfg.Track.Style,
			Seed:          cfg.Track.Seed,
			TurnIncrement: cfg.Track.TurnIncrement,
			Nodes:         cfg.Track.Nodes,
			Radius:        cfg.Track.Radius,
		},
		Log: logger.Named("scene"),
	}
	scene.Load(world)
	world.SetApp(sim.QuitFunc(func() {
		log.Info("quit_app")
		cancel()
	}))

	g, gctx := errgroup.WithContext(ctx)

	var events spawner.Events
	if cfg.Redis.Addr != "" {
		bus := redisstream.New(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Stream, cfg.Redis.Group)
		defer bus.Close()
		if err := bus.Ping(ctx); err != nil {
			log.Warn("redis_unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		async := redisstream.NewAsync(bus, 256, logger.Named("events"))
		events = async
		g.Go(func() error { return async.Run(gctx) })
	}

	sp := spawner.New(world, sim.NewHeadlessVehicle, spawner.Options{
		Mode: mode,
		Conn: carconn.Options{
			TelemetryFPS:      cfg.TelemetryFPS,
			ExtendedTelemetry: cfg.ExtendedTelemetry,
			StallTimeout:      cfg.StallTimeout,
			StallEpsilon:      cfg.StallEpsilon,
		},
		MaxVehicles: cfg.MaxVehicles,
	}, events, logger.Named("spawner"))
	gw := transport.NewManagedGateway(sp)
	topt := transport.Options{
		OutBuffer:    cfg.OutBuffer,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxFrameSize: cfg.MaxFrameSize,
		Framing:      cfg.Framing,
	}

	g.Go(func() error { return world.Run(gctx) })

	var servers []transport.Transport
	if cfg.TCPAddr != "" {
		codec, err := protocol.NewCodec(cfg.Codec)
		if err != nil {
			return err
		}
		servers = append(servers, &transport.TCPServer{Codec: codec})
	}
	if cfg.WSAddr != "" {
		codec, err := protocol.NewCodec(cfg.Codec)
		if err != nil {
			return err
		}
		servers = append(servers, &transport.WebSocketServer{Codec: codec})
	}
	for _, srv := range servers {
		addr := cfg.TCPAddr
		if srv.Name() == transport.WebSocket {
			addr = cfg.WSAddr
		}
		g.Go(func() error { return srv.Start(gctx, addr, gw, topt) })
	}
	if cfg.HTTPAddr != "" {
		g.Go(func() error { return observe.StartHTTP(gctx, cfg.HTTPAddr, world) })
	}

	log.Info("simlink_start",
		zap.String("tcp", cfg.TCPAddr),
		zap.String("ws", cfg.WSAddr),
		zap.String("codec", cfg.Codec),
		zap.String("framing", cfg.Framing),
		zap.String("dispatch_mode", mode.String()),
		zap.Bool("synchronous", cfg.Synchronous))

	err = g.Wait()
	gw.GetSessionManager().CloseAll()
	log.Info("simlink_stop", zap.Uint64("ticks", world.Ticks()), zap.Float64("sim_time", world.Time()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
