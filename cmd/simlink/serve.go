package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wro-sim/simlink/internal/api"
	"github.com/wro-sim/simlink/internal/arena"
	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/internal/controller"
	"github.com/wro-sim/simlink/internal/dispatcher"
	"github.com/wro-sim/simlink/internal/frame"
	"github.com/wro-sim/simlink/internal/geo"
	"github.com/wro-sim/simlink/internal/influx"
	"github.com/wro-sim/simlink/internal/logging"
	"github.com/wro-sim/simlink/internal/monitor"
	intOtel "github.com/wro-sim/simlink/internal/otel"
	"github.com/wro-sim/simlink/internal/run"
	"github.com/wro-sim/simlink/internal/sensor"
	"github.com/wro-sim/simlink/internal/server"
	"github.com/wro-sim/simlink/internal/sim"
	"github.com/wro-sim/simlink/internal/storage"
	"github.com/wro-sim/simlink/internal/vehicle"
	"github.com/wro-sim/simlink/internal/worker"
	"github.com/wro-sim/simlink/pkg/core"
	"github.com/wro-sim/simlink/pkg/streaming"
)

const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	configDir  string
	addr       string
	controller string
	runName    string
}

func parseServeFlags(args []string) (serveOptions, error) {
	var o serveOptions
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&o.configDir, "config", ".", "directory holding "+config.FileName)
	fs.StringVar(&o.addr, "addr", "", "listen address, overrides server.addr")
	fs.StringVar(&o.controller, "controller", "", "remote or manual, overrides sim.controller")
	fs.StringVar(&o.runName, "name", "", "run name, overrides runName")
	return o, fs.Parse(args)
}

func runServe(args []string) error {
	opts, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	sessionStart := time.Now()

	configErr := config.Load(opts.configDir)
	if configErr != nil {
		config.SetDefaults()
	}

	logCfg := config.GetLogConfig()
	if err := os.MkdirAll(logCfg.Dir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logCfg.Dir, AppName, sessionStart)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	logOut := io.MultiWriter(os.Stdout, logFile)

	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: BuildVersion,
		InstanceID:     sessionStart.Format(logging.SessionStamp),
		BatchTimeout:   otelCfg.BatchTimeout,
		LogWriter:      logFile,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing OTel: %w", err)
	}

	runCtx := run.NewContext()
	logOpts := []logging.Option{
		logging.WithFormat(logCfg.Format),
		logging.WithSession(runCtx),
	}
	if logCfg.GraylogEnabled {
		gw, err := gelf.NewWriter(logCfg.GraylogAddress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			defer gw.Close()
			logOpts = append(logOpts, logging.WithGELF(gw))
		}
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logOut, logCfg.Level, otelProvider.LoggerProvider(), logOpts...)
	logger := slogManager.Logger()
	slog.SetDefault(logger)
	zl := logging.NewZerolog(logOut, logCfg.Level)

	if configErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", configErr)
	}
	logger.Info("Starting", "version", BuildVersion, "build", BuildDate, "log", logPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := assemble(ctx, opts, sessionStart, logger, runCtx, zl)
	if err != nil {
		return err
	}

	err = a.serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.shutdown(shutdownCtx)
	for sink, n := range slogManager.SinkFailures() {
		if n > 0 {
			logger.Warn("Log sink dropped records", "sink", sink, "records", n)
		}
	}
	if ferr := otelProvider.EndRun(shutdownCtx); ferr != nil {
		fmt.Fprintf(os.Stderr, "flushing run logs: %v\n", ferr)
	}
	if serr := otelProvider.Shutdown(shutdownCtx); serr != nil {
		fmt.Fprintf(os.Stderr, "shutting down OTel: %v\n", serr)
	}
	return err
}

// app is one assembled simulator session.
type app struct {
	logger     *slog.Logger
	run        *core.Run
	runCtx     *run.Context
	keys       *controller.KeyState
	server     *server.Server
	runner     *sim.Runner
	dispatcher *dispatcher.Dispatcher
	backend    storage.Backend
	workers    *worker.Manager
	influx     *influx.Manager
	monitor    *monitor.Service
}

func assemble(ctx context.Context, opts serveOptions, sessionStart time.Time, logger *slog.Logger, runCtx *run.Context, zl zerolog.Logger) (*app, error) {
	a := &app{logger: logger, runCtx: runCtx}

	serverCfg := config.GetServerConfig()
	if opts.addr != "" {
		serverCfg.Addr = opts.addr
	}
	simCfg := config.GetSimConfig()
	if opts.controller != "" {
		simCfg.Controller = opts.controller
	}
	if opts.runName != "" {
		simCfg.RunName = opts.runName
	}

	params, spawn, err := vehicleFromConfig(config.GetVehicleConfig())
	if err != nil {
		return nil, err
	}
	v := vehicle.New(params, spawn)

	layout := frame.NewLayout(frame.ImageWidth, frame.ImageHeight, serverCfg.IncludeOrientation)
	sensors := sensor.New(layout)
	logLayout(logger, layout)

	targets := &controller.Targets{}
	var ctrl controller.Controller
	switch simCfg.Controller {
	case "remote", "":
		ctrl = controller.NewRemote(targets)
	case "manual":
		a.keys = controller.NewKeyState()
		ctrl = controller.NewManual(a.keys)
	default:
		return nil, fmt.Errorf("unknown controller %q", simCfg.Controller)
	}

	d, err := dispatcher.New(logger)
	if err != nil {
		return nil, err
	}
	a.dispatcher = d

	apiCfg := config.GetAPIConfig()
	backend, err := createStorageBackend(config.GetStorageConfig(), storageEnv{
		Logger:       logger,
		Zerolog:      zl,
		LogsDir:      config.GetLogConfig().Dir,
		SessionStart: sessionStart,
		DB:           config.GetDBConfig(),
		APIServerURL: apiCfg.ServerURL,
		APIKey:       apiCfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		logger.Error("Failed to initialize storage backend, recording disabled", "error", err)
		backend = storage.Nop{}
	}
	a.backend = backend

	deps := worker.Dependencies{RunContext: runCtx, Logger: logger}
	if ic := config.GetInfluxConfig(); ic.Enabled {
		m := influx.NewManager(ic, zl)
		if err := m.Connect(ctx); err != nil {
			logger.Warn("InfluxDB disabled", "error", err)
		} else {
			a.influx = m
			deps.Telemetry = m
		}
	}
	if apiCfg.UploadOnEnd {
		client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
		if err := client.Healthcheck(ctx); err != nil {
			logger.Warn("Dashboard unreachable, uploads may fail", "url", apiCfg.ServerURL, "error", err)
		}
		deps.Uploader = client
	}
	a.workers = worker.NewManager(deps, backend)
	a.workers.RegisterHandlers(d)

	srv, err := server.New(server.Config{
		Addr:           serverCfg.Addr,
		ReadBufferSize: serverCfg.ReadBufferSize,
		WriteTimeout:   serverCfg.WriteTimeout,
		MaxPeers:       serverCfg.MaxPeers,
	}, targets,
		server.WithLogger(logger),
		server.WithPeerHook(trackPeers(runCtx, worker.PeerHook(d))),
		server.WithControlHook(worker.ControlHook(d, time.Now)),
	)
	if err != nil {
		return nil, err
	}
	a.server = srv

	simOpts := []sim.Option{sim.WithLogger(logger), sim.WithPublisher(d)}
	arenaCfg := config.GetArenaConfig()
	var wkt string
	if arenaCfg.Enabled {
		host, err := arenaFromConfig(arenaCfg, layout)
		if err != nil {
			return nil, err
		}
		wkt = host.WKT()
		simOpts = append(simOpts, sim.WithHost(host))
	}
	if gc := config.GetGeoConfig(); gc.Enabled {
		proj, err := geo.NewProjector(gc.OriginLat, gc.OriginLon)
		if err != nil {
			return nil, fmt.Errorf("geo origin: %w", err)
		}
		simOpts = append(simOpts, sim.WithProjector(proj))
	}
	runner, err := sim.New(sim.Config{TickRate: simCfg.TickRate, RecordEvery: simCfg.RecordEvery}, v, ctrl, sensors, srv, simOpts...)
	if err != nil {
		return nil, err
	}
	a.runner = runner

	r := run.New(simCfg.RunName, simCfg.Tag)
	r.StartTime = sessionStart
	r.ControlMode = string(params.Mode)
	r.TickRate = simCfg.TickRate
	r.FrameSize = layout.Size()
	r.HasOrientation = layout.HasOrientation()
	r.Arena = wkt
	r.Vehicle = core.VehicleParams{
		Acceleration:     params.Acceleration,
		StopDeceleration: params.StopDeceleration,
		MaxSpeed:         params.MaxSpeed,
		MaxSteeringAngle: params.MaxSteeringAngle,
		WheelBase:        params.WheelBase,
		TrackWidth:       params.TrackWidth,
		SteeringRate:     params.SteeringRate,
	}
	r.Version = BuildVersion
	a.run = r

	monCfg := config.GetMonitorConfig()
	monDeps := monitor.Dependencies{
		Sim:        runner,
		Peers:      srv,
		RunContext: runCtx,
		Controls:   targets,
		Logger:     logger,
		Interval:   monCfg.Interval,
	}
	if monCfg.StatusFile != "" {
		monDeps.StatusFile = filepath.Join(config.GetLogConfig().Dir, monCfg.StatusFile)
	}
	if qs, ok := backend.(monitor.QueueStats); ok {
		monDeps.Queues = qs
	}
	if a.influx != nil {
		monDeps.Perf = a.influx
	}
	a.monitor = monitor.NewService(monDeps)

	return a, nil
}

// logLayout records where each channel sits in the telemetry frame.
func logLayout(logger *slog.Logger, layout frame.Layout) {
	for _, r := range layout.Regions() {
		logger.Debug("Telemetry region", "channel", r.Channel.String(), "offset", r.Offset, "length", r.Length)
	}
	logger.Info("Telemetry frame", "bytes", layout.Size(), "orientation", layout.HasOrientation())
}

// serve starts the run and blocks until ctx is cancelled or the tick loop fails.
func (a *app) serve(ctx context.Context) error {
	if _, err := a.dispatcher.Dispatch(dispatcher.Event{
		Type:      streaming.TypeStartRun,
		Payload:   a.run,
		Timestamp: a.run.StartTime,
	}); err != nil {
		a.logger.Error("Run not recorded", "error", err)
	}

	if err := a.server.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("Run started", "run", a.run.ID, "frameSize", a.run.FrameSize, "tickRate", a.run.TickRate)

	if err := a.monitor.Start(ctx); err != nil {
		a.logger.Warn("Status monitor disabled", "error", err)
	}

	if a.keys != nil {
		a.logger.Info("Manual control: type w/a/s/d (toggle) or +action/-action, one per line")
		go func() {
			if err := readKeys(os.Stdin, a.keys, a.logger); err != nil {
				a.logger.Warn("Key input stopped", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runner.Run(gctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// shutdown stops intake first, then drains recording in order.
func (a *app) shutdown(ctx context.Context) {
	a.logger.Info("Shutting down", "ticks", a.runner.Ticks())
	a.monitor.Stop()
	a.server.Stop()
	a.dispatcher.Close()

	if err := a.workers.EndRun(ctx); err != nil {
		a.logger.Error("Failed to end run", "error", err)
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Error("Failed to close storage backend", "error", err)
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
}

// trackPeers keeps the run context's peer count, stamped on every log
// record, in step with the server before publishing the event.
func trackPeers(runCtx *run.Context, next func(server.PeerEvent)) func(server.PeerEvent) {
	return func(e server.PeerEvent) {
		runCtx.TrackPeer(e.Connected)
		next(e)
	}
}

func vehicleFromConfig(vc config.VehicleConfig) (vehicle.Params, vehicle.State, error) {
	mode, err := vehicle.ParseControlMode(vc.ControlMode)
	if err != nil {
		return vehicle.Params{}, vehicle.State{}, err
	}
	p := vehicle.Params{
		Mode:             mode,
		Acceleration:     vc.Acceleration,
		StopDeceleration: vc.StopDeceleration,
		MaxSpeed:         vc.MaxSpeed,
		MaxSteeringAngle: vc.MaxSteeringAngle,
		WheelBase:        vc.WheelBase,
		TrackWidth:       vc.TrackWidth,
		SteeringRate:     vc.SteeringRate,
		StraightEpsilon:  vc.StraightEpsilon,
		MaxTurningRadius: vc.MaxTurningRadius,
	}
	if err := p.Validate(); err != nil {
		return vehicle.Params{}, vehicle.State{}, err
	}
	spawn := vehicle.State{
		Position: r3.Vec{X: vc.SpawnX, Z: vc.SpawnZ},
		Heading:  vc.SpawnHeading * math.Pi / 180,
	}
	return p, spawn, nil
}

func arenaFromConfig(ac config.ArenaConfig, layout frame.Layout) (*arena.Arena, error) {
	obstacles, err := geo.ParsePolylines(ac.Obstacles)
	if err != nil {
		return nil, fmt.Errorf("arena obstacles: %w", err)
	}
	return arena.New(arena.Config{
		OuterSize:   ac.OuterSize,
		InnerSize:   ac.InnerSize,
		MaxRange:    ac.MaxRange,
		FrontOffset: ac.FrontOffset,
		SideOffset:  ac.SideOffset,
		FillImage:   ac.FillImage,
		Color:       ac.Color,
		Obstacles:   obstacles,
	}, layout)
}
