package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/dumfing/skirmish/internal/api"
	"github.com/dumfing/skirmish/internal/cache"
	"github.com/dumfing/skirmish/internal/config"
	"github.com/dumfing/skirmish/internal/dispatcher"
	"github.com/dumfing/skirmish/internal/game"
	"github.com/dumfing/skirmish/internal/influx"
	"github.com/dumfing/skirmish/internal/levelmap"
	"github.com/dumfing/skirmish/internal/logging"
	"github.com/dumfing/skirmish/internal/monitor"
	intOtel "github.com/dumfing/skirmish/internal/otel"
	"github.com/dumfing/skirmish/internal/round"
	"github.com/dumfing/skirmish/internal/server"
	"github.com/dumfing/skirmish/internal/worker"
	"github.com/dumfing/skirmish/internal/world"
)

// build info - set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"
)

const meterName = "github.com/dumfing/skirmish/cmd/skirmish_server"

var (
	configDir = pflag.StringP("config", "c", ".", "directory containing "+config.FileName)
	logLevel  = pflag.StringP("log-level", "l", "", "overrides logLevel from the config file")
)

// global variables
var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	// LogOutput is LogFile, or io.Discard when it could not be opened
	LogOutput io.Writer = io.Discard

	// RoundContext holds the round being recorded, added to every log line
	RoundContext *round.Context = round.NewContext()

	PlayerCache *cache.PlayerCache = cache.NewPlayerCache()
	LevelCache  *cache.LevelCache  = cache.NewLevelCache()
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [serve | setupdb | getjson <roundID...> | migratebackups]\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()

	setup()

	args := pflag.Args()
	command := "serve"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = serve()
	case "setupdb":
		err = setupDB()
	case "getjson":
		if len(args) == 0 {
			err = errors.New("no round IDs provided")
			break
		}
		err = getJSON(args)
	case "migratebackups":
		err = migrateBackups()
	default:
		pflag.Usage()
		err = fmt.Errorf("unknown command %q", command)
	}

	if err != nil {
		Logger.Error("Command failed", "command", command, "error", err)
		shutdown()
		os.Exit(1)
	}
	shutdown()
}

// setup loads the config and builds the logging stack. Logging starts on
// stderr so config errors are visible, then moves to the session log file.
func setup() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	if *logLevel != "" {
		viper.Set("logLevel", *logLevel)
	}
	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", *configDir)
	}

	LogFilePath = logging.LogFilePath(viper.GetString("logsDir"), logging.ServiceName, SessionStartTime)
	var err error
	LogFile, err = logging.OpenLogFile(LogFilePath)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	} else {
		LogOutput = LogFile
	}

	otelCfg := config.GetOTelConfig()
	OTelProvider, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    LogOutput,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		OTelProvider, _ = intOtel.New(intOtel.Config{})
	} else if otelCfg.Enabled {
		Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
	}

	var extra []slog.Handler
	if viper.GetBool("graylog.enabled") {
		h, err := logging.NewGraylogHandler(viper.GetString("graylog.address"), viper.GetString("logLevel"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			extra = append(extra, h)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Context = RoundContext.LogAttrs
	SlogManager.Setup(io.MultiWriter(os.Stdout, LogOutput), viper.GetString("logLevel"), otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", LogFilePath, "version", Version, "build", BuildDate)

	sentryCfg := config.GetSentryConfig()
	if sentryCfg.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryCfg.DSN,
			Environment: sentryCfg.Environment,
			SampleRate:  sentryCfg.SampleRate,
			Release:     logging.ServiceName + "@" + Version,
		})
		if err != nil {
			Logger.Error("Failed to initialize Sentry", "error", err)
		} else {
			Logger.Info("Sentry initialized", "environment", sentryCfg.Environment)
		}
	}
}

// shutdown flushes crash reports and telemetry and closes the log file.
func shutdown() {
	sentry.Flush(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("OTel shutdown failed", "error", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

// serve runs the game server until SIGINT or SIGTERM.
func serve() error {
	serverCfg := config.GetServerConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level, err := levelmap.Load(serverCfg.MapPath)
	if err != nil {
		return err
	}
	Logger.Info("Level loaded", "level", level.Name(), "checksum", fmt.Sprintf("%016x", level.Checksum()))

	influxManager := connectInflux(ctx)
	tickMetrics, err := intOtel.NewTickMetrics(OTelProvider.Meter(meterName))
	if err != nil {
		Logger.Warn("Tick metrics unavailable", "error", err)
	}

	zl := logging.NewZerolog(LogOutput, viper.GetString("logLevel"))
	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(zl), OTelProvider.Meter(dispatcher.InstrumentationName))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	storageCfg := config.GetStorageConfig()
	backend, err := createStorageBackend(storageCfg, serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	workerManager := worker.NewManager(worker.Dependencies{
		LogManager:  SlogManager,
		Influx:      influxManager,
		TickMetrics: tickMetrics,
		ServerName:  serverCfg.Name,
	}, backend)
	workerManager.RegisterHandlers(eventDispatcher)
	Logger.Debug("Worker handlers registered with dispatcher", "commands", eventDispatcher.Commands())

	recorder := &roundRecorder{
		worker:  workerManager,
		backend: backend,
		uploads: newUploadClient(ctx),
		cfg:     serverCfg,
		level:   level.Describe(),
	}

	gameCfg := game.DefaultConfig()
	gameCfg.ServerName = serverCfg.Name
	gameCfg.MaxPlayers = serverCfg.MaxPlayers
	gameCfg.TickRate = serverCfg.TickRate
	gameCfg.BroadcastEvery = serverCfg.BroadcastEvery

	w := world.New(worldOptions(level, serverCfg)...)
	srv := server.New(
		serverConfig(serverCfg),
		w,
		gameCfg,
		Logger,
		game.WithRecorder(workerManager),
		game.WithStateHook(recorder.onStateChange),
	)
	recorder.game = srv.Game()

	monitorService := monitor.NewService(monitor.Dependencies{
		DB:           backendDB(backend),
		LogManager:   SlogManager,
		RoundContext: RoundContext,
		Recording:    workerManager,
		Queues:       backendQueues(backend),
		Clients:      srv.ClientCount,
		EventQueue:   srv.Game().QueueDepth,
		Metrics:      OTelProvider.Snapshot,
		StatusDir:    viper.GetString("logsDir"),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Status monitor not started", "error", err)
	}

	runErr := srv.Run(ctx)
	Logger.Info("Shutting down...")

	monitorService.Stop()
	recorder.wait()
	closeErr := workerManager.Close()
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Warn("Influx close failed", "error", err)
		}
	}
	return errors.Join(runErr, closeErr)
}

// connectInflux returns nil when influx is disabled or unreachable.
func connectInflux(ctx context.Context) *influx.Manager {
	cfg := config.GetInfluxConfig()
	backupPath := filepath.Join(viper.GetString("logsDir"), fmt.Sprintf("influx_backup_%s.log.gz", SessionStartTime.Format("20060102_150405")))
	m := influx.NewManager(influx.Config{
		Enabled:  cfg.Enabled,
		Protocol: cfg.Protocol,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Token:    cfg.Token,
		Org:      cfg.Org,
	}, logging.NewZerolog(LogOutput, viper.GetString("logLevel")), backupPath)

	if err := m.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			Logger.Error("Failed to connect to InfluxDB", "error", err)
		}
		return nil
	}
	Logger.Info("Connected to InfluxDB", "host", cfg.Host)
	return m
}

// newUploadClient returns nil unless an API key is configured.
func newUploadClient(ctx context.Context) *api.Client {
	key := viper.GetString("api.apiKey")
	if key == "" {
		return nil
	}
	c := api.New(viper.GetString("api.serverUrl"), key)
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Healthcheck(hctx); err != nil {
		Logger.Warn("Replay site not reachable, uploads may fail", "error", err)
	}
	return c
}

func worldOptions(level *levelmap.Map, cfg config.ServerConfig) []world.Option {
	phys := config.GetPhysicsConfig()
	opts := []world.Option{
		world.WithMap(level),
		world.WithFriendlyFire(cfg.FriendlyFire),
		world.WithPhysics(world.Physics{
			WalkSpeed:        phys.WalkSpeed,
			JumpPower:        phys.JumpPower,
			ProjectileSpeed:  phys.ProjectileSpeed,
			ProjectileCap:    phys.ProjectileCap,
			MaxLifetime:      phys.MaxLifetime,
			ProjectileDamage: phys.ProjectileDamage,
		}),
	}
	if phys.ResetCollisionFlags {
		opts = append(opts, world.WithResetCollisionFlags())
	}
	return opts
}

func serverConfig(cfg config.ServerConfig) server.Config {
	sc := server.DefaultConfig()
	if cfg.Addr != "" {
		sc.Addr = cfg.Addr
	}
	if cfg.UDPAddr != "" {
		sc.UDPAddr = cfg.UDPAddr
	}
	if cfg.Path != "" {
		sc.Path = cfg.Path
	}
	if cfg.SendBuffer > 0 {
		sc.SendBuffer = cfg.SendBuffer
	}
	sc.MinPlayers = cfg.MinPlayers
	sc.CountdownSeconds = cfg.CountdownSeconds
	if cfg.RestartDelay > 0 {
		sc.RestartDelay = cfg.RestartDelay
	}
	return sc
}
