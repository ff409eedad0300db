// Command server runs the territorial conflict engine: it restores state
// from the storage mirror, serves observers over WebSocket, and drives the
// conflict and economy ticks until shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/borderwars/server/internal/broadcast"
	"github.com/borderwars/server/internal/config"
	"github.com/borderwars/server/internal/database"
	"github.com/borderwars/server/internal/dispatcher"
	"github.com/borderwars/server/internal/game"
	"github.com/borderwars/server/internal/influx"
	"github.com/borderwars/server/internal/logging"
	"github.com/borderwars/server/internal/monitor"
	intOtel "github.com/borderwars/server/internal/otel"
	"github.com/borderwars/server/internal/parser"
	"github.com/borderwars/server/internal/scheduler"
	"github.com/borderwars/server/internal/storage"
	"github.com/borderwars/server/internal/storage/gormstore"
	"github.com/borderwars/server/internal/worker"
)

var (
	Version   = "0.0.1"
	BuildDate = "unknown"

	ServerName = "borderwars"
)

func main() {
	configDir := flag.String("config", ".", "directory containing borderwars.cfg.json")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	sessionStart := time.Now()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(os.Stdout, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		_ = os.MkdirAll(logsDir, 0755)
	}
	logFilePath := logging.LogFilePath(logsDir, ServerName, sessionStart)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
		logFile = nil
	}

	var otelProvider *intOtel.Provider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && logFile != nil {
		otelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if otelProvider != nil {
		otelLogProvider = otelProvider.LoggerProvider()
	}
	var logOut io.Writer = os.Stdout
	if logFile != nil {
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	slogManager.Setup(logOut, viper.GetString("logLevel"), otelLogProvider)
	logger = slogManager.Logger()
	logger.Info("Server starting", "version", Version, "buildDate", BuildDate, "logFile", logFilePath)

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	// Database, with sqlite fallback when postgres is unreachable.
	dbManager := database.NewManager(zl)
	dbManager.SqliteFilePath = filepath.Join(logsDir, fmt.Sprintf("%s_%s.db", ServerName, sessionStart.Format("20060102_150405")))
	if err := dbManager.Connect(); err != nil {
		logger.Warn("Database unavailable, conflict state will not be mirrored", "error", err)
	}

	storageCfg := config.GetStorage()
	if storageCfg.Type == "gorm" && !dbManager.IsValid {
		logger.Warn("Falling back to memory storage, database is not valid")
		storageCfg.Type = "memory"
	}
	backend, err := storage.NewBackend(storageCfg, dbManager, zl, gormstore.DefaultFlushInterval)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage backend: %w", err)
	}

	influxManager := influx.NewManager(zl, filepath.Join(logsDir, "influx_backup.gz"))
	if err := influxManager.Connect(); err != nil {
		logger.Warn("InfluxDB disabled", "error", err)
		influxManager = nil
	}

	// Game stack: hub <- recording sink <- engine -> worker -> backend.
	hub := broadcast.NewHub(logger)
	workerManager := worker.NewManager(worker.Dependencies{
		ParserService: parser.New(logger),
		Logger:        logger,
	}, backend)

	engine := game.NewEngine(gameConfig(), game.Dependencies{
		Sink:     worker.NewRecordingSink(hub, backend, logger),
		Recorder: workerManager,
		Logger:   logger,
	})
	workerManager.SetEngine(engine)

	if snap, found, err := backend.LoadSnapshot(); err != nil {
		logger.Error("Failed to load snapshot", "error", err)
	} else if found {
		if err := engine.Restore(snap); err != nil {
			logger.Error("Failed to restore snapshot", "error", err)
		} else {
			logger.Info("Restored state from snapshot",
				"countries", len(snap.Countries),
				"players", len(snap.Players),
				"wars", len(snap.Wars),
				"pushes", len(snap.Pushes))
		}
	}

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(zl))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	workerManager.RegisterHandlers(eventDispatcher)

	tickService := scheduler.NewService(scheduler.Dependencies{
		Engine:           engine,
		Logger:           logger,
		ConflictInterval: viper.GetDuration("game.conflictTickInterval"),
		EconomyInterval:  viper.GetDuration("game.economyTickInterval"),
	})
	tickService.Start()

	monitorService := monitor.NewService(monitor.Dependencies{
		Hub:             hub,
		Engine:          engine,
		Worker:          workerManager,
		Scheduler:       tickService,
		Sink:            hub,
		Influx:          influxManager,
		DB:              dbManager.DB,
		Logger:          logger,
		ServerName:      ServerName,
		IsDatabaseValid: func() bool { return dbManager.IsValid },
	})
	if err := monitorService.Start(); err != nil {
		logger.Error("Failed to start monitor", "error", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", broadcast.Handler(hub, eventDispatcher, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    viper.GetString("listenAddr"),
		Handler: mux,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening for observers", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tickService.Stop()
	monitorService.Stop()
	_ = srv.Shutdown(shutdownCtx)
	hub.Close()

	if err := backend.ExportSnapshot(engine.Snapshot()); err != nil {
		logger.Error("Failed to export final snapshot", "error", err)
	}
	if err := backend.Close(); err != nil {
		logger.Error("Failed to close storage backend", "error", err)
	}
	if influxManager != nil {
		influxManager.Close()
	}
	if err := dbManager.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to flush logs", "error", err)
	}
	if otelProvider != nil {
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down OTel provider", "error", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}

// gameConfig builds the engine tunables from the loaded config.
func gameConfig() game.Config {
	return game.Config{
		PushThresholdMeters:    config.GetFloat("game.pushThresholdMeters"),
		PushCost:               int64(config.GetInt("game.pushCost")),
		WarDeclarationCooldown: config.GetDuration("game.warDeclarationCooldown"),
		PushStartCooldown:      config.GetDuration("game.pushStartCooldown"),
		MovementCooldown:       config.GetDuration("game.movementCooldown"),
		MinPushSpeed:           config.GetFloat("game.minPushSpeed"),
		MaxPushSpeed:           config.GetFloat("game.maxPushSpeed"),
		MinResistance:          config.GetFloat("game.minResistance"),
	}
}
