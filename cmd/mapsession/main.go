package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/homepin/mapsession/internal/config"
	"github.com/homepin/mapsession/internal/dispatcher"
	"github.com/homepin/mapsession/internal/logging"
	intOtel "github.com/homepin/mapsession/internal/otel"
	"github.com/homepin/mapsession/internal/util"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "mapsession"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()
	dir := util.TrimQuotes(*configDir)

	sessionStart := time.Now()

	// Initialize slog manager with console output until the config is read
	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(dir); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			logger.Warn("Failed to load config, using defaults!", "error", err)
		} else {
			logger.Error("Invalid config", "error", err)
			return 1
		}
	} else {
		logger.Info("Loaded config", "dir", dir)
	}

	logLevel := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		logger.Error("Failed to create logs dir", "error", err, "path", logsDir)
		return 1
	}

	logFilePath := logging.LogFilePath(logsDir, AppName, sessionStart)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
		return 1
	}
	defer logFile.Close()

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(context.Background(), intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize OTel provider", "error", err)
		otelProvider, _ = intOtel.New(context.Background(), intOtel.Config{})
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
		}
	}()

	var setupOpts []logging.SetupOption
	setupOpts = append(setupOpts, logging.WithServiceName(otelProvider.ServiceName()))
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		gw, err := logging.DialGraylog(graylogCfg.Address)
		if err != nil {
			logger.Warn("Failed to connect to Graylog", "error", err, "address", graylogCfg.Address)
		} else {
			defer gw.Close()
			setupOpts = append(setupOpts, logging.WithGraylog(gw))
		}
	}

	// Re-setup logging with file output and optional OTel
	slogManager.Setup(logFile, logLevel, otelProvider.LoggerProvider(), setupOpts...)
	logger = slogManager.Logger()
	logger.Info("Logging to file", "path", logFilePath, "version", CurrentVersion, "build", BuildDate)

	infraLog := logging.NewZerolog(io.MultiWriter(logFile, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}), logLevel)

	a, err := newApp(logger, infraLog, os.Stdout)
	if err != nil {
		logger.Error("Failed to set up session", "error", err)
		return 1
	}
	defer a.Close()
	slogManager.SetContext(a.logAttrs)
	defer slogManager.SetContext(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan error, 1)
	go func() { loopDone <- a.dispatcher.Run(ctx) }()

	if err := a.start(); err != nil {
		logger.Error("Failed to start session", "error", err)
		return 1
	}

	cmdErr := make(chan error, 1)
	go func() { cmdErr <- a.readCommands(ctx, os.Stdin) }()

	select {
	case err := <-cmdErr:
		if err != nil {
			logger.Error("Command input failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("Interrupted")
	case err := <-loopDone:
		logger.Error("Event loop stopped", "error", err)
		return 1
	}

	if ctx.Err() == nil {
		// unmount on the loop so pending completions are dropped, then stop it
		if _, err := a.dispatcher.Dispatch(dispatcher.Event{Command: "unmount"}); err != nil {
			logger.Debug("Unmount skipped", "error", err)
		}
		a.dispatcher.Close()
		<-loopDone
	} else {
		// the loop has already returned
		a.dispatcher.Close()
		<-loopDone
		a.controller.Unmount()
	}

	if err := slogManager.Flush(context.Background()); err != nil {
		logger.Debug("Log flush failed", "error", err)
	}
	logger.Info("Session ended")
	return 0
}
