// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hatd/internal/api"
	"hatd/internal/config"
	"hatd/internal/http"
	"hatd/internal/modbus"
	"hatd/internal/mqtt"
	"hatd/internal/ports"
	"hatd/internal/scheduler"
	"hatd/internal/timer"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		dryRun     = flag.Bool("dry-run", false, "Validate config, compute next events and exit (GPIO simulated)")
	)
	flag.Parse()

	// Setup slog
	level := parseLogLevel(*logLevel)
	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewTextHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("hatd starting", "version", "1.0.0")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", "error", err)
		os.Exit(1)
	}

	logger.Info("Configuration loaded",
		"ports", len(cfg.Ports),
		"timers", len(cfg.Timers),
		"timezone", loc,
		"http", cfg.Server.HTTP)

	// Build ports, then timers (manual schedules look up their dials),
	// then resolve timer outputs once every port is known
	state := ports.NewState(logger)
	portList, err := ports.FromConfig(cfg.Ports, *dryRun, logger)
	if err != nil {
		logger.Error("Failed to create ports", "error", err)
		os.Exit(1)
	}
	for _, p := range portList {
		if err := state.Add(p); err != nil {
			logger.Error("Failed to register port", "error", err)
			os.Exit(1)
		}
	}

	timers := make([]*timer.Timer, 0, len(cfg.Timers))
	for _, tc := range cfg.Timers {
		t, err := timer.New(tc, state, logger,
			timer.WithLocation(loc),
			timer.WithClockJump(cfg.Poll.ClockJump()))
		if err != nil {
			logger.Error("Failed to create timer", "error", err)
			os.Exit(1)
		}
		if err := state.Add(t); err != nil {
			logger.Error("Failed to register timer", "error", err)
			os.Exit(1)
		}
		timers = append(timers, t)
	}
	for _, t := range timers {
		if err := t.Prepare(state); err != nil {
			logger.Error("Failed to prepare timer", "error", err)
			os.Exit(1)
		}
	}

	if *dryRun {
		for _, t := range timers {
			logger.Info("Timer", "timer", t.ID(), "state", t.ExtendedState())
		}
		logger.Info("Dry run mode - configuration is valid")
		os.Exit(0)
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	// Push state changes to UI and MQTT subscribers
	state.StartRefresh(cfg.Poll.Refresh())

	apiHandler := api.NewHandler(state, timers)

	// Start HTTP server with WebSocket
	httpServer := http.NewServer(cfg, state, apiHandler, logger)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", "error", err)
		os.Exit(1)
	}
	links := scheduler.AnyLink{httpServer}

	// Start Modbus TCP server if configured
	var modbusServer *modbus.Server
	if cfg.Modbus != nil {
		modbusServer = modbus.NewServer(cfg.Modbus, state, logger)
		if err := modbusServer.Start(); err != nil {
			logger.Error("Failed to start Modbus server", "error", err)
			os.Exit(1)
		}
	}

	// Start MQTT client if configured
	var mqttClient *mqtt.Client
	if cfg.MQTT != nil {
		mqttClient = mqtt.NewClient(cfg.MQTT, state, apiHandler, logger)
		if err := mqttClient.Start(); err != nil {
			logger.Error("Failed to start MQTT client", "error", err)
			os.Exit(1)
		}
		links = append(links, mqttClient)
	}

	// Start the poll loop driving all timers
	workers := make([]scheduler.Worker, len(timers))
	for i, t := range timers {
		workers[i] = t
	}
	sched := scheduler.New(workers, links, cfg.Poll, logger)
	apiHandler.SetScheduler(sched)
	sched.Start()

	logger.Info("hatd ready",
		"http", cfg.Server.HTTP,
		"timers", len(timers),
		"modbus", cfg.Modbus != nil,
		"mqtt", cfg.MQTT != nil)

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown...")

	// Stop timers first so no output changes during shutdown
	sched.Stop()

	// Stop refresh goroutine
	state.StopRefresh()

	// Stop MQTT client
	if mqttClient != nil {
		mqttClient.Stop()
	}

	// Stop Modbus server
	if modbusServer != nil {
		modbusServer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Stop HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Release GPIO lines
	state.Close()

	logger.Info("hatd stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
