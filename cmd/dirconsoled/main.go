package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dirconsole/internal/api"
	"dirconsole/internal/config"
	"dirconsole/internal/core"
	"dirconsole/internal/directory"
	"dirconsole/internal/logging"
	dirconsolemcp "dirconsole/internal/mcp"
	"dirconsole/internal/notify"
	"dirconsole/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.Close()

	dir, err := directory.NewLDAPClient(directory.LDAPConfig{
		URL:          cfg.LDAP.URL,
		BindDN:       cfg.LDAP.BindDN,
		BindPassword: cfg.LDAP.BindPassword,
		BaseDN:       cfg.LDAP.BaseDN,
	})
	if err != nil {
		logger.Error("configure directory client", "err", err)
		os.Exit(1)
	}

	var notifier notify.Notifier = &notify.NoOpNotifier{}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(cfg.WebhookURL)
		if err != nil {
			logger.Error("configure webhook notifier", "err", err)
			os.Exit(1)
		}
		notifier = webhook
	}

	location := time.Local
	if cfg.UseUTC {
		location = time.UTC
	}

	cadence := core.Cadence{Interval: cfg.Worker.Interval, Location: location}
	if cadence.Interval <= 0 {
		schedule, err := core.ParseCadence(cfg.Worker.Cron)
		if err != nil {
			logger.Error("parse worker cadence", "cron", cfg.Worker.Cron, "err", err)
			os.Exit(1)
		}
		cadence.Schedule = schedule
	}

	vacations := core.NewVacationService(storeInst, logger)
	tasks := core.NewTaskService(storeInst, logger)
	worker := core.NewWorker(storeInst, dir, notifier, logger)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()
	go worker.Run(ctx, cadence)

	switch cfg.Mode {
	case "http":
		runHTTP(cfg, storeInst, vacations, tasks, dir, logger)
	case "mcp":
		runMCP(storeInst, vacations, tasks, dir, logger, cancel)
	case "both":
		runBoth(cfg, storeInst, vacations, tasks, dir, logger)
	}
}

func newHTTPServer(cfg *config.Config, st *store.Store, vacations *core.VacationService, tasks *core.TaskService, dir directory.Client, logger *slog.Logger) *api.Server {
	server, err := api.NewServer(cfg.Addr, cfg.AuthToken, st, vacations, tasks, dir, logger)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}
	return server
}

func runHTTP(cfg *config.Config, st *store.Store, vacations *core.VacationService, tasks *core.TaskService, dir directory.Client, logger *slog.Logger) {
	server := newHTTPServer(cfg, st, vacations, tasks, dir, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdown(server, cfg.ShutdownGrace, logger)
}

func runMCP(st *store.Store, vacations *core.VacationService, tasks *core.TaskService, dir directory.Client, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := dirconsolemcp.NewMCPServer(st, vacations, tasks, dir, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("received signal, shutting down")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

func runBoth(cfg *config.Config, st *store.Store, vacations *core.VacationService, tasks *core.TaskService, dir directory.Client, logger *slog.Logger) {
	mcpServer := dirconsolemcp.NewMCPServer(st, vacations, tasks, dir, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := newHTTPServer(cfg, st, vacations, tasks, dir, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdown(server, cfg.ShutdownGrace, logger)
}

func shutdown(server *api.Server, grace time.Duration, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
}
