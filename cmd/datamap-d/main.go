package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/logger"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logger.New(logger.Options{Component: "datamap-d"}).Fatal("invalid_config", "error", err)
	}

	l := logger.New(logger.Options{Debug: cfg.Debug, Format: cfg.LogFormat, Component: "datamap-d"})
	l.Info("system_started", "role", cfg.Role, "addr", cfg.Addr)

	if err := run(cfg, l); err != nil {
		l.Fatal("daemon_failed", "error", err)
	}
	l.Info("shutdown_complete")
}

func run(cfg Config, l *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg, l)
	if err != nil {
		return err
	}
	if err := d.bootstrap(ctx); err != nil {
		d.close()
		return err
	}
	d.startWorkers(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.server.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	var runErr error
loop:
	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				l.Info("reload_requested")
				if err := d.reload(ctx); err != nil {
					l.Error("reload_failed", "error", err)
				}
				continue
			}
			l.Info("shutdown_initiated", "signal", sig.String())
			break loop
		case err := <-serverErr:
			if err != nil {
				runErr = err
			}
			break loop
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	d.shutdown(shutdownCtx)
	return runErr
}
