// Package daemon runs grading jobs pulled from a Redis or MySQL queue, each
// in its own grade process.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sevlyar/go-daemon"

	"github.com/sempr/studenttester-go/pkg/models"
)

// Main runs the daemon until it is signalled to stop.
func Main(args models.DaemonArgs) error {
	if err := os.Chdir(args.Home); err != nil {
		return fmt.Errorf("could not change to directory %s: %w", args.Home, err)
	}

	cfg, err := LoadConfig(filepath.Join("etc", "judge.conf"))
	if err != nil {
		return fmt.Errorf("error loading judge.conf: %w", err)
	}
	cfg.Home = args.Home
	cfg.Debug = args.Debug
	cfg.Once = args.Once
	cfg.MetricsAddr = args.MetricsAddr

	if err := InitLogger(cfg); err != nil {
		return err
	}

	pidFilePath := filepath.Join(cfg.Home, "etc", "studenttester.pid")
	if !cfg.Debug {
		cntxt := &daemon.Context{
			PidFileName: pidFilePath,
			PidFilePerm: 0644,
			LogFileName: filepath.Join(cfg.Home, "log", "studenttester.out"),
			LogFilePerm: 0640,
			WorkDir:     cfg.Home,
			Umask:       027,
		}
		d, err := cntxt.Reborn()
		if err != nil {
			return fmt.Errorf("could not reborn as daemon: %w", err)
		}
		if d != nil {
			// parent
			return nil
		}
		defer cntxt.Release()
	}

	slog.Info("grading daemon started", "home", cfg.Home, "slots", cfg.MaxRunning, "redis", cfg.RedisEnable)

	lock, err := Lock(pidFilePath + ".lock")
	if err != nil {
		return fmt.Errorf("daemon is already running: %w", err)
	}
	defer lock.Unlock()

	fetcher, err := NewFetcher(cfg)
	if err != nil {
		return fmt.Errorf("could not create fetcher: %w", err)
	}
	defer fetcher.Close()

	store, err := NewStore(cfg)
	if err != nil {
		return fmt.Errorf("could not create result store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	NewWorker(cfg, fetcher, NewProcessGrader(cfg), store).Run(ctx)
	slog.Info("grading daemon stopped")
	return nil
}
