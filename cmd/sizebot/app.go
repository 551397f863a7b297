package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sizebot/sizebot/internal/archive"
	"github.com/sizebot/sizebot/internal/commands"
	"github.com/sizebot/sizebot/internal/config"
	"github.com/sizebot/sizebot/internal/observability"
	"github.com/sizebot/sizebot/internal/senses"
	"github.com/sizebot/sizebot/internal/storage"
)

// app holds the components every subcommand builds from the configuration.
type app struct {
	cfg        *config.Config
	log        *observability.Logger
	metrics    *observability.Metrics
	store      storage.Store
	dispatcher *commands.Dispatcher

	closers []func() error
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// newApp opens the store and wires the dispatcher. Logs go to logOut and,
// when configured, to the log file as well.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, metrics: observability.NewMetrics()}

	level, err := observability.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if path := cfg.LogPath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		logOut = io.MultiWriter(logOut, f)
	}
	a.log = observability.NewLoggerWithLevel(appName, logOut, level)

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.DatabasePath(), cfg.Database.DSN)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	if n, err := store.Count(ctx); err == nil {
		a.metrics.StoreRecords.Set(float64(n))
		a.log.Info("store opened", "driver", cfg.Database.Driver, "records", n)
	}

	dispatchOpts := []commands.Option{commands.WithMetrics(a.metrics)}
	if cfg.Archive.Bucket != "" {
		arch, err := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		dispatchOpts = append(dispatchOpts, commands.WithArchiver(arch))
		a.log.Info("export archive enabled", "bucket", cfg.Archive.Bucket)
	}

	a.dispatcher = commands.NewDispatcher(store, commands.Config{
		BulkPath: cfg.BulkPath(),
		TempDir:  cfg.TempPath(),
		AdminIDs: cfg.Telegram.AdminIDs,
	}, a.log, dispatchOpts...)
	return a, nil
}

// serveRegistry registers the long-running senses enabled by the config.
func (a *app) serveRegistry() *senses.SenseRegistry {
	reg := senses.NewSenseRegistry()
	if a.cfg.Telegram.Token != "" {
		reg.Register(senses.NewTelegramSense(senses.TelegramConfig{
			Token:       a.cfg.Telegram.Token,
			APIBase:     a.cfg.Telegram.APIBase,
			PollTimeout: a.cfg.GetPollTimeout(),
			RetryDelay:  a.cfg.GetRetryDelay(),
			AllowedIDs:  a.cfg.Telegram.AllowedIDs,
		}, a.log, a.metrics))
	} else {
		a.log.Warn("telegram token not set, telegram disabled")
	}
	if a.cfg.API.Addr != "" {
		reg.Register(senses.NewAPISense(senses.APIConfig{
			Addr:    a.cfg.API.Addr,
			Metrics: a.metrics.Handler(),
			Timeout: a.cfg.GetAPITimeout(),
		}))
	}
	if a.cfg.Bulk.Watch {
		reg.Register(senses.NewFileWatcherSense(senses.FileWatcherConfig{Path: a.cfg.BulkPath()}, a.log))
	}
	return reg
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
