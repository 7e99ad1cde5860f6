package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/metrics"
	"github.com/ramonehamilton/sqlite-incbackup/internal/mirror"
	"github.com/ramonehamilton/sqlite-incbackup/internal/scheduler"
	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
)

const shutdownTimeout = 5 * time.Second

type cmdWatch struct {
	cmd    *cobra.Command
	global *cmdGlobal

	flagInterval string
	flagNoWatch  bool
	flagNow      bool
}

func (c *cmdWatch) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "watch"
	cmd.Short = "Back up on a schedule and whenever the database changes"
	cmd.Long = `Description:
  Back up on a schedule and whenever the database changes

  Runs until interrupted. Change-triggered backups are spaced at least
  schedule.min_interval apart. With metrics enabled, Prometheus metrics are
  served on metrics.listen at /metrics.`
	cmd.Args = noArgs
	cmd.RunE = c.Run
	cmd.Flags().StringVar(&c.flagInterval, "interval", "", "Periodic backup interval, 0 disables"+"``")
	cmd.Flags().BoolVar(&c.flagNoWatch, "no-watch", false, "Do not watch the database file for changes")
	cmd.Flags().BoolVar(&c.flagNow, "now", false, "Back up as soon as the watch starts")

	c.cmd = cmd
	return cmd
}

func (c *cmdWatch) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}
	cfg := c.global.config
	logger := c.global.logger

	if c.flagInterval != "" {
		cfg.Schedule.Interval = c.flagInterval
	}
	if c.flagNoWatch {
		cfg.Schedule.Watch = false
	}
	if c.flagNow {
		cfg.Schedule.StartImmediately = true
	}
	interval, err := cfg.GetScheduleInterval()
	if err != nil {
		return usagef("invalid interval %q: %v", cfg.Schedule.Interval, err)
	}
	minInterval, err := cfg.GetMinInterval()
	if err != nil {
		return usageError{err}
	}

	db, err := c.global.openDB(cfg.Database.Path, true)
	if err != nil {
		return err
	}
	defer db.Close()

	var (
		reg   *prometheus.Registry
		extra []incremental.Option
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		extra = append(extra, incremental.WithMetrics(m))
	}

	engine, closeEngine, err := c.global.Engine(true, extra...)
	if err != nil {
		return err
	}
	defer closeEngine()

	ctx := cmd.Context()

	var mr *mirror.Mirror
	if cfg.Mirror.Enabled && cfg.Mirror.PushAfter {
		mr, err = c.global.Mirror(ctx, true)
		if err != nil {
			return err
		}
	}

	schedConfig := scheduler.Config{
		Interval:         interval,
		MinInterval:      minInterval,
		StartImmediately: cfg.Schedule.StartImmediately,
		Logger:           logger,
	}
	if cfg.Schedule.Watch {
		schedConfig.WatchPath = db.Path()
	}
	schedConfig.OnBackupComplete = func(_ *incremental.Stats, err error) {
		if err != nil || mr == nil {
			return
		}
		if err := mr.Push(ctx, engine.Unit()); err != nil {
			logger.Error("Failed to push backup", "unit", engine.Unit().String(), "error", err)
		}
	}

	sched, err := scheduler.New(engine, db.Source(), schedConfig)
	if err != nil {
		return usageError{err}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sched.Stop()
	})

	if reg != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: shutdownTimeout,
		}

		g.Go(func() error {
			logger.Info("Serving metrics", "addr", cfg.Metrics.Listen, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	ui.Infof("Watching %s into %s (Ctrl+C to stop)", db.Path(), engine.Unit())

	err = g.Wait()

	status := sched.Status()
	ui.Field("Backups", ui.CountText(status.BackupCount))
	ui.Field("Failures", status.FailureCount)
	return err
}
