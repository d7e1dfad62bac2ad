package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single audit and exit with status 2 if violations are found")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("audit-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("horizon_days", cfg.AuditHorizonDays),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer app.Close()

	w := &worker{scheduler: app.Scheduler, log: log.Named("audit"), horizonDays: cfg.AuditHorizonDays, loc: cfg.Location}

	if *once {
		violations, err := w.runOnce(rootCtx)
		if err != nil {
			log.Error("audit failed", zap.Error(err))
			app.Close()
			os.Exit(1)
		}
		if violations > 0 {
			app.Close()
			os.Exit(2)
		}
		return
	}

	// Run once at startup
	_, _ = w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping audit worker")
			return
		case <-ticker.C:
			_, _ = w.runOnce(rootCtx)
		}
	}
}

type worker struct {
	scheduler   *appointment.Scheduler
	log         *zap.Logger
	horizonDays int
	loc         *time.Location
}

// runOnce audits from the start of today through the configured horizon.
func (w *worker) runOnce(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	now := time.Now().In(w.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.loc)
	to := from.AddDate(0, 0, w.horizonDays)

	start := time.Now()
	violations, err := w.scheduler.AuditCapacity(runCtx, from, to)
	if err != nil {
		w.log.Error("audit run error", zap.Error(err))
		return 0, err
	}

	for _, v := range violations {
		w.log.Warn("scheduling rule violated",
			zap.String("kind", string(v.Kind)),
			zap.Stringer("subject_id", v.SubjectID),
			zap.Time("from", v.Span.Start),
			zap.Time("to", v.Span.End),
			zap.Int("peak", v.Peak),
			zap.Int("limit", v.Limit),
			zap.Int("appointments", len(v.AppointmentIDs)),
		)
	}
	w.log.Info("audit run complete",
		zap.Int("violations", len(violations)),
		zap.Duration("took", time.Since(start)),
	)
	return len(violations), nil
}
