package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/room-timetable/internal/config"
	"github.com/example/room-timetable/internal/logging"
)

func main() {
	materializeOnce := flag.Bool("materialize-once", false, "run a single materialization pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Env, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", logging.Err(err))
		os.Exit(1)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error("failed to close resources", logging.Err(cerr))
		}
	}()

	if *materializeOnce {
		report, err := a.runner.RunOnce(ctx)
		if err != nil {
			logger.Error("materialization failed", logging.Err(err))
			stop()
			a.Close()
			os.Exit(1)
		}
		for _, failure := range report.Failures {
			logger.Warn("occurrence not materialized",
				"template_id", failure.TemplateID,
				"week_start", failure.WeekStart.Format("2006-01-02"),
				"reason", failure.Reason,
				"detail", failure.Detail,
			)
		}
		return
	}

	if err := a.serve(ctx); err != nil {
		logger.Error("server encountered error", logging.Err(err))
		stop()
		a.Close()
		os.Exit(1)
	}
	a.notifier.Wait()
	logger.Info("timetable service stopped")
}
