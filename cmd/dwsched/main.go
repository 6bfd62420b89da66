// Command dwsched runs the warehouse load on a cron schedule. Each tick is a
// complete run with its own repository connection and ledger bracket;
// singleton mode keeps a long run from overlapping the next tick.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"dwetl/internal/config"
	"dwetl/internal/pipeline"
	"dwetl/internal/storage"

	_ "dwetl/internal/storage/all"
)

func main() { os.Exit(run()) }

func run() int {
	var (
		cfgPath  string
		envFile  string
		cronSpec string
	)
	flag.StringVar(&cfgPath, "config", "configs/warehouse.json", "warehouse config JSON path")
	flag.StringVar(&envFile, "env-file", "", "optional .env file loaded before DSN expansion")
	flag.StringVar(&cronSpec, "cron", "0 2 * * *", "cron schedule for the load")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Error("load env file", "path", envFile, "err", err)
			return 1
		}
	}

	w, err := config.Load(cfgPath)
	if err != nil {
		log.Error("load config", "path", cfgPath, "err", err)
		return 1
	}
	for _, iss := range config.Validate(w) {
		if iss.Severity == config.SeverityError {
			log.Error("configuration is invalid", "path", iss.Path, "msg", iss.Message)
			return 1
		}
		log.Warn("config", "path", iss.Path, "msg", iss.Message)
	}
	w = w.ExpandDSN()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	if _, err := s.Cron(cronSpec).Do(func() { load(ctx, log, w) }); err != nil {
		log.Error("schedule load", "cron", cronSpec, "err", err)
		return 1
	}

	log.Info("scheduler started", "cron", cronSpec, "config", cfgPath)
	s.StartAsync()
	<-ctx.Done()
	s.Stop()
	log.Info("scheduler stopped")
	return 0
}

func load(ctx context.Context, log *slog.Logger, w config.Warehouse) {
	repo, err := storage.New(ctx, storage.Config{Kind: w.Storage.Kind, DSN: w.Storage.DSN})
	if err != nil {
		log.Error("open storage", "kind", w.Storage.Kind, "err", err)
		return
	}
	defer repo.Close()

	if _, err := pipeline.New(w, repo, log).Run(ctx); err != nil {
		log.Error("scheduled load finished with failures", "err", err)
	}
}
