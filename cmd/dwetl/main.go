// Command dwetl runs the layered warehouse load: per-table landing and merge,
// typed rebuilds, and the gold dimension/fact stage, bracketed by the run
// ledger.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"dwetl/internal/config"
	"dwetl/internal/metrics"
	"dwetl/internal/metrics/datadog"
	"dwetl/internal/metrics/prompush"
	"dwetl/internal/pipeline"
	"dwetl/internal/storage"

	// Register all storage backends with the factory; the config selects
	// which one is used.
	_ "dwetl/internal/storage/all"
)

func main() { os.Exit(run()) }

func run() int {
	var (
		cfgPath        string
		envFile        string
		metricsBackend string
		pushURL        string
		statsdAddr     string
		validateOnly   bool
	)
	flag.StringVar(&cfgPath, "config", "configs/warehouse.json", "warehouse config JSON path")
	flag.StringVar(&envFile, "env-file", "", "optional .env file loaded before DSN expansion")
	flag.StringVar(&metricsBackend, "metrics-backend", "none", "metrics backend (pushgateway, datadog, none)")
	flag.StringVar(&pushURL, "pushgateway-url", "", "Pushgateway base URL (default $PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddr, "dogstatsd-addr", "", "DogStatsD address (default $DOGSTATSD_ADDR)")
	flag.BoolVar(&validateOnly, "validate", false, "validate the configuration and exit")
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

	invalid := false
	for _, iss := range config.Validate(w) {
		switch iss.Severity {
		case config.SeverityError:
			invalid = true
			log.Error("config", "path", iss.Path, "msg", iss.Message)
		default:
			log.Warn("config", "path", iss.Path, "msg", iss.Message)
		}
	}
	if invalid {
		log.Error("configuration is invalid", "config", cfgPath)
		return 1
	}
	if validateOnly {
		log.Info("configuration is valid", "config", cfgPath)
		return 0
	}

	w = w.ExpandDSN()
	setupMetrics(log, w.Process, metricsBackend, pushURL, statsdAddr)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := storage.New(ctx, storage.Config{Kind: w.Storage.Kind, DSN: w.Storage.DSN})
	if err != nil {
		log.Error("open storage", "kind", w.Storage.Kind, "err", err)
		return 1
	}
	defer repo.Close()

	sum, err := pipeline.New(w, repo, log).Run(ctx)
	if err != nil {
		log.Error("load finished with failures", "failed", sum.Failed(), "err", err)
	}
	return exitCode(w.FaultPolicy, sum, err)
}

// exitCode maps a run outcome to the process exit status. Failures before any
// unit ran, and unit failures under the abort policy, exit non-zero. Under the
// continue policy per-table failures are reported in the log and the ledger
// and the process exits zero.
func exitCode(policy string, sum pipeline.Summary, err error) int {
	if err == nil {
		return 0
	}
	if len(sum.Units) == 0 || policy == config.FaultAbort {
		return 1
	}
	return 0
}

// setupMetrics installs the selected metrics backend; flag values fall back
// to the environment. Failures downgrade to the no-op backend rather than
// blocking the load.
func setupMetrics(log *slog.Logger, process, name, pushURL, statsdAddr string) {
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	switch name {
	case "pushgateway":
		if pushURL == "" {
			pushURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if pushURL == "" {
			pushURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(process, pushURL)
		if err != nil {
			log.Warn("metrics disabled", "backend", name, "err", err)
			return
		}
		metrics.SetBackend(b)
		log.Info("metrics enabled", "backend", name, "url", pushURL)

	case "datadog":
		if statsdAddr == "" {
			statsdAddr = os.Getenv("DOGSTATSD_ADDR")
		}
		if statsdAddr == "" {
			statsdAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: statsdAddr})
		if err != nil {
			log.Warn("metrics disabled", "backend", name, "err", err)
			return
		}
		metrics.SetBackend(b)
		log.Info("metrics enabled", "backend", name, "addr", statsdAddr)

	case "", "none":
		// no-op backend stays installed

	default:
		log.Warn("unknown metrics backend; metrics disabled", "backend", name)
	}
}
