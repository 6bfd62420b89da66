// Package pipeline orchestrates the layered warehouse load: the per-table
// bronze stage (landing + keyed merge), the typed silver stage, and the gold
// stage (versioned dimensions and resolved facts).
//
// Each table or stage runs as one storage unit: its writes commit together
// or roll back together, and a failure never blocks unrelated tables (under
// the default continue fault policy). The run ledger brackets the whole run
// and every unit, so partial outcomes stay visible afterwards.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dwetl/internal/bulkload"
	"dwetl/internal/config"
	"dwetl/internal/ledger"
	"dwetl/internal/merge"
	"dwetl/internal/metrics"
	"dwetl/internal/storage"
)

// Stage names used in unit results, ledger records, and metrics labels.
const (
	StageBronze = "bronze"
	StageSilver = "silver"
	StageGold   = "gold"
)

// UnitResult is the outcome of one storage unit within a run.
type UnitResult struct {
	Stage    string
	Name     string // table name, typed container, or "gold"
	Load     bulkload.Result
	Merge    merge.Stats
	Rows     int64 // rows written by silver/gold rebuilds
	Dropped  int64 // silver rows dropped by the required-columns check
	Duration time.Duration
	Err      error
}

// Summary is the outcome of one orchestrated run.
type Summary struct {
	RunID    string
	Process  string
	Started  time.Time
	Duration time.Duration
	Units    []UnitResult
}

// Failed lists the units that ended in error.
func (s Summary) Failed() []string {
	var out []string
	for _, u := range s.Units {
		if u.Err != nil {
			out = append(out, u.Stage+":"+u.Name)
		}
	}
	return out
}

// Err summarizes unit failures; nil when every unit succeeded.
func (s Summary) Err() error {
	failed := s.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d units failed: %s",
		len(failed), len(s.Units), strings.Join(failed, ", "))
}

// Orchestrator runs the configured warehouse load against one repository.
type Orchestrator struct {
	cfg    config.Warehouse
	repo   storage.Repository
	ledger *ledger.Ledger
	loader *bulkload.Loader
	log    *slog.Logger

	// now is a test seam.
	now func() time.Time
}

// New constructs an Orchestrator. A nil logger discards diagnostics.
func New(cfg config.Warehouse, repo storage.Repository, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		cfg:    cfg,
		repo:   repo,
		ledger: ledger.New(repo, log),
		loader: bulkload.New(cfg.Runtime, log),
		log:    log,
		now:    time.Now,
	}
}

// Run executes the full load. The returned error mirrors Summary.Err: nil
// only when every unit committed. Committed units stay committed regardless
// of later failures.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	sum := Summary{
		RunID:   uuid.NewString(),
		Process: o.cfg.Process,
		Started: o.now(),
	}
	log := o.log.With("run_id", sum.RunID, "process", o.cfg.Process)

	if o.cfg.AutoCreate {
		if err := storage.EnsureSchema(ctx, o.cfg, o.repo); err != nil {
			return sum, fmt.Errorf("auto create schema: %w", err)
		}
	}

	run, err := o.ledger.Start(ctx, o.cfg.Process)
	if err != nil {
		// Without an in-progress record the run contract cannot be honored;
		// nothing has been loaded yet, so stop here.
		return sum, err
	}

	log.Info("run started",
		"tables", len(o.cfg.Tables),
		"dimensions", len(o.cfg.Dimensions),
		"facts", len(o.cfg.Facts),
	)

	o.stages(ctx, log, &sum)
	sum.Duration = o.now().Sub(sum.Started)

	runErr := sum.Err()
	status, msg := ledger.StatusSuccess, ""
	if runErr != nil {
		status, msg = ledger.StatusError, runErr.Error()
	}
	run.Finish(ctx, status, msg)
	metrics.RecordStage(o.cfg.Process, "run", runErr, sum.Duration)

	if runErr != nil {
		log.Error("run finished with failures", "err", runErr, "duration", sum.Duration)
	} else {
		log.Info("run finished", "units", len(sum.Units), "duration", sum.Duration)
	}
	return sum, runErr
}

// stages runs bronze, silver, gold in order. Under the abort fault policy the
// first failed unit stops all remaining work; the default policy isolates
// failures to their unit.
func (o *Orchestrator) stages(ctx context.Context, log *slog.Logger, sum *Summary) {
	abort := o.cfg.FaultPolicy == config.FaultAbort

	for _, t := range o.cfg.Tables {
		res := o.loadTable(ctx, log, t)
		sum.Units = append(sum.Units, res)
		if res.Err != nil && abort {
			return
		}
	}

	for _, t := range o.cfg.Tables {
		if t.Cleanse == nil {
			continue
		}
		res := o.refineTable(ctx, log, t)
		sum.Units = append(sum.Units, res)
		if res.Err != nil && abort {
			return
		}
	}

	if len(o.cfg.Dimensions) == 0 && len(o.cfg.Facts) == 0 {
		return
	}
	sum.Units = append(sum.Units, o.buildGold(ctx, log))
}

// beginUnit opens the unit's ledger record and transaction. The returned
// finish closes both exactly once; callers defer it with the unit result.
func (o *Orchestrator) beginUnit(ctx context.Context, stage, name string) (storage.Unit, func(*UnitResult), error) {
	started := o.now()
	unitRun, err := o.ledger.Start(ctx, ledger.UnitProcess(o.cfg.Process, name))
	if err != nil {
		return nil, nil, err
	}
	unit, err := o.repo.BeginUnit(ctx)
	if err != nil {
		unitRun.Finish(ctx, ledger.StatusError, err.Error())
		return nil, nil, err
	}

	finish := func(res *UnitResult) {
		_ = unit.Rollback(ctx) // no-op after commit
		res.Duration = o.now().Sub(started)
		status, msg := ledger.StatusSuccess, ""
		if res.Err != nil {
			status, msg = ledger.StatusError, res.Err.Error()
		}
		unitRun.Finish(ctx, status, msg)
		metrics.RecordStage(o.cfg.Process, stage+":"+name, res.Err, res.Duration)
	}
	return unit, finish, nil
}
