// Package ledger implements the run ledger: an append-only, queryable record
// of orchestrated runs and their per-table units.
//
// A record is inserted with status "in_progress" when a run starts and
// mutated exactly once at run end; those are the only two writes the ledger
// ever performs. Records are never deleted; the ledger is the authoritative
// historical record for post-hoc investigation.
//
// Persistence goes through the narrow Store interface so the ledger stays
// independent of the storage backends that implement it.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Status is the lifecycle state of a run record. The only valid transition
// is InProgress -> {Success, Error}.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// RunRecord is one orchestrated execution (or one table unit within it).
type RunRecord struct {
	ID          int64
	Process     string
	StartTime   time.Time
	EndTime     *time.Time // nil until finished
	DurationSec float64
	Status      Status
	Message     string // populated on error
}

// Filter narrows ListRuns results. Zero values mean "no constraint".
type Filter struct {
	Process string
	Status  Status
	Since   time.Time
	Until   time.Time
}

// Store is the persistence surface the ledger requires. Implemented by every
// storage backend.
type Store interface {
	// InsertRun appends a record and returns its identifier.
	InsertRun(ctx context.Context, rec RunRecord) (int64, error)

	// UpdateRun applies the terminal transition for rec.ID: end time,
	// duration, status, message. It must never touch other fields.
	UpdateRun(ctx context.Context, rec RunRecord) error

	// ListRuns returns records matching f, most recent first.
	ListRuns(ctx context.Context, f Filter) ([]RunRecord, error)
}

// Ledger records run lifecycles against a Store.
type Ledger struct {
	store Store
	log   *slog.Logger

	// now is a test seam.
	now func() time.Time
}

// New constructs a Ledger. A nil logger discards ledger diagnostics.
func New(store Store, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Ledger{store: store, log: log, now: time.Now}
}

// Run is the handle for one in-progress record. Finish applies the terminal
// transition; the handle guarantees it happens at most once no matter how
// many exit paths reach it.
type Run struct {
	ID      int64
	Process string
	Started time.Time

	l    *Ledger
	once sync.Once
}

// Start inserts an in-progress record for process and returns its handle.
func (l *Ledger) Start(ctx context.Context, process string) (*Run, error) {
	start := l.now()
	id, err := l.store.InsertRun(ctx, RunRecord{
		Process:   process,
		StartTime: start,
		Status:    StatusInProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger start %s: %w", process, err)
	}
	return &Run{ID: id, Process: process, Started: start, l: l}, nil
}

// Finish records the terminal status for the run: end time, duration
// computed from the handle's start, final status, and (on error) a message.
//
// Finish is best-effort by contract: the write is retried with exponential
// backoff, and a persistent failure is logged rather than propagated, so a
// ledger outage never aborts or masks the substantive work. Subsequent calls
// on the same handle are no-ops; exactly one terminal transition is written.
func (r *Run) Finish(ctx context.Context, status Status, message string) {
	r.once.Do(func() {
		end := r.l.now()
		rec := RunRecord{
			ID:          r.ID,
			Process:     r.Process,
			StartTime:   r.Started,
			EndTime:     &end,
			DurationSec: end.Sub(r.Started).Seconds(),
			Status:      status,
			Message:     message,
		}

		bo := backoff.WithContext(newFinishBackoff(), ctx)
		err := backoff.Retry(func() error {
			return r.l.store.UpdateRun(ctx, rec)
		}, bo)
		if err != nil {
			// Last resort: the run outcome survives in the process log even
			// though the ledger row stays "in_progress" (a zombie record for
			// monitoring to reconcile).
			r.l.log.Error("ledger finish failed",
				"run_id", r.ID,
				"process", r.Process,
				"status", string(status),
				"err", err,
			)
		}
	})
}

// newFinishBackoff bounds the finish retries: quick attempts for transient
// blips, capped so a dead database does not hang process shutdown.
func newFinishBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second
	return bo
}

// List returns run records matching f, most recent first.
func (l *Ledger) List(ctx context.Context, f Filter) ([]RunRecord, error) {
	recs, err := l.store.ListRuns(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	return recs, nil
}

// UnitProcess names a per-table unit record under a parent process, e.g.
// "warehouse_load:crm_cust_info".
func UnitProcess(process, table string) string {
	return process + ":" + table
}
