package pipeline

import (
	"context"
	"log/slog"

	"dwetl/internal/config"
	"dwetl/internal/merge"
	"dwetl/internal/metrics"
)

// loadTable runs one table's bronze unit: clear landing, bulk-load the
// extract, merge into the constrained target, commit.
func (o *Orchestrator) loadTable(ctx context.Context, log *slog.Logger, t config.Table) (res UnitResult) {
	res = UnitResult{Stage: StageBronze, Name: t.Name}

	unit, finish, err := o.beginUnit(ctx, StageBronze, t.Name)
	if err != nil {
		res.Err = err
		return res
	}
	defer func() { finish(&res) }()

	load, err := o.loader.Load(ctx, unit, t)
	res.Load = load
	if err != nil {
		res.Err = err
		log.Error("bulk load failed", "table", t.Name, "err", err)
		return res
	}

	stats, err := unit.Merge(ctx, merge.Spec{
		Landing: t.Landing(),
		Target:  t.Target(),
		Columns: t.Columns,
		Keys:    t.BusinessKeys,
	})
	if err != nil {
		res.Err = err
		log.Error("merge failed", "table", t.Name, "err", err)
		return res
	}
	res.Merge = stats

	if err := unit.Commit(ctx); err != nil {
		res.Err = err
		return res
	}

	metrics.RecordRows(o.cfg.Process, "read", load.Read)
	metrics.RecordRows(o.cfg.Process, "loaded", load.Loaded)
	metrics.RecordRows(o.cfg.Process, "malformed", load.Malformed)
	metrics.RecordRows(o.cfg.Process, "inserted", stats.Inserted)
	metrics.RecordRows(o.cfg.Process, "updated", stats.Updated)
	metrics.RecordRows(o.cfg.Process, "skipped", stats.Skipped)
	metrics.RecordBatches(o.cfg.Process, load.Batches)

	log.Info("table loaded",
		"table", t.Name,
		"read", load.Read,
		"loaded", load.Loaded,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
	)
	return res
}
