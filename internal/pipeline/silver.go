package pipeline

import (
	"context"
	"log/slog"

	"dwetl/internal/config"
	"dwetl/internal/metrics"
	"dwetl/internal/records"
	"dwetl/internal/storage"
	"dwetl/internal/transform"
)

// refineTable rebuilds one table's typed container from its constrained
// layer: normalize, coerce to the configured types, drop rows missing
// required values. The rebuild is a full reload inside one unit.
func (o *Orchestrator) refineTable(ctx context.Context, log *slog.Logger, t config.Table) (res UnitResult) {
	res = UnitResult{Stage: StageSilver, Name: t.Typed()}

	unit, finish, err := o.beginUnit(ctx, StageSilver, t.Typed())
	if err != nil {
		res.Err = err
		return res
	}
	defer func() { finish(&res) }()

	rows, err := unit.ReadRows(ctx, t.Target(), t.Columns)
	if err != nil {
		res.Err = err
		return res
	}

	recs := make([]records.Record, len(rows))
	for i, row := range rows {
		rec := make(records.Record, len(t.Columns))
		for j, col := range t.Columns {
			if row[j] == nil {
				rec[col] = nil
				continue
			}
			rec[col] = storage.AsString(row[j])
		}
		recs[i] = rec
	}

	chain := transform.Chain{
		transform.Normalize{FoldDiacritics: t.Cleanse.FoldDiacritics},
		transform.Coerce{Types: t.Cleanse.Types, Layout: t.Cleanse.Layout},
		transform.Require{
			Columns: t.Cleanse.Required,
			OnDrop: func(rec records.Record, missing string) {
				res.Dropped++
				log.Warn("typed row dropped",
					"table", t.Name, "missing", missing)
			},
		},
	}
	recs = chain.Apply(recs)

	out := make([][]any, len(recs))
	for i, rec := range recs {
		row := make([]any, len(t.Columns))
		for j, col := range t.Columns {
			row[j] = rec[col]
		}
		out[i] = row
	}

	if err := unit.Truncate(ctx, t.Typed()); err != nil {
		res.Err = err
		return res
	}
	n, err := unit.CopyIn(ctx, t.Typed(), t.Columns, out)
	res.Rows = n
	if err != nil {
		res.Err = err
		return res
	}
	if err := unit.Commit(ctx); err != nil {
		res.Err = err
		return res
	}

	metrics.RecordRows(o.cfg.Process, "typed", n)
	metrics.RecordRows(o.cfg.Process, "dropped", res.Dropped)
	log.Info("typed layer rebuilt", "table", t.Name, "rows", n, "dropped", res.Dropped)
	return res
}
