package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"dwetl/internal/config"
	"dwetl/internal/metrics"
	"dwetl/internal/scd"
	"dwetl/internal/storage"
)

// buildGold rebuilds every dimension and fact container inside one unit, so
// corrected dimensions and the facts resolved against them commit as one
// consistent snapshot.
func (o *Orchestrator) buildGold(ctx context.Context, log *slog.Logger) (res UnitResult) {
	res = UnitResult{Stage: StageGold, Name: "gold"}

	unit, finish, err := o.beginUnit(ctx, StageGold, "gold")
	if err != nil {
		res.Err = err
		return res
	}
	defer func() { finish(&res) }()

	resolvers := make(map[string]*scd.Resolver, len(o.cfg.Dimensions))
	for _, d := range o.cfg.Dimensions {
		n, resolver, err := o.buildDimension(ctx, unit, d)
		res.Rows += n
		if err != nil {
			res.Err = err
			log.Error("dimension build failed", "dimension", d.Name, "err", err)
			return res
		}
		resolvers[d.Name] = resolver
		log.Info("dimension built", "dimension", d.Name, "versions", n)
	}

	for _, f := range o.cfg.Facts {
		n, unresolved, err := o.buildFact(ctx, unit, f, resolvers)
		res.Rows += n
		if err != nil {
			res.Err = err
			log.Error("fact build failed", "fact", f.Name, "err", err)
			return res
		}
		log.Info("fact built", "fact", f.Name, "rows", n, "unresolved", unresolved)
		metrics.RecordRows(o.cfg.Process, "unresolved", unresolved)
	}

	if err := unit.Commit(ctx); err != nil {
		res.Err = err
		return res
	}
	metrics.RecordRows(o.cfg.Process, "gold", res.Rows)
	return res
}

// buildDimension reads the typed source, corrects the validity intervals,
// and rewrites the dimension container in corrected surrogate order.
func (o *Orchestrator) buildDimension(ctx context.Context, unit storage.Unit, d config.Dimension) (int64, *scd.Resolver, error) {
	src, err := o.typedContainer(d.SourceTable)
	if err != nil {
		return 0, nil, fmt.Errorf("dimension %s: %w", d.Name, err)
	}

	cols := append([]string{d.BusinessKey, d.StartColumn, d.EndColumn}, d.Attributes...)
	rows, err := unit.ReadRows(ctx, src, cols)
	if err != nil {
		return 0, nil, err
	}

	versions := make([]scd.Version, 0, len(rows))
	for i, row := range rows {
		key := storage.AsString(row[0])
		start, ok := storage.AsTime(row[1])
		if !ok {
			return 0, nil, &scd.IntegrityError{Key: key, Reason: "missing or invalid validity start"}
		}
		v := scd.Version{Key: key, Start: start, Row: i}
		if end, ok := storage.AsTime(row[2]); ok {
			v.End = &end
		}
		versions = append(versions, v)
	}

	corrected, err := scd.CorrectIntervals(versions, scd.Day)
	if err != nil {
		return 0, nil, err
	}

	outCols := append([]string{d.Name + "_key", d.BusinessKey, d.StartColumn, d.EndColumn}, d.Attributes...)
	out := make([][]any, len(corrected))
	for i, v := range corrected {
		row := make([]any, 0, len(outCols))
		row = append(row, v.Surrogate, v.Key, v.Start)
		if v.End != nil {
			row = append(row, *v.End)
		} else {
			row = append(row, nil)
		}
		row = append(row, rows[v.Row][3:]...)
		out[i] = row
	}

	if err := unit.Truncate(ctx, d.Container()); err != nil {
		return 0, nil, err
	}
	n, err := unit.CopyIn(ctx, d.Container(), outCols, out)
	if err != nil {
		return n, nil, err
	}
	return n, scd.NewResolver(corrected), nil
}

// buildFact reads the typed source and rewrites the fact container with each
// row's dimension reference resolved to the version valid at its event time.
func (o *Orchestrator) buildFact(ctx context.Context, unit storage.Unit, f config.Fact, resolvers map[string]*scd.Resolver) (int64, int64, error) {
	resolver, ok := resolvers[f.Dimension]
	if !ok {
		return 0, 0, fmt.Errorf("fact %s: references unknown dimension %q", f.Name, f.Dimension)
	}
	src, err := o.typedContainer(f.SourceTable)
	if err != nil {
		return 0, 0, fmt.Errorf("fact %s: %w", f.Name, err)
	}

	cols := append([]string{f.KeyColumn, f.TimeColumn}, f.Measures...)
	rows, err := unit.ReadRows(ctx, src, cols)
	if err != nil {
		return 0, 0, err
	}

	outCols := append([]string{f.Dimension + "_key", f.KeyColumn, f.TimeColumn}, f.Measures...)
	out := make([][]any, len(rows))
	var unresolved int64
	for i, row := range rows {
		key := storage.AsString(row[0])
		eventTime, tok := storage.AsTime(row[1])

		surrogate := scd.UnknownSurrogate
		if key != "" && tok {
			v, found, err := resolver.Resolve(key, eventTime)
			if err != nil {
				return 0, unresolved, fmt.Errorf("fact %s: %w", f.Name, err)
			}
			if found {
				surrogate = v.Surrogate
			}
		}
		if surrogate == scd.UnknownSurrogate {
			if f.OnUnresolved == config.UnresolvedError {
				return 0, unresolved, fmt.Errorf(
					"fact %s: unresolvable dimension reference key=%q time=%v",
					f.Name, key, row[1])
			}
			unresolved++
		}

		outRow := make([]any, 0, len(outCols))
		outRow = append(outRow, surrogate)
		outRow = append(outRow, row...)
		out[i] = outRow
	}

	if err := unit.Truncate(ctx, f.Container()); err != nil {
		return 0, unresolved, err
	}
	n, err := unit.CopyIn(ctx, f.Container(), outCols, out)
	return n, unresolved, err
}

func (o *Orchestrator) typedContainer(table string) (string, error) {
	for _, t := range o.cfg.Tables {
		if t.Name == table {
			if t.Cleanse == nil {
				return "", fmt.Errorf("source table %q has no typed layer", table)
			}
			return t.Typed(), nil
		}
	}
	return "", fmt.Errorf("unknown source table %q", table)
}
