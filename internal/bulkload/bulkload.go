// Package bulkload streams a delimited extract file into a landing container.
//
// The reader honors the bulk-copy format contract (delimiter, quote,
// skip_rows) and tags every emitted row with its 1-based source line number
// so the merge can collapse duplicates deterministically. Parsing runs
// concurrently with the batched writes through an errgroup; either side
// failing cancels the other.
package bulkload

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"dwetl/internal/config"
	"dwetl/internal/merge"
	"dwetl/internal/storage"
)

// Defaults for the streaming loader when the runtime section leaves them
// unset.
const (
	DefaultBatchSize = 1000
	DefaultBuffer    = 64
)

// Result summarizes one landing load.
type Result struct {
	Read      int64 // data rows parsed from the file
	Loaded    int64 // rows written to the landing container
	Deduped   int64 // rows collapsed by the optional keep-last pre-dedup
	Malformed int64 // unparseable lines soft-dropped by the reader
	Batches   int64 // bulk-copy batches flushed
}

// Loader streams extract files into landing containers.
type Loader struct {
	BatchSize int
	Buffer    int
	Log       *slog.Logger
}

// New constructs a Loader from the runtime configuration. A nil logger
// discards reader diagnostics.
func New(rt config.Runtime, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	l := &Loader{BatchSize: rt.BatchSize, Buffer: rt.ChannelBuffer, Log: log}
	if l.BatchSize <= 0 {
		l.BatchSize = DefaultBatchSize
	}
	if l.Buffer <= 0 {
		l.Buffer = DefaultBuffer
	}
	return l
}

// Load clears the landing container and streams t's extract file into it
// inside the unit's transaction. Positional mapping: the file's fields align
// with t.Columns; short rows pad with NULL, extra fields are ignored.
func (l *Loader) Load(ctx context.Context, unit storage.Unit, t config.Table) (Result, error) {
	var res Result

	if err := unit.Truncate(ctx, t.Landing()); err != nil {
		return res, &LoadError{Table: t.Name, Path: t.Source.Path, Err: err}
	}

	f, err := os.Open(t.Source.Path)
	if err != nil {
		return res, &LoadError{Table: t.Name, Path: t.Source.Path, Err: err}
	}
	defer f.Close()

	cols := append(append([]string{}, t.Columns...), merge.LineColumn)
	batches := make(chan [][]any, l.Buffer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return l.read(ctx, f, t, batches, &res)
	})
	g.Go(func() error {
		for batch := range batches {
			n, err := unit.CopyIn(ctx, t.Landing(), cols, batch)
			res.Loaded += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, &LoadError{Table: t.Name, Path: t.Source.Path, Err: err}
	}
	return res, nil
}

// read parses the file and emits batches. With Source.Dedup it buffers the
// parsed rows and keeps the last occurrence per business key; the merge
// performs the authoritative collapse either way, this only cuts landing
// write volume for extract files known to repeat keys heavily.
func (l *Loader) read(ctx context.Context, f *os.File, t config.Table, out chan<- [][]any, res *Result) error {
	cr := csv.NewReader(bufio.NewReaderSize(f, 256<<10))
	cr.Comma = delimiterOf(t.Source)
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	keyIdx := keyIndexes(t)

	var (
		batch   = make([][]any, 0, l.BatchSize)
		entries [][]any       // dedup buffer, insertion order
		byKey   map[merge.Key]int
		line    int
	)
	if t.Source.Dedup {
		byKey = make(map[merge.Key]int)
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case out <- batch:
			res.Batches++
		case <-ctx.Done():
			return ctx.Err()
		}
		batch = make([][]any, 0, l.BatchSize)
		return nil
	}

	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if line <= t.Source.SkipRows {
			// Skipped header lines are not data rows; they are never counted,
			// parseable or not.
			continue
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return err // read failure, not a malformed line
			}
			// Recoverable parse errors soft-drop the line; the file-level
			// contract stays tolerant like the landing schema.
			res.Malformed++
			l.Log.Warn("bulkload: dropping malformed line",
				"table", t.Name, "line", line, "err", err)
			continue
		}

		row := make([]any, len(t.Columns)+1)
		for i := range t.Columns {
			if i < len(rec) {
				v := rec[i]
				if hasEdgeSpace(v) {
					v = strings.TrimSpace(v)
				}
				if v != "" {
					row[i] = v
				}
			}
		}
		row[len(t.Columns)] = int64(line)
		res.Read++

		if t.Source.Dedup {
			keyVals := make([]string, len(keyIdx))
			for i, ix := range keyIdx {
				if s, ok := row[ix].(string); ok {
					keyVals[i] = s
				}
			}
			if !merge.KeyEmpty(keyVals) {
				k := merge.HashKey(keyVals)
				if at, seen := byKey[k]; seen {
					entries[at] = row
					res.Deduped++
					continue
				}
				byKey[k] = len(entries)
			}
			entries = append(entries, row)
			continue
		}

		batch = append(batch, row)
		if len(batch) >= l.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	for _, row := range entries {
		batch = append(batch, row)
		if len(batch) >= l.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func delimiterOf(s config.Source) rune {
	if s.Delimiter == "" {
		return ','
	}
	return []rune(s.Delimiter)[0]
}

func keyIndexes(t config.Table) []int {
	idx := make([]int, 0, len(t.BusinessKeys))
	for _, k := range t.BusinessKeys {
		for i, c := range t.Columns {
			if c == k {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

// hasEdgeSpace reports whether s starts or ends with whitespace, avoiding
// the TrimSpace allocation on the common clean path.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[0] == '\t' || s[0] == '\r' ||
		s[len(s)-1] == ' ' || s[len(s)-1] == '\t' || s[len(s)-1] == '\r'
}
