// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the warehouse load.
//
// It exposes a narrow interface (Backend) focused on counters and timing
// data, with a global pluggable backend defaulting to a no-op so metric calls
// are always safe even when no real backend is configured. The design mirrors
// the storage abstraction: core code depends only on this interface while the
// concrete metric systems (Prometheus Pushgateway, Datadog) live in
// subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveDuration records a duration-style observation.
	ObserveDuration(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics stay optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)      {}
func (nopBackend) ObserveDuration(string, float64, Labels) {}
func (nopBackend) Flush() error                            { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures one orchestrated stage or table unit: latency plus a
// success/failure count.
func RecordStage(process, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"process": process,
		"stage":   stage,
		"status":  status,
	}
	backend.IncCounter("warehouse_stage_total", 1, lbls)
	backend.ObserveDuration("warehouse_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given process and kind.
//
// Typical kinds mirror the load summary fields:
//   - "read"
//   - "loaded"
//   - "inserted"
//   - "updated"
//   - "skipped"
//   - "malformed"
//   - "dropped"
func RecordRows(process, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("warehouse_rows_total", float64(delta), Labels{
		"process": process,
		"kind":    kind,
	})
}

// RecordBatches increments the bulk-copy batch counter for the process.
func RecordBatches(process string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("warehouse_batches_total", float64(delta), Labels{
		"process": process,
	})
}
