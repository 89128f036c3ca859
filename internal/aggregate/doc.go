// Package aggregate turns raw consumption and transaction records into
// chart-ready series.
//
// Every function is pure: inputs are never mutated and results are freshly
// allocated, so callers may share record slices across goroutines. Records
// that fail validation abort the call with a *RecordError naming the offending
// index; nothing is dropped silently.
package aggregate
