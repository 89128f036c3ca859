package sheets

import (
	"context"

	"certdash/internal/core"
)

// Table is a rectangular block of values written to its own tab.
type Table struct {
	Name   string
	Year   int
	Header []string
	Rows   [][]any
}

// Ports for outbound adapters.
type (
	// TableWriter replaces the contents of the tab holding t.
	TableWriter interface {
		WriteTable(ctx context.Context, t Table) (rangeRef string, err error)
	}

	// ActivityAppender adds one activity row to the yearly activity log.
	ActivityAppender interface {
		AppendActivity(ctx context.Context, e core.ActivityEvent) (rowRef string, err error)
	}
)
