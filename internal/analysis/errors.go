package analysis

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when input holds no readable rows.
var ErrNoData = errors.New("no tabular data")

// SelectionError reports a duplicate-keep choice that cannot be applied.
type SelectionError struct {
	Sheet  string
	Column string
	Index  int
	Reason string
}

func (e *SelectionError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("sheet %q: column %q (keep %d): %s", e.Sheet, e.Column, e.Index, e.Reason)
	}
	return fmt.Sprintf("column %q (keep %d): %s", e.Column, e.Index, e.Reason)
}
