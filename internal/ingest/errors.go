package ingest

import (
	"errors"
	"fmt"
)

// ErrNoDefaultTaxonomy is returned when no default taxonomy file is configured.
var ErrNoDefaultTaxonomy = errors.New("no default taxonomy file configured")

// ValidationError reports a malformed request. Nothing has been written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// SheetError wraps a failure while committing one sheet. Sheets committed
// before it stay committed.
type SheetError struct {
	Sheet string
	Stage string
	Err   error
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("sheet %q: %s: %v", e.Sheet, e.Stage, e.Err)
}

func (e *SheetError) Unwrap() error { return e.Err }
