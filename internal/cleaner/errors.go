package cleaner

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaError reports required canonical columns that are absent after
// renaming. It is fatal for the whole batch: no row-level work happens.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	cols := append([]string(nil), e.Missing...)
	sort.Strings(cols)
	return fmt.Sprintf("missing required columns: %s", strings.Join(cols, ", "))
}

// CoercionError reports a value that could not be coerced to its target type.
// It is fatal for the whole batch: there is no partial-row tolerance at the
// coercion stage.
type CoercionError struct {
	Column string
	Row    int // 0-based row index within the batch
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("column %s, row %d: %v", e.Column, e.Row, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }
