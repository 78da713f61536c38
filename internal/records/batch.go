package records

// Batch is a positional table: column labels plus rows of cells. Rows always
// have len(Columns) cells.
//
// Transform steps treat a Batch as immutable input and return a fresh Batch;
// filters may share row slices with their input, so callers must not mutate
// rows of a Batch they have passed downstream.
type Batch struct {
	Columns []string
	Rows    [][]Value
}

// Len returns the number of rows.
func (b Batch) Len() int { return len(b.Rows) }

// Index returns the position of col in Columns, or -1.
func (b Batch) Index(col string) int {
	for i, c := range b.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Has reports whether col is present.
func (b Batch) Has(col string) bool { return b.Index(col) >= 0 }

// WithColumn returns a copy of the batch extended by one column whose every
// cell is fill. Existing rows are reallocated; the input batch is unchanged.
func (b Batch) WithColumn(name string, fill Value) Batch {
	out := Batch{
		Columns: append(append([]string(nil), b.Columns...), name),
		Rows:    make([][]Value, len(b.Rows)),
	}
	for i, row := range b.Rows {
		nr := make([]Value, len(row)+1)
		copy(nr, row)
		nr[len(row)] = fill
		out.Rows[i] = nr
	}
	return out
}
