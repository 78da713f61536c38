// Package cleaner implements the normalization engine: it takes a raw
// tabular batch with arbitrary column labels and produces canonical, validated
// retail records plus a quality report.
//
// The engine is an ordered chain of steps, each a pure function over a Batch.
// Order matters: every step assumes the previous step's postconditions (for
// example the validity filters assume typed cells, and the price filter
// operates on the batch already reduced by the quantity filter).
package cleaner

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"retailetl/internal/records"
	"retailetl/internal/schema"
)

// Logger is the minimal logging interface used by the cleaner.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Record is a canonical retail transaction. Every Record returned by Clean
// satisfies Quantity > 0, Price > 0, and an invoice without a cancellation or
// adjustment marker.
type Record struct {
	Invoice     string
	StockCode   string
	Description string
	Quantity    int64
	InvoiceDate time.Time
	Price       float64
	CustomerID  string
	Country     string
	TotalAmount float64
}

// Normalizer cleans raw batches according to a schema registry. The registry
// is supplied at construction and never mutated.
type Normalizer struct {
	Schema schema.Registry
	Logger Logger
}

// Clean runs the full normalization chain and returns the canonical records
// together with the quality report.
//
// Failure modes:
//   - *SchemaError when required columns are absent after renaming; nothing
//     else is attempted.
//   - *CoercionError when any single value fails type coercion; the whole
//     batch is rejected.
//   - An empty input is not an error: it returns no records and a zero report.
func (n *Normalizer) Clean(in records.Batch) ([]Record, *Report, error) {
	rep := newReport(in.Len())

	if in.Len() == 0 {
		n.logf("cleaner: empty batch, skipping")
		rep.finalize(0)
		return nil, rep, nil
	}

	b := canonicalizeColumns(in, n.Schema.Synonyms, rep)

	if err := requireColumns(b, n.Schema.Required); err != nil {
		return nil, nil, err
	}

	b = fillMissing(b, rep)

	b, err := coerceTypes(b, n.Schema.DateLayouts, rep)
	if err != nil {
		return nil, nil, err
	}

	b = dropCancellations(b, rep)
	b = dropNonPositive(b, schema.ColQuantity, rep)
	b = dropNonPositive(b, schema.ColPrice, rep)

	out := derive(b, rep)
	rep.finalize(len(out))

	n.logf("cleaner: original=%d cleaned=%d rejected=%d rate=%.4f",
		rep.OriginalRows, rep.CleanedRows, rep.RejectedRows, rep.RejectionRate)
	return out, rep, nil
}

func (n *Normalizer) logf(format string, v ...any) {
	if n.Logger != nil {
		n.Logger.Printf(format, v...)
	}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// CanonicalizeLabel lowercases a column label, collapses every run of
// non-alphanumeric characters to a single underscore, and strips leading and
// trailing underscores. It is idempotent on already-canonical labels.
func CanonicalizeLabel(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// canonicalizeColumns rewrites column labels through CanonicalizeLabel and the
// synonym table. Unrecognized columns pass through unchanged.
func canonicalizeColumns(b records.Batch, synonyms map[string]string, rep *Report) records.Batch {
	out := records.Batch{
		Columns: make([]string, len(b.Columns)),
		Rows:    b.Rows,
	}
	renamed := map[string]string{}
	for i, c := range b.Columns {
		canon := CanonicalizeLabel(c)
		if mapped, ok := synonyms[canon]; ok {
			if mapped != canon {
				renamed[canon] = mapped
			}
			canon = mapped
		}
		out.Columns[i] = canon
	}
	if len(renamed) > 0 {
		rep.logf("renamed columns: %v", renamed)
	}
	return out
}

// requireColumns verifies the required canonical set is present.
func requireColumns(b records.Batch, required []string) error {
	var missing []string
	for _, col := range required {
		if !b.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// fillMissing substitutes sentinels for absent customer_id and description
// values, counting every fill per column. An entirely absent description
// column is synthesized so downstream steps can rely on it.
func fillMissing(b records.Batch, rep *Report) records.Batch {
	if !b.Has(schema.ColDescription) {
		b = b.WithColumn(schema.ColDescription, records.Null())
	}

	fills := []struct {
		col      string
		sentinel records.Value
	}{
		{schema.ColCustomerID, records.String(schema.GuestCustomerID)},
		{schema.ColDescription, records.String(schema.UnknownDescription)},
	}

	out := records.Batch{Columns: b.Columns, Rows: b.Rows}
	for _, f := range fills {
		idx := out.Index(f.col)
		filled := 0
		var rows [][]records.Value
		for ri, row := range out.Rows {
			if !row[idx].IsNull() {
				continue
			}
			if rows == nil {
				rows = append(make([][]records.Value, 0, len(out.Rows)), out.Rows...)
			}
			nr := make([]records.Value, len(row))
			copy(nr, row)
			nr[idx] = f.sentinel
			rows[ri] = nr
			filled++
		}
		if filled > 0 {
			out = records.Batch{Columns: out.Columns, Rows: rows}
			rep.MissingValues[f.col] = filled
			rep.logf("filled %d missing %s", filled, f.col)
		}
	}
	return out
}

// coerceTypes parses invoice_date into timestamps and normalizes customer_id,
// quantity, and price to their target types. Any single failure aborts the
// batch; a missing invoice_date is also fatal since the canonical record
// requires a non-null timestamp.
func coerceTypes(b records.Batch, layouts []string, rep *Report) (records.Batch, error) {
	dateIdx := b.Index(schema.ColInvoiceDate)
	custIdx := b.Index(schema.ColCustomerID)
	qtyIdx := b.Index(schema.ColQuantity)
	priceIdx := b.Index(schema.ColPrice)

	out := records.Batch{
		Columns: b.Columns,
		Rows:    make([][]records.Value, len(b.Rows)),
	}
	for ri, row := range b.Rows {
		nr := make([]records.Value, len(row))
		copy(nr, row)

		if nr[dateIdx].IsNull() {
			return records.Batch{}, &CoercionError{
				Column: schema.ColInvoiceDate, Row: ri,
				Err: errMissingTimestamp,
			}
		}
		ts, err := nr[dateIdx].CoerceTime(layouts)
		if err != nil {
			return records.Batch{}, &CoercionError{Column: schema.ColInvoiceDate, Row: ri, Err: err}
		}
		nr[dateIdx] = ts

		nr[custIdx] = nr[custIdx].CoerceString()

		q, err := nr[qtyIdx].CoerceInt()
		if err != nil {
			return records.Batch{}, &CoercionError{Column: schema.ColQuantity, Row: ri, Err: err}
		}
		nr[qtyIdx] = q

		p, err := nr[priceIdx].CoerceFloat()
		if err != nil {
			return records.Batch{}, &CoercionError{Column: schema.ColPrice, Row: ri, Err: err}
		}
		nr[priceIdx] = p

		out.Rows[ri] = nr
	}

	rep.logf("converted %s to timestamp", schema.ColInvoiceDate)
	rep.logf("converted %s to string", schema.ColCustomerID)
	return out, nil
}

var errMissingTimestamp = errors.New("missing timestamp value")

// dropCancellations removes rows whose invoice starts with a cancellation or
// adjustment marker ('C' or 'A'). The removed count is recorded under
// invalid_values["test_transactions"].
func dropCancellations(b records.Batch, rep *Report) records.Batch {
	idx := b.Index(schema.ColInvoice)
	rows := make([][]records.Value, 0, len(b.Rows))
	removed := 0
	for _, row := range b.Rows {
		inv := row[idx].Text()
		if strings.HasPrefix(inv, "C") || strings.HasPrefix(inv, "A") {
			removed++
			continue
		}
		rows = append(rows, row)
	}
	if removed > 0 {
		rep.InvalidValues["test_transactions"] = removed
		rep.logf("removed test transactions")
	}
	return records.Batch{Columns: b.Columns, Rows: rows}
}

// dropNonPositive removes rows whose value in col is null or <= 0, counting
// the removals under invalid_values[col]. It runs on the batch as reduced by
// the preceding filters.
func dropNonPositive(b records.Batch, col string, rep *Report) records.Batch {
	idx := b.Index(col)
	rows := make([][]records.Value, 0, len(b.Rows))
	removed := 0
	for _, row := range b.Rows {
		f, ok := row[idx].Float64()
		if !ok || f <= 0 {
			removed++
			continue
		}
		rows = append(rows, row)
	}
	if removed > 0 {
		rep.InvalidValues[col] = removed
		rep.logf("removed invalid %s values", col)
	}
	return records.Batch{Columns: b.Columns, Rows: rows}
}

// derive materializes canonical records, computing total_amount row-wise.
func derive(b records.Batch, rep *Report) []Record {
	var (
		invIdx   = b.Index(schema.ColInvoice)
		stockIdx = b.Index(schema.ColStockCode)
		descIdx  = b.Index(schema.ColDescription)
		qtyIdx   = b.Index(schema.ColQuantity)
		dateIdx  = b.Index(schema.ColInvoiceDate)
		priceIdx = b.Index(schema.ColPrice)
		custIdx  = b.Index(schema.ColCustomerID)
		ctryIdx  = b.Index(schema.ColCountry)
	)

	out := make([]Record, 0, len(b.Rows))
	for _, row := range b.Rows {
		qty, _ := row[qtyIdx].Int64()
		price, _ := row[priceIdx].Float64()
		ts, _ := row[dateIdx].Time()

		rec := Record{
			Invoice:     row[invIdx].Text(),
			StockCode:   row[stockIdx].Text(),
			Description: row[descIdx].Text(),
			Quantity:    qty,
			InvoiceDate: ts,
			Price:       price,
			CustomerID:  row[custIdx].Text(),
			TotalAmount: float64(qty) * price,
		}
		if ctryIdx >= 0 {
			rec.Country = row[ctryIdx].Text()
		}
		out = append(out, rec)
	}
	if len(out) > 0 {
		rep.logf("calculated %s", schema.ColTotalAmount)
	}
	return out
}
