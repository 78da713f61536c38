package cleaner

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"retailetl/internal/records"
	"retailetl/internal/schema"
)

// rawBatch builds a batch the way the CSV parser would: header labels as-is,
// empty cells as null, everything else as string.
func rawBatch(cols []string, rows ...[]string) records.Batch {
	b := records.Batch{Columns: cols}
	for _, r := range rows {
		cells := make([]records.Value, len(r))
		for i, c := range r {
			if c == "" {
				cells[i] = records.Null()
			} else {
				cells[i] = records.String(c)
			}
		}
		b.Rows = append(b.Rows, cells)
	}
	return b
}

var rawHeader = []string{"Invoice", "StockCode", "Description", "Quantity", "InvoiceDate", "Price", "Customer ID", "Country"}

func newNormalizer() *Normalizer {
	return &Normalizer{Schema: schema.Default()}
}

func TestCleanHappyPath(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "WHITE HANGING HEART", "6", "2010-12-01 08:26:00", "2.55", "17850", "United Kingdom"},
		[]string{"536366", "71053", "WHITE METAL LANTERN", "4", "2010-12-01 08:28:00", "3.39", "17850", "United Kingdom"},
	)

	recs, rep, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	r := recs[0]
	if r.Invoice != "536365" || r.StockCode != "85123A" || r.CustomerID != "17850" {
		t.Errorf("unexpected record identity: %+v", r)
	}
	if r.Quantity != 6 || r.Price != 2.55 {
		t.Errorf("quantity/price = %d/%v, want 6/2.55", r.Quantity, r.Price)
	}
	if want := 6 * 2.55; math.Abs(r.TotalAmount-want) > 1e-9 {
		t.Errorf("total_amount = %v, want %v", r.TotalAmount, want)
	}
	wantTS := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	if !r.InvoiceDate.Equal(wantTS) {
		t.Errorf("invoice_date = %v, want %v", r.InvoiceDate, wantTS)
	}

	if rep.OriginalRows != 2 || rep.CleanedRows != 2 || rep.RejectedRows != 0 {
		t.Errorf("report counts = %d/%d/%d, want 2/2/0",
			rep.OriginalRows, rep.CleanedRows, rep.RejectedRows)
	}
	if rep.RejectionRate != 0 {
		t.Errorf("rejection_rate = %v, want 0", rep.RejectionRate)
	}
}

func TestCanonicalizeLabel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Customer ID", "customer_id"},
		{"InvoiceDate", "invoicedate"},
		{"  Unit Price  ", "unit_price"},
		{"Stock--Code", "stock_code"},
		{"customer_id", "customer_id"},
		{"___", ""},
	}
	for _, c := range cases {
		got := CanonicalizeLabel(c.in)
		if got != c.want {
			t.Errorf("CanonicalizeLabel(%q) = %q, want %q", c.in, got, c.want)
		}
		// Idempotence on the canonical form.
		if again := CanonicalizeLabel(got); again != got {
			t.Errorf("CanonicalizeLabel not idempotent: %q -> %q", got, again)
		}
	}
}

func TestMissingRequiredColumnsFailFast(t *testing.T) {
	in := rawBatch([]string{"Invoice", "Description"},
		[]string{"536365", "WHITE HANGING HEART"},
	)

	_, _, err := newNormalizer().Clean(in)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SchemaError", err)
	}
	for _, col := range []string{"customer_id", "stock_code", "invoice_date", "quantity", "price"} {
		if !strings.Contains(se.Error(), col) {
			t.Errorf("error %q does not name %s", se.Error(), col)
		}
	}
}

func TestFillsCountedPerColumn(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "", "6", "2010-12-01 08:26:00", "2.55", "", "United Kingdom"},
		[]string{"536366", "71053", "LANTERN", "4", "2010-12-01 08:28:00", "3.39", "", "France"},
	)

	recs, rep, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if recs[0].Description != schema.UnknownDescription {
		t.Errorf("description = %q, want %q", recs[0].Description, schema.UnknownDescription)
	}
	for i, r := range recs {
		if r.CustomerID != schema.GuestCustomerID {
			t.Errorf("record %d customer_id = %q, want %q", i, r.CustomerID, schema.GuestCustomerID)
		}
	}
	if got := rep.MissingValues["customer_id"]; got != 2 {
		t.Errorf("missing_values[customer_id] = %d, want 2", got)
	}
	if got := rep.MissingValues["description"]; got != 1 {
		t.Errorf("missing_values[description] = %d, want 1", got)
	}
}

func TestAbsentDescriptionColumnSynthesized(t *testing.T) {
	cols := []string{"Invoice", "StockCode", "Quantity", "InvoiceDate", "Price", "Customer ID", "Country"}
	in := rawBatch(cols,
		[]string{"536365", "85123A", "6", "2010-12-01 08:26:00", "2.55", "17850", "United Kingdom"},
	)

	recs, rep, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if recs[0].Description != schema.UnknownDescription {
		t.Errorf("description = %q, want %q", recs[0].Description, schema.UnknownDescription)
	}
	if got := rep.MissingValues["description"]; got != 1 {
		t.Errorf("missing_values[description] = %d, want 1", got)
	}
}

func TestCancellationAndAdjustmentInvoicesDropped(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "HEART", "6", "2010-12-01 08:26:00", "2.55", "17850", "United Kingdom"},
		[]string{"C536379", "D", "Discount", "1", "2010-12-01 09:41:00", "27.50", "14527", "United Kingdom"},
		[]string{"A563186", "B", "Adjust bad debt", "1", "2011-08-12 14:51:00", "11062.06", "", "United Kingdom"},
	)

	recs, rep, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(recs) != 1 || recs[0].Invoice != "536365" {
		t.Fatalf("surviving invoices wrong: %+v", recs)
	}
	if got := rep.InvalidValues["test_transactions"]; got != 2 {
		t.Errorf("invalid_values[test_transactions] = %d, want 2", got)
	}
}

func TestQuantityFilterRunsBeforePriceFilter(t *testing.T) {
	// The third row fails both predicates; only the quantity counter sees it.
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "HEART", "6", "2010-12-01 08:26:00", "2.55", "17850", "United Kingdom"},
		[]string{"536366", "71053", "LANTERN", "4", "2010-12-01 08:28:00", "0", "17850", "United Kingdom"},
		[]string{"536367", "84406B", "CUP", "-2", "2010-12-01 08:34:00", "-1.00", "13047", "United Kingdom"},
	)

	recs, rep, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if got := rep.InvalidValues["quantity"]; got != 1 {
		t.Errorf("invalid_values[quantity] = %d, want 1", got)
	}
	if got := rep.InvalidValues["price"]; got != 1 {
		t.Errorf("invalid_values[price] = %d, want 1", got)
	}
}

func TestRowConservation(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "HEART", "6", "2010-12-01 08:26:00", "2.55", "17850", "United Kingdom"},
		[]string{"C536379", "D", "Discount", "1", "2010-12-01 09:41:00", "27.50", "14527", "United Kingdom"},
		[]string{"536366", "71053", "LANTERN", "-4", "2010-12-01 08:28:00", "3.39", "17850", "United Kingdom"},
	)

	recs, rep, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if rep.CleanedRows != len(recs) {
		t.Errorf("cleaned_rows = %d, records = %d", rep.CleanedRows, len(recs))
	}
	if rep.CleanedRows+rep.RejectedRows != rep.OriginalRows {
		t.Errorf("conservation broken: %d + %d != %d",
			rep.CleanedRows, rep.RejectedRows, rep.OriginalRows)
	}
	// 2 of 3 rejected.
	if rep.RejectionRate != 0.6667 {
		t.Errorf("rejection_rate = %v, want 0.6667", rep.RejectionRate)
	}
}

func TestBadDateIsBatchFatal(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "HEART", "6", "2010-12-01 08:26:00", "2.55", "17850", "United Kingdom"},
		[]string{"536366", "71053", "LANTERN", "4", "not-a-date", "3.39", "17850", "United Kingdom"},
	)

	_, _, err := newNormalizer().Clean(in)
	var ce *CoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CoercionError", err)
	}
	if ce.Column != schema.ColInvoiceDate || ce.Row != 1 {
		t.Errorf("error context = %s/%d, want %s/1", ce.Column, ce.Row, schema.ColInvoiceDate)
	}
}

func TestNullDateIsBatchFatal(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "HEART", "6", "", "2.55", "17850", "United Kingdom"},
	)

	_, _, err := newNormalizer().Clean(in)
	var ce *CoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CoercionError", err)
	}
	if ce.Column != schema.ColInvoiceDate {
		t.Errorf("error column = %s, want %s", ce.Column, schema.ColInvoiceDate)
	}
}

func TestBadQuantityIsBatchFatal(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "HEART", "six", "2010-12-01 08:26:00", "2.55", "17850", "United Kingdom"},
	)

	_, _, err := newNormalizer().Clean(in)
	var ce *CoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CoercionError", err)
	}
	if ce.Column != schema.ColQuantity {
		t.Errorf("error column = %s, want %s", ce.Column, schema.ColQuantity)
	}
}

func TestFractionalCustomerIDNormalized(t *testing.T) {
	// Some exports render the id column as floats.
	in := records.Batch{
		Columns: rawHeader,
		Rows: [][]records.Value{{
			records.String("536365"), records.String("85123A"), records.String("HEART"),
			records.String("6"), records.String("2010-12-01 08:26:00"), records.String("2.55"),
			records.Float(17850.0), records.String("United Kingdom"),
		}},
	}

	recs, _, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if recs[0].CustomerID != "17850" {
		t.Errorf("customer_id = %q, want 17850", recs[0].CustomerID)
	}
}

func TestEmptyBatch(t *testing.T) {
	recs, rep, err := newNormalizer().Clean(records.Batch{Columns: rawHeader})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records = %d, want 0", len(recs))
	}
	if rep.OriginalRows != 0 || rep.RejectionRate != 0 {
		t.Errorf("report = %+v, want zero counts", rep)
	}
}

func TestReportTransformationsLogged(t *testing.T) {
	in := rawBatch(rawHeader,
		[]string{"536365", "85123A", "", "6", "2010-12-01 08:26:00", "2.55", "", "United Kingdom"},
		[]string{"C536379", "D", "Discount", "1", "2010-12-01 09:41:00", "27.50", "14527", "United Kingdom"},
	)

	_, rep, err := newNormalizer().Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	joined := strings.Join(rep.Transformations, "\n")
	for _, want := range []string{"renamed columns", "filled", "timestamp", "test transactions", "total_amount"} {
		if !strings.Contains(joined, want) {
			t.Errorf("transformations missing %q:\n%s", want, joined)
		}
	}
}
