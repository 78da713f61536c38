package sqlite

import (
	"context"
	"math"
	"testing"
	"time"

	"retailetl/internal/storage"
)

// The modernc driver is pure Go, so these tests run against a real in-memory
// database instead of asserting on SQL text.

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()

	st, err := NewStore(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(st.Close)

	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Second call must be a no-op.
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema (repeat): %v", err)
	}
	return st
}

func batchAt(ts time.Time, invoice string, spent float64) ([]storage.CustomerRow, []storage.ProductRow, []storage.TransactionRow) {
	customers := []storage.CustomerRow{{
		CustomerID: "17850", Country: "United Kingdom",
		FirstPurchaseDate: ts, LastPurchaseDate: ts,
		TotalSpent: spent, TotalTransactions: 1, SchemaVersion: "1.0",
	}}
	products := []storage.ProductRow{{
		StockCode: "85123A", Description: "WHITE HANGING HEART T-LIGHT HOLDER",
		Category: "WHITE", SchemaVersion: "1.0",
	}}
	txs := []storage.TransactionRow{{
		Invoice: invoice, InvoiceDate: ts, CustomerID: "17850", StockCode: "85123A",
		Quantity: 6, Price: spent / 6, TotalAmount: spent,
		Country: "United Kingdom", SchemaVersion: "1.0",
	}}
	return customers, products, txs
}

func TestMaxInvoiceDateEmptyTable(t *testing.T) {
	st := openTestStore(t)

	_, ok, err := st.MaxInvoiceDate(context.Background())
	if err != nil {
		t.Fatalf("MaxInvoiceDate: %v", err)
	}
	if ok {
		t.Fatal("empty table must report ok=false")
	}
}

func TestLoadBatchAndWatermark(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	customers, products, txs := batchAt(first, "536365", 15.30)

	res, err := st.LoadBatch(ctx, customers, products, txs)
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if res.Customers != 1 || res.Products != 1 || res.Transactions != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}

	got, ok, err := st.MaxInvoiceDate(ctx)
	if err != nil {
		t.Fatalf("MaxInvoiceDate: %v", err)
	}
	if !ok || !got.Equal(first) {
		t.Fatalf("watermark = %v ok=%v, want %v", got, ok, first)
	}

	// A later batch advances the watermark.
	second := time.Date(2011, 1, 4, 10, 0, 0, 0, time.UTC)
	customers, products, txs = batchAt(second, "539993", 20.00)
	if _, err := st.LoadBatch(ctx, customers, products, txs); err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	got, ok, err = st.MaxInvoiceDate(ctx)
	if err != nil || !ok {
		t.Fatalf("MaxInvoiceDate: ok=%v err=%v", ok, err)
	}
	if !got.Equal(second) {
		t.Fatalf("watermark = %v, want %v", got, second)
	}
}

func TestCustomerUpsertIsAdditive(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	repo := st.(*Repo)

	t1 := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	t2 := time.Date(2011, 1, 4, 10, 0, 0, 0, time.UTC)

	c1, p1, x1 := batchAt(t1, "536365", 15.30)
	c2, p2, x2 := batchAt(t2, "539993", 20.00)

	if _, err := st.LoadBatch(ctx, c1, p1, x1); err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if _, err := st.LoadBatch(ctx, c2, p2, x2); err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}

	var spent float64
	var count int64
	var firstRaw, lastRaw string
	row := repo.db.QueryRowContext(ctx,
		`SELECT total_spent, total_transactions, first_purchase_date, last_purchase_date
		 FROM customers WHERE customer_id = ?`, "17850")
	if err := row.Scan(&spent, &count, &firstRaw, &lastRaw); err != nil {
		t.Fatalf("scan customer: %v", err)
	}

	if math.Abs(spent-35.30) > 1e-9 {
		t.Fatalf("total_spent = %v, want 35.30", spent)
	}
	if count != 2 {
		t.Fatalf("total_transactions = %d, want 2", count)
	}
	if firstRaw != t1.Format(timeLayout) {
		t.Fatalf("first_purchase_date = %s, want %s", firstRaw, t1.Format(timeLayout))
	}
	if lastRaw != t2.Format(timeLayout) {
		t.Fatalf("last_purchase_date = %s, want %s", lastRaw, t2.Format(timeLayout))
	}
}

func TestProductUpsertOverwrites(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	repo := st.(*Repo)

	ts := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	customers, products, txs := batchAt(ts, "536365", 15.30)
	if _, err := st.LoadBatch(ctx, customers, products, txs); err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}

	updated := []storage.ProductRow{{
		StockCode: "85123A", Description: "CREAM HANGING HEART T-LIGHT HOLDER",
		Category: "CREAM", SchemaVersion: "1.0",
	}}
	if _, err := st.LoadBatch(ctx, nil, updated, nil); err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}

	var desc, cat string
	row := repo.db.QueryRowContext(ctx,
		`SELECT description, category FROM products WHERE stock_code = ?`, "85123A")
	if err := row.Scan(&desc, &cat); err != nil {
		t.Fatalf("scan product: %v", err)
	}
	if desc != "CREAM HANGING HEART T-LIGHT HOLDER" || cat != "CREAM" {
		t.Fatalf("product not overwritten: %s / %s", desc, cat)
	}
}

func TestLoadBatchRollsBackOnForeignKeyViolation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	repo := st.(*Repo)

	ts := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	orphan := []storage.TransactionRow{{
		Invoice: "536365", InvoiceDate: ts,
		CustomerID: "no-such-customer", StockCode: "no-such-product",
		Quantity: 1, Price: 1, TotalAmount: 1,
		Country: "United Kingdom", SchemaVersion: "1.0",
	}}

	if _, err := st.LoadBatch(ctx, nil, nil, orphan); err == nil {
		t.Fatal("expected foreign key violation")
	}

	var n int64
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rollback left %d rows behind", n)
	}
}
