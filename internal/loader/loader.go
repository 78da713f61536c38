// Package loader turns cleaned records into warehouse rows and hands them to
// a storage backend as one atomic batch.
//
// The customer aggregates built here are per-batch deltas. The backends merge
// them additively, so the loader must only ever see records the selector has
// not loaded before; feeding the same window twice doubles customer totals.
package loader

import (
	"context"
	"sort"
	"time"

	"retailetl/internal/cleaner"
	"retailetl/internal/schema"
	"retailetl/internal/storage"
)

type Logger interface {
	Printf(format string, v ...any)
}

type Loader struct {
	Store         storage.Store
	SchemaVersion string
	Logger        Logger
}

// Load persists one batch. An empty batch is a successful no-op and does not
// touch the store.
func (l *Loader) Load(ctx context.Context, recs []cleaner.Record) (storage.LoadResult, error) {
	if len(recs) == 0 {
		l.logf("loader: empty batch, nothing to load")
		return storage.LoadResult{}, nil
	}

	customers := BuildCustomerRows(recs, l.SchemaVersion)
	products := BuildProductRows(recs, l.SchemaVersion)
	txs := BuildTransactionRows(recs, l.SchemaVersion)

	start := time.Now()
	res, err := l.Store.LoadBatch(ctx, customers, products, txs)
	if err != nil {
		return res, err
	}
	l.logf("loader: customers=%d products=%d transactions=%d duration=%s",
		res.Customers, res.Products, res.Transactions, time.Since(start))
	return res, nil
}

func (l *Loader) logf(format string, v ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, v...)
	}
}

// BuildCustomerRows aggregates records per customer: first seen country,
// min/max purchase dates, summed spend, and the count of distinct invoices.
// Output is sorted by customer id so batches are deterministic.
func BuildCustomerRows(recs []cleaner.Record, schemaVersion string) []storage.CustomerRow {
	type agg struct {
		row      storage.CustomerRow
		invoices map[string]struct{}
	}
	byID := make(map[string]*agg)

	for _, r := range recs {
		a, ok := byID[r.CustomerID]
		if !ok {
			a = &agg{
				row: storage.CustomerRow{
					CustomerID:        r.CustomerID,
					Country:           r.Country,
					FirstPurchaseDate: r.InvoiceDate,
					LastPurchaseDate:  r.InvoiceDate,
					SchemaVersion:     schemaVersion,
				},
				invoices: make(map[string]struct{}),
			}
			byID[r.CustomerID] = a
		}
		if r.InvoiceDate.Before(a.row.FirstPurchaseDate) {
			a.row.FirstPurchaseDate = r.InvoiceDate
		}
		if r.InvoiceDate.After(a.row.LastPurchaseDate) {
			a.row.LastPurchaseDate = r.InvoiceDate
		}
		a.row.TotalSpent += r.TotalAmount
		a.invoices[r.Invoice] = struct{}{}
	}

	out := make([]storage.CustomerRow, 0, len(byID))
	for _, a := range byID {
		a.row.TotalTransactions = int64(len(a.invoices))
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// BuildProductRows deduplicates records per stock code, keeping the first
// description seen. Output is sorted by stock code.
func BuildProductRows(recs []cleaner.Record, schemaVersion string) []storage.ProductRow {
	byCode := make(map[string]storage.ProductRow)
	for _, r := range recs {
		if _, ok := byCode[r.StockCode]; ok {
			continue
		}
		byCode[r.StockCode] = storage.ProductRow{
			StockCode:     r.StockCode,
			Description:   r.Description,
			Category:      Category(r.Description),
			SchemaVersion: schemaVersion,
		}
	}

	out := make([]storage.ProductRow, 0, len(byCode))
	for _, p := range byCode {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockCode < out[j].StockCode })
	return out
}

// BuildTransactionRows maps records one-to-one onto transaction rows,
// preserving input order.
func BuildTransactionRows(recs []cleaner.Record, schemaVersion string) []storage.TransactionRow {
	out := make([]storage.TransactionRow, 0, len(recs))
	for _, r := range recs {
		out = append(out, storage.TransactionRow{
			Invoice:       r.Invoice,
			InvoiceDate:   r.InvoiceDate,
			CustomerID:    r.CustomerID,
			StockCode:     r.StockCode,
			Quantity:      r.Quantity,
			Price:         r.Price,
			TotalAmount:   r.TotalAmount,
			Country:       r.Country,
			SchemaVersion: schemaVersion,
		})
	}
	return out
}

// Category derives a coarse product category from the leading run of
// uppercase ASCII letters in the description ("WHITE HANGING ..." -> "WHITE").
// Descriptions that do not start with an uppercase letter fall back to OTHER.
func Category(description string) string {
	end := 0
	for end < len(description) {
		c := description[end]
		if c < 'A' || c > 'Z' {
			break
		}
		end++
	}
	if end == 0 {
		return schema.OtherCategory
	}
	return description[:end]
}
