package storage

import "time"

// Row types live here so the loader and every backend can share them without
// circular imports.

// CustomerRow is one customer aggregate for a single batch. TotalSpent and
// TotalTransactions are per-batch deltas: on conflict, backends add them to
// the stored values rather than overwriting.
type CustomerRow struct {
	CustomerID        string
	Country           string
	FirstPurchaseDate time.Time
	LastPurchaseDate  time.Time
	TotalSpent        float64
	TotalTransactions int64
	SchemaVersion     string
}

// ProductRow is one catalog entry. Description and Category are overwritten
// on conflict so the newest batch wins.
type ProductRow struct {
	StockCode     string
	Description   string
	Category      string
	SchemaVersion string
}

// TransactionRow is one line item. Transactions are append-only; the
// selector, not the database, guards against reloading them.
type TransactionRow struct {
	Invoice       string
	InvoiceDate   time.Time
	CustomerID    string
	StockCode     string
	Quantity      int64
	Price         float64
	TotalAmount   float64
	Country       string
	SchemaVersion string
}
