// Package sqlite implements the warehouse store on SQLite via the pure-Go
// modernc driver. Useful for local runs and tests; no server required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"retailetl/internal/storage"
)

func init() {
	storage.Register("sqlite", NewStore)
}

// Timestamps are stored as RFC3339 UTC strings. SQLite has no native time
// type and lexicographic order on RFC3339 matches chronological order, so
// MAX(invoice_date) stays correct.
const timeLayout = time.RFC3339

type Repo struct {
	db *sql.DB
}

func NewStore(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a larger pool just trades errors for locks.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	r.db.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func schemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id TEXT PRIMARY KEY,
			country TEXT NOT NULL,
			first_purchase_date TEXT NOT NULL,
			last_purchase_date TEXT NOT NULL,
			total_spent REAL NOT NULL DEFAULT 0,
			total_transactions INTEGER NOT NULL DEFAULT 0,
			schema_version TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			stock_code TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			schema_version TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
			invoice TEXT NOT NULL,
			invoice_date TEXT NOT NULL,
			customer_id TEXT NOT NULL REFERENCES customers(customer_id),
			stock_code TEXT NOT NULL REFERENCES products(stock_code),
			quantity INTEGER NOT NULL,
			price REAL NOT NULL,
			total_amount REAL NOT NULL,
			country TEXT NOT NULL,
			schema_version TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_invoice_date ON transactions (invoice_date);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_customer_id ON transactions (customer_id);`,
	}
}

func (r *Repo) MaxInvoiceDate(ctx context.Context) (time.Time, bool, error) {
	var raw sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT MAX(invoice_date) FROM transactions`).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("max invoice_date: %w", err)
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(timeLayout, raw.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse invoice_date %q: %w", raw.String, err)
	}
	return ts, true, nil
}

func (r *Repo) LoadBatch(
	ctx context.Context,
	customers []storage.CustomerRow,
	products []storage.ProductRow,
	txs []storage.TransactionRow,
) (storage.LoadResult, error) {
	var res storage.LoadResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, c := range customers {
		if _, err := tx.ExecContext(ctx, customerUpsertSQL,
			c.CustomerID, c.Country,
			c.FirstPurchaseDate.UTC().Format(timeLayout),
			c.LastPurchaseDate.UTC().Format(timeLayout),
			c.TotalSpent, c.TotalTransactions, c.SchemaVersion,
		); err != nil {
			return res, fmt.Errorf("upsert customer %s: %w", c.CustomerID, err)
		}
		res.Customers++
	}

	for _, p := range products {
		if _, err := tx.ExecContext(ctx, productUpsertSQL,
			p.StockCode, p.Description, p.Category, p.SchemaVersion,
		); err != nil {
			return res, fmt.Errorf("upsert product %s: %w", p.StockCode, err)
		}
		res.Products++
	}

	for start := 0; start < len(txs); start += chunkRows {
		stop := start + chunkRows
		if stop > len(txs) {
			stop = len(txs)
		}
		part := txs[start:stop]
		query, args := buildTransactionInsertSQL(part)
		out, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return res, fmt.Errorf("insert transactions: %w", err)
		}
		n, _ := out.RowsAffected()
		res.Transactions += n
	}

	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

const chunkRows = 500

const customerUpsertSQL = `INSERT INTO customers
	(customer_id, country, first_purchase_date, last_purchase_date, total_spent, total_transactions, schema_version)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(customer_id) DO UPDATE SET
	country = excluded.country,
	first_purchase_date = MIN(first_purchase_date, excluded.first_purchase_date),
	last_purchase_date = MAX(last_purchase_date, excluded.last_purchase_date),
	total_spent = total_spent + excluded.total_spent,
	total_transactions = total_transactions + excluded.total_transactions,
	schema_version = excluded.schema_version;`

const productUpsertSQL = `INSERT INTO products
	(stock_code, description, category, schema_version)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(stock_code) DO UPDATE SET
	description = excluded.description,
	category = excluded.category,
	schema_version = excluded.schema_version;`

func buildTransactionInsertSQL(rows []storage.TransactionRow) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO transactions
	(invoice, invoice_date, customer_id, stock_code, quantity, price, total_amount, country, schema_version)
	VALUES `)

	args := make([]any, 0, len(rows)*9)
	for i, t := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			t.Invoice, t.InvoiceDate.UTC().Format(timeLayout),
			t.CustomerID, t.StockCode,
			t.Quantity, t.Price, t.TotalAmount, t.Country, t.SchemaVersion)
	}
	b.WriteString(";")
	return b.String(), args
}
