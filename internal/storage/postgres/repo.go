// Package postgres implements the warehouse store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"retailetl/internal/storage"
)

func init() {
	// registers the backend factory
	storage.Register("postgres", NewStore)
}

// Repo implements storage.Store for Postgres.
//
// Upsert behavior:
//   - customers: ON CONFLICT (customer_id) DO UPDATE, additive totals
//   - products:  ON CONFLICT (stock_code) DO UPDATE, overwrite description/category
//   - transactions: plain INSERT, the table is append-only
type Repo struct {
	pool *pgxpool.Pool
}

// NewStore opens a pgx pool against cfg.DSN.
func NewStore(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureSchema creates the three tables and the transaction indexes.
// Idempotent: everything is IF NOT EXISTS.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements() {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
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
			first_purchase_date TIMESTAMPTZ NOT NULL,
			last_purchase_date TIMESTAMPTZ NOT NULL,
			total_spent DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_transactions BIGINT NOT NULL DEFAULT 0,
			schema_version TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			stock_code TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			schema_version TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id BIGSERIAL PRIMARY KEY,
			invoice TEXT NOT NULL,
			invoice_date TIMESTAMPTZ NOT NULL,
			customer_id TEXT NOT NULL REFERENCES customers(customer_id),
			stock_code TEXT NOT NULL REFERENCES products(stock_code),
			quantity BIGINT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			country TEXT NOT NULL,
			schema_version TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_invoice_date ON transactions (invoice_date);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_customer_id ON transactions (customer_id);`,
	}
}

// MaxInvoiceDate returns the watermark. An empty transactions table yields
// ok=false, not an error.
func (r *Repo) MaxInvoiceDate(ctx context.Context) (time.Time, bool, error) {
	var ts *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(invoice_date) FROM transactions`).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("max invoice_date: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

// LoadBatch writes one batch inside a single transaction. Parents (customers,
// products) go first so the transaction foreign keys resolve.
func (r *Repo) LoadBatch(
	ctx context.Context,
	customers []storage.CustomerRow,
	products []storage.ProductRow,
	txs []storage.TransactionRow,
) (storage.LoadResult, error) {
	var res storage.LoadResult

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(customers); start += chunkRows {
		part := customers[start:min(start+chunkRows, len(customers))]
		sql, args := buildCustomerUpsertSQL(part)
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return res, fmt.Errorf("upsert customers: %w", err)
		}
		res.Customers += cmd.RowsAffected()
	}

	for start := 0; start < len(products); start += chunkRows {
		part := products[start:min(start+chunkRows, len(products))]
		sql, args := buildProductUpsertSQL(part)
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return res, fmt.Errorf("upsert products: %w", err)
		}
		res.Products += cmd.RowsAffected()
	}

	for start := 0; start < len(txs); start += chunkRows {
		part := txs[start:min(start+chunkRows, len(txs))]
		sql, args := buildTransactionInsertSQL(part)
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return res, fmt.Errorf("insert transactions: %w", err)
		}
		res.Transactions += cmd.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Conservative chunk size to keep statements small and well below Postgres's
// parameter limit (9 columns * 2000 rows = 18k parameters).
const chunkRows = 2000

/* ---------- SQL builders ---------- */

// The builders are pure and deterministic so we can unit test correctness
// (especially ON CONFLICT behavior and placeholder numbering) without a
// database.

var customerColumns = []string{
	"customer_id", "country", "first_purchase_date", "last_purchase_date",
	"total_spent", "total_transactions", "schema_version",
}

func buildCustomerUpsertSQL(rows []storage.CustomerRow) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(customerColumns))

	writeInsertHead(&b, "customers", customerColumns)
	p := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		p = writePlaceholders(&b, p, len(customerColumns))
		args = append(args,
			r.CustomerID, r.Country, r.FirstPurchaseDate, r.LastPurchaseDate,
			r.TotalSpent, r.TotalTransactions, r.SchemaVersion)
	}

	// Totals are additive so reloads of *new* windows accumulate; the first
	// and last purchase dates widen monotonically.
	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent("customer_id"))
	b.WriteString(") DO UPDATE SET ")
	b.WriteString(`country = EXCLUDED.country, ` +
		`first_purchase_date = LEAST(customers.first_purchase_date, EXCLUDED.first_purchase_date), ` +
		`last_purchase_date = GREATEST(customers.last_purchase_date, EXCLUDED.last_purchase_date), ` +
		`total_spent = customers.total_spent + EXCLUDED.total_spent, ` +
		`total_transactions = customers.total_transactions + EXCLUDED.total_transactions, ` +
		`schema_version = EXCLUDED.schema_version`)
	b.WriteString(";")
	return b.String(), args
}

var productColumns = []string{"stock_code", "description", "category", "schema_version"}

func buildProductUpsertSQL(rows []storage.ProductRow) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(productColumns))

	writeInsertHead(&b, "products", productColumns)
	p := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		p = writePlaceholders(&b, p, len(productColumns))
		args = append(args, r.StockCode, r.Description, r.Category, r.SchemaVersion)
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent("stock_code"))
	b.WriteString(") DO UPDATE SET ")
	b.WriteString(`description = EXCLUDED.description, ` +
		`category = EXCLUDED.category, ` +
		`schema_version = EXCLUDED.schema_version`)
	b.WriteString(";")
	return b.String(), args
}

var transactionColumns = []string{
	"invoice", "invoice_date", "customer_id", "stock_code",
	"quantity", "price", "total_amount", "country", "schema_version",
}

func buildTransactionInsertSQL(rows []storage.TransactionRow) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(transactionColumns))

	writeInsertHead(&b, "transactions", transactionColumns)
	p := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		p = writePlaceholders(&b, p, len(transactionColumns))
		args = append(args,
			r.Invoice, r.InvoiceDate, r.CustomerID, r.StockCode,
			r.Quantity, r.Price, r.TotalAmount, r.Country, r.SchemaVersion)
	}
	b.WriteString(";")
	return b.String(), args
}

func writeInsertHead(b *strings.Builder, table string, columns []string) {
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")
}

// writePlaceholders writes ($p, $p+1, ...) and returns the next placeholder
// number.
func writePlaceholders(b *strings.Builder, p, n int) int {
	b.WriteString("(")
	for j := 0; j < n; j++ {
		if j > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "$%d", p)
		p++
	}
	b.WriteString(")")
	return p
}

// pgIdent quotes an identifier for Postgres. Column names here come from
// our own constants, but quoting keeps reserved words safe.
func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
