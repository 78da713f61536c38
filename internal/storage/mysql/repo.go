// Package mysql implements the warehouse store on MySQL/MariaDB through
// database/sql and the go-sql-driver driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"retailetl/internal/storage"
)

func init() {
	storage.Register("mysql", NewStore)
}

type Repo struct {
	db *sql.DB
}

// NewStore opens a database/sql pool against cfg.DSN.
//
// The DSN should carry parseTime=true so DATETIME columns scan into
// time.Time; without it MaxInvoiceDate fails at scan time.
func NewStore(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	r.db.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			// MySQL before 8.0.29 lacks CREATE INDEX IF NOT EXISTS, so the
			// index statements report duplicates instead. Harmless on re-run.
			if strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func schemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id VARCHAR(64) PRIMARY KEY,
			country VARCHAR(128) NOT NULL,
			first_purchase_date DATETIME NOT NULL,
			last_purchase_date DATETIME NOT NULL,
			total_spent DOUBLE NOT NULL DEFAULT 0,
			total_transactions BIGINT NOT NULL DEFAULT 0,
			schema_version VARCHAR(16) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			stock_code VARCHAR(64) PRIMARY KEY,
			description TEXT NOT NULL,
			category VARCHAR(64) NOT NULL,
			schema_version VARCHAR(16) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			invoice VARCHAR(64) NOT NULL,
			invoice_date DATETIME NOT NULL,
			customer_id VARCHAR(64) NOT NULL,
			stock_code VARCHAR(64) NOT NULL,
			quantity BIGINT NOT NULL,
			price DOUBLE NOT NULL,
			total_amount DOUBLE NOT NULL,
			country VARCHAR(128) NOT NULL,
			schema_version VARCHAR(16) NOT NULL,
			CONSTRAINT fk_tx_customer FOREIGN KEY (customer_id) REFERENCES customers (customer_id),
			CONSTRAINT fk_tx_product FOREIGN KEY (stock_code) REFERENCES products (stock_code)
		)`,
		`CREATE INDEX idx_transactions_invoice_date ON transactions (invoice_date)`,
		`CREATE INDEX idx_transactions_customer_id ON transactions (customer_id)`,
	}
}

func (r *Repo) MaxInvoiceDate(ctx context.Context) (time.Time, bool, error) {
	var ts sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT MAX(invoice_date) FROM transactions`).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("max invoice_date: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time, true, nil
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

	for start := 0; start < len(customers); start += chunkRows {
		part := customers[start:end(start, len(customers))]
		query, args := buildCustomerUpsertSQL(part)
		out, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return res, fmt.Errorf("upsert customers: %w", err)
		}
		// MySQL counts an updated row twice in RowsAffected; the counts here
		// are informational, so we report the input size instead.
		_ = out
		res.Customers += int64(len(part))
	}

	for start := 0; start < len(products); start += chunkRows {
		part := products[start:end(start, len(products))]
		query, args := buildProductUpsertSQL(part)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return res, fmt.Errorf("upsert products: %w", err)
		}
		res.Products += int64(len(part))
	}

	for start := 0; start < len(txs); start += chunkRows {
		part := txs[start:end(start, len(txs))]
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

const chunkRows = 2000

func end(start, n int) int {
	if start+chunkRows < n {
		return start + chunkRows
	}
	return n
}

/* ---------- SQL builders ---------- */

var customerColumns = []string{
	"customer_id", "country", "first_purchase_date", "last_purchase_date",
	"total_spent", "total_transactions", "schema_version",
}

func buildCustomerUpsertSQL(rows []storage.CustomerRow) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(customerColumns))

	writeInsertHead(&b, "customers", customerColumns, len(rows))
	for _, r := range rows {
		args = append(args,
			r.CustomerID, r.Country, r.FirstPurchaseDate, r.LastPurchaseDate,
			r.TotalSpent, r.TotalTransactions, r.SchemaVersion)
	}

	b.WriteString(" ON DUPLICATE KEY UPDATE ")
	b.WriteString(`country = VALUES(country), ` +
		`first_purchase_date = LEAST(first_purchase_date, VALUES(first_purchase_date)), ` +
		`last_purchase_date = GREATEST(last_purchase_date, VALUES(last_purchase_date)), ` +
		`total_spent = total_spent + VALUES(total_spent), ` +
		`total_transactions = total_transactions + VALUES(total_transactions), ` +
		`schema_version = VALUES(schema_version)`)
	return b.String(), args
}

var productColumns = []string{"stock_code", "description", "category", "schema_version"}

func buildProductUpsertSQL(rows []storage.ProductRow) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(productColumns))

	writeInsertHead(&b, "products", productColumns, len(rows))
	for _, r := range rows {
		args = append(args, r.StockCode, r.Description, r.Category, r.SchemaVersion)
	}

	b.WriteString(" ON DUPLICATE KEY UPDATE ")
	b.WriteString(`description = VALUES(description), ` +
		`category = VALUES(category), ` +
		`schema_version = VALUES(schema_version)`)
	return b.String(), args
}

var transactionColumns = []string{
	"invoice", "invoice_date", "customer_id", "stock_code",
	"quantity", "price", "total_amount", "country", "schema_version",
}

func buildTransactionInsertSQL(rows []storage.TransactionRow) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(transactionColumns))

	writeInsertHead(&b, "transactions", transactionColumns, len(rows))
	for _, r := range rows {
		args = append(args,
			r.Invoice, r.InvoiceDate, r.CustomerID, r.StockCode,
			r.Quantity, r.Price, r.TotalAmount, r.Country, r.SchemaVersion)
	}
	return b.String(), args
}

func writeInsertHead(b *strings.Builder, table string, columns []string, nrows int) {
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	for i := 0; i < nrows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
}
