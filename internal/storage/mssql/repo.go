// Package mssql implements the warehouse store on SQL Server.
//
// SQL Server has no ON CONFLICT clause, so customer and product upserts run
// as per-row MERGE statements inside the batch transaction. Slower than the
// Postgres path but identical in semantics.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"retailetl/internal/storage"
)

func init() {
	storage.Register("mssql", NewStore)
}

type Repo struct {
	db *sql.DB
}

func NewStore(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mssql ping: %w", err)
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
		`IF OBJECT_ID('customers', 'U') IS NULL
		CREATE TABLE customers (
			customer_id NVARCHAR(64) PRIMARY KEY,
			country NVARCHAR(128) NOT NULL,
			first_purchase_date DATETIME2 NOT NULL,
			last_purchase_date DATETIME2 NOT NULL,
			total_spent FLOAT NOT NULL DEFAULT 0,
			total_transactions BIGINT NOT NULL DEFAULT 0,
			schema_version NVARCHAR(16) NOT NULL
		);`,
		`IF OBJECT_ID('products', 'U') IS NULL
		CREATE TABLE products (
			stock_code NVARCHAR(64) PRIMARY KEY,
			description NVARCHAR(MAX) NOT NULL,
			category NVARCHAR(64) NOT NULL,
			schema_version NVARCHAR(16) NOT NULL
		);`,
		`IF OBJECT_ID('transactions', 'U') IS NULL
		CREATE TABLE transactions (
			transaction_id BIGINT IDENTITY(1,1) PRIMARY KEY,
			invoice NVARCHAR(64) NOT NULL,
			invoice_date DATETIME2 NOT NULL,
			customer_id NVARCHAR(64) NOT NULL REFERENCES customers(customer_id),
			stock_code NVARCHAR(64) NOT NULL REFERENCES products(stock_code),
			quantity BIGINT NOT NULL,
			price FLOAT NOT NULL,
			total_amount FLOAT NOT NULL,
			country NVARCHAR(128) NOT NULL,
			schema_version NVARCHAR(16) NOT NULL
		);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'idx_transactions_invoice_date')
		CREATE INDEX idx_transactions_invoice_date ON transactions (invoice_date);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'idx_transactions_customer_id')
		CREATE INDEX idx_transactions_customer_id ON transactions (customer_id);`,
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

	for _, c := range customers {
		if _, err := tx.ExecContext(ctx, customerMergeSQL,
			sql.Named("customer_id", c.CustomerID),
			sql.Named("country", c.Country),
			sql.Named("first_purchase_date", c.FirstPurchaseDate),
			sql.Named("last_purchase_date", c.LastPurchaseDate),
			sql.Named("total_spent", c.TotalSpent),
			sql.Named("total_transactions", c.TotalTransactions),
			sql.Named("schema_version", c.SchemaVersion),
		); err != nil {
			return res, fmt.Errorf("merge customer %s: %w", c.CustomerID, err)
		}
		res.Customers++
	}

	for _, p := range products {
		if _, err := tx.ExecContext(ctx, productMergeSQL,
			sql.Named("stock_code", p.StockCode),
			sql.Named("description", p.Description),
			sql.Named("category", p.Category),
			sql.Named("schema_version", p.SchemaVersion),
		); err != nil {
			return res, fmt.Errorf("merge product %s: %w", p.StockCode, err)
		}
		res.Products++
	}

	// SQL Server caps a statement at 2100 parameters; 9 columns keeps 200
	// rows per statement comfortably inside that.
	const chunkRows = 200
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

const customerMergeSQL = `MERGE customers AS t
USING (SELECT @customer_id AS customer_id) AS s
ON t.customer_id = s.customer_id
WHEN MATCHED THEN UPDATE SET
	country = @country,
	first_purchase_date = IIF(t.first_purchase_date < @first_purchase_date, t.first_purchase_date, @first_purchase_date),
	last_purchase_date = IIF(t.last_purchase_date > @last_purchase_date, t.last_purchase_date, @last_purchase_date),
	total_spent = t.total_spent + @total_spent,
	total_transactions = t.total_transactions + @total_transactions,
	schema_version = @schema_version
WHEN NOT MATCHED THEN INSERT
	(customer_id, country, first_purchase_date, last_purchase_date, total_spent, total_transactions, schema_version)
	VALUES (@customer_id, @country, @first_purchase_date, @last_purchase_date, @total_spent, @total_transactions, @schema_version);`

const productMergeSQL = `MERGE products AS t
USING (SELECT @stock_code AS stock_code) AS s
ON t.stock_code = s.stock_code
WHEN MATCHED THEN UPDATE SET
	description = @description,
	category = @category,
	schema_version = @schema_version
WHEN NOT MATCHED THEN INSERT
	(stock_code, description, category, schema_version)
	VALUES (@stock_code, @description, @category, @schema_version);`

func buildTransactionInsertSQL(rows []storage.TransactionRow) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO transactions
	(invoice, invoice_date, customer_id, stock_code, quantity, price, total_amount, country, schema_version)
	VALUES `)

	args := make([]any, 0, len(rows)*9)
	p := 1
	for i, t := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		vals := []any{
			t.Invoice, t.InvoiceDate, t.CustomerID, t.StockCode,
			t.Quantity, t.Price, t.TotalAmount, t.Country, t.SchemaVersion,
		}
		for j, v := range vals {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}
