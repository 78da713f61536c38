package mysql

import (
	"strings"
	"testing"
	"time"

	"retailetl/internal/storage"
)

func TestBuildCustomerUpsertSQLAdditiveTotals(t *testing.T) {
	row := storage.CustomerRow{
		CustomerID:        "12583",
		Country:           "France",
		FirstPurchaseDate: time.Date(2010, 12, 1, 8, 45, 0, 0, time.UTC),
		LastPurchaseDate:  time.Date(2010, 12, 1, 8, 45, 0, 0, time.UTC),
		TotalSpent:        855.86,
		TotalTransactions: 1,
		SchemaVersion:     "1.0",
	}

	sql, args := buildCustomerUpsertSQL([]storage.CustomerRow{row, row})

	if !strings.Contains(sql, "ON DUPLICATE KEY UPDATE") {
		t.Fatalf("missing upsert clause: %s", sql)
	}
	if !strings.Contains(sql, "total_spent = total_spent + VALUES(total_spent)") {
		t.Fatalf("total_spent must be additive: %s", sql)
	}
	if !strings.Contains(sql, "total_transactions = total_transactions + VALUES(total_transactions)") {
		t.Fatalf("total_transactions must be additive: %s", sql)
	}
	if !strings.Contains(sql, "country = VALUES(country)") {
		t.Fatalf("country must be overwritten: %s", sql)
	}
	if want := 2 * len(customerColumns); len(args) != want {
		t.Fatalf("got %d args, want %d", len(args), want)
	}
	if got := strings.Count(sql, "(?, ?, ?, ?, ?, ?, ?)"); got != 2 {
		t.Fatalf("want 2 placeholder tuples, found %d in %s", got, sql)
	}
}

func TestBuildProductUpsertSQLOverwrites(t *testing.T) {
	sql, _ := buildProductUpsertSQL([]storage.ProductRow{{
		StockCode: "22423", Description: "REGENCY CAKESTAND 3 TIER",
		Category: "REGENCY", SchemaVersion: "1.0",
	}})

	if !strings.Contains(sql, "description = VALUES(description)") {
		t.Fatalf("description must be overwritten: %s", sql)
	}
	if strings.Contains(sql, "total_spent") {
		t.Fatalf("product upsert must not touch customer columns: %s", sql)
	}
}

func TestBuildTransactionInsertSQLPlainAppend(t *testing.T) {
	sql, args := buildTransactionInsertSQL([]storage.TransactionRow{{
		Invoice: "536365", InvoiceDate: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC),
		CustomerID: "17850", StockCode: "85123A",
		Quantity: 6, Price: 2.55, TotalAmount: 15.30,
		Country: "United Kingdom", SchemaVersion: "1.0",
	}})

	if strings.Contains(sql, "ON DUPLICATE KEY") {
		t.Fatalf("transactions insert must be plain append: %s", sql)
	}
	if len(args) != len(transactionColumns) {
		t.Fatalf("got %d args, want %d", len(args), len(transactionColumns))
	}
}
