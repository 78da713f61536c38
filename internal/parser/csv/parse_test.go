package csv

import (
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	in := "Invoice,StockCode,Quantity\n536365,85123A,6\n536366,71053,2\n"

	b, err := Parse(strings.NewReader(in), Options{TrimSpace: true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(b.Columns) != 3 || b.Columns[0] != "Invoice" {
		t.Fatalf("columns = %v", b.Columns)
	}
	if b.Len() != 2 {
		t.Fatalf("rows = %d, want 2", b.Len())
	}
	if got := b.Rows[0][1].Str(); got != "85123A" {
		t.Fatalf("cell = %q", got)
	}
}

func TestParseStripsBOM(t *testing.T) {
	in := "\uFEFFInvoice,Quantity\n536365,6\n"

	b, err := Parse(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Columns[0] != "Invoice" {
		t.Fatalf("BOM not stripped: %q", b.Columns[0])
	}
}

func TestParseEmptyCellsBecomeNull(t *testing.T) {
	in := "Invoice,CustomerID,Description\n536365,,  \n"

	b, err := Parse(strings.NewReader(in), Options{TrimSpace: true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !b.Rows[0][1].IsNull() {
		t.Fatal("empty cell must be null")
	}
	if !b.Rows[0][2].IsNull() {
		t.Fatal("whitespace-only cell must be null when trimming")
	}
	if b.Rows[0][0].IsNull() {
		t.Fatal("non-empty cell must not be null")
	}
}

func TestParseWindows1252(t *testing.T) {
	// 0xE9 is é in windows-1252 and invalid as standalone UTF-8.
	in := "Description\nCAF\xE9 SET\n"

	b, err := Parse(strings.NewReader(in), Options{Encoding: "windows-1252"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := b.Rows[0][0].Str(); got != "CAFé SET" {
		t.Fatalf("cell = %q", got)
	}
}

func TestParseUnsupportedEncoding(t *testing.T) {
	_, err := Parse(strings.NewReader("a\n1\n"), Options{Encoding: "ebcdic"})
	if err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}

func TestParseSemicolonDelimiter(t *testing.T) {
	in := "Invoice;Quantity\n536365;6\n"

	b, err := Parse(strings.NewReader(in), Options{Comma: ';'})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Rows[0][0].Str() != "536365" || b.Rows[0][1].Str() != "6" {
		t.Fatalf("row = %v", b.Rows[0])
	}
}

func TestParseRaggedRowFails(t *testing.T) {
	in := "a,b\n1,2\n3\n"
	if _, err := Parse(strings.NewReader(in), Options{}); err == nil {
		t.Fatal("expected error for ragged row")
	}
}

func TestParseEmptyInput(t *testing.T) {
	b, err := Parse(strings.NewReader(""), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Len() != 0 || len(b.Columns) != 0 {
		t.Fatalf("batch = %+v", b)
	}
}
