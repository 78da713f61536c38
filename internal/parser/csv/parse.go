// Package csv reads the raw retail extract into a records.Batch.
//
// The parser stays deliberately dumb: it preserves header names as they
// appear in the file (the cleaner owns canonicalization) and distinguishes
// only empty cells, which become null values.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"retailetl/internal/records"
)

// Options controls parsing of one extract file.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune

	// TrimSpace trims leading/trailing whitespace from every cell.
	TrimSpace bool

	// Encoding names the source byte encoding. Supported: "" or "utf-8"
	// (passthrough) and "windows-1252", which the UCI retail exports use.
	Encoding string
}

// Parse reads an entire CSV document. The first row is the header; a UTF-8
// BOM on the first header cell is stripped. Ragged rows are an error, the
// file is expected to be rectangular.
func Parse(r io.Reader, opt Options) (records.Batch, error) {
	var batch records.Batch

	decoded, err := decodeReader(r, opt.Encoding)
	if err != nil {
		return batch, err
	}

	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(decoded)
	cr.Comma = comma

	header, err := cr.Read()
	if err == io.EOF {
		return batch, nil
	}
	if err != nil {
		return batch, fmt.Errorf("csv: read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if opt.TrimSpace {
			h = strings.TrimSpace(h)
		}
		columns[i] = h
	}
	batch.Columns = columns

	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return batch, fmt.Errorf("csv: line %d: %w", line, err)
		}

		values := make([]records.Value, len(row))
		for i, cell := range row {
			if opt.TrimSpace {
				cell = strings.TrimSpace(cell)
			}
			if cell == "" {
				values[i] = records.Null()
			} else {
				values[i] = records.String(cell)
			}
		}
		batch.Rows = append(batch.Rows, values)
	}
	return batch, nil
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("csv: unsupported encoding %q", encoding)
	}
}
