// Package config holds the JSON pipeline configuration and a static
// validator over decoded values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the root configuration for one ETL job.
type Pipeline struct {
	// Job names the run for logs and metrics labels.
	Job string `json:"job"`

	Source  Source  `json:"source"`
	Parser  Parser  `json:"parser"`
	Storage Storage `json:"storage"`
	Report  Report  `json:"report"`
}

// Source describes where the raw extract comes from. Exactly one of the
// three modes applies, checked in this order:
//   - File: read a local file, no network
//   - URLs: direct download with mirror fallback
//   - CatalogURL + LinkSuffix: scrape the catalog page for the dataset link
type Source struct {
	File string `json:"file,omitempty"`

	URLs []string `json:"urls,omitempty"`

	CatalogURL string `json:"catalog_url,omitempty"`
	LinkSuffix string `json:"link_suffix,omitempty"`

	// DataDir is where downloads land; Filename is the file name inside it.
	DataDir  string `json:"data_dir,omitempty"`
	Filename string `json:"filename,omitempty"`

	// Download knobs. Zero values use the fetch package defaults.
	TimeoutSeconds     int  `json:"timeout_seconds,omitempty"`
	MaxRetries         int  `json:"max_retries,omitempty"`
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// Parser configures CSV reading.
type Parser struct {
	// Comma is the field delimiter as a one-character string; "" means ",".
	Comma     string `json:"comma,omitempty"`
	TrimSpace bool   `json:"trim_space,omitempty"`
	// Encoding of the source bytes: "utf-8" (default) or "windows-1252".
	Encoding string `json:"encoding,omitempty"`
}

// CommaRune returns the delimiter as a rune, defaulting to ','.
func (p Parser) CommaRune() rune {
	for _, r := range p.Comma {
		return r
	}
	return ','
}

// Storage selects and configures the warehouse backend.
type Storage struct {
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Report configures where quality reports are written.
type Report struct {
	// Dir receives one JSON report per run; "" disables the file and the
	// report goes to the log only.
	Dir string `json:"dir,omitempty"`
}

// Load reads and decodes a pipeline config file. Unknown fields are
// rejected so typos surface as errors instead of silently-ignored keys.
func Load(path string) (Pipeline, error) {
	var p Pipeline

	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return p, nil
}
