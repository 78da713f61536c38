package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is severity error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of a Pipeline.
//
// It does not mutate the pipeline. Callers may decide whether to treat
// warnings as fatal or not.
func Validate(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics for the run",
		})
	}

	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateStorage(p.Storage)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	hasFile := strings.TrimSpace(s.File) != ""
	hasURLs := len(s.URLs) > 0
	hasCatalog := strings.TrimSpace(s.CatalogURL) != ""

	modes := 0
	for _, on := range []bool{hasFile, hasURLs, hasCatalog} {
		if on {
			modes++
		}
	}
	switch {
	case modes == 0:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source",
			Message:  "one of file, urls or catalog_url is required",
		})
	case modes > 1:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source",
			Message:  "multiple source modes set; file wins over urls, urls win over catalog_url",
		})
	}

	if hasCatalog && strings.TrimSpace(s.LinkSuffix) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.link_suffix",
			Message:  "link_suffix is required with catalog_url (e.g. \".csv\")",
		})
	}

	if (hasURLs || hasCatalog) && strings.TrimSpace(s.Filename) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.filename",
			Message:  "filename is required when downloading",
		})
	}

	for i, u := range s.URLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("source.urls[%d]", i),
				Message:  fmt.Sprintf("url %q must start with http:// or https://", u),
			})
		}
	}

	if s.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	if s.InsecureSkipVerify {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.insecure_skip_verify",
			Message:  "TLS verification is disabled",
		})
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	if p.Comma != "" && utf8.RuneCountInString(p.Comma) != 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.comma",
			Message:  fmt.Sprintf("comma must be a single character, got %q", p.Comma),
		})
	}

	switch strings.ToLower(strings.TrimSpace(p.Encoding)) {
	case "", "utf-8", "utf8", "windows-1252", "cp1252":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.encoding",
			Message:  fmt.Sprintf("unsupported encoding %q (utf-8 or windows-1252)", p.Encoding),
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "kind is required (postgres, mysql, sqlite, mssql)",
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "dsn is required",
		})
	}
	return issues
}
