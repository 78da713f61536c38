package cleaner

import (
	"fmt"
	"math"
)

// Report is the quality report produced alongside every cleaned batch. It is
// created fresh per run, immutable once returned, and serialized to the audit
// sink whether or not loading happens.
type Report struct {
	OriginalRows    int            `json:"original_rows"`
	RejectedRows    int            `json:"rejected_rows"`
	CleanedRows     int            `json:"cleaned_rows"`
	RejectionRate   float64        `json:"rejection_rate"`
	Transformations []string       `json:"transformations"`
	MissingValues   map[string]int `json:"missing_values"`
	InvalidValues   map[string]int `json:"invalid_values"`
}

func newReport(originalRows int) *Report {
	return &Report{
		OriginalRows:    originalRows,
		Transformations: []string{},
		MissingValues:   map[string]int{},
		InvalidValues:   map[string]int{},
	}
}

func (r *Report) logf(format string, a ...any) {
	r.Transformations = append(r.Transformations, fmt.Sprintf(format, a...))
}

// finalize computes the rejection tallies from the final row count.
// rejection_rate is rejected/original rounded to 4 decimals, and 0.0 for an
// empty input.
func (r *Report) finalize(cleanedRows int) {
	r.CleanedRows = cleanedRows
	r.RejectedRows = r.OriginalRows - cleanedRows
	if r.OriginalRows == 0 {
		r.RejectionRate = 0.0
		return
	}
	rate := float64(r.RejectedRows) / float64(r.OriginalRows)
	r.RejectionRate = math.Round(rate*10000) / 10000
}
