// Package selector decides which canonical records are eligible for loading,
// given the persisted watermark and any explicit date window. Its job is
// small but load-bearing: the customer merge downstream is additive, so
// re-selecting an already-loaded row double-counts aggregates.
package selector

import (
	"time"

	"retailetl/internal/cleaner"
)

// Window describes the selection inputs for one run.
//
// Precedence, highest first:
//  1. FullRefresh: no filtering at all.
//  2. Start set: inclusive window [Start, End]; End defaults to Now().
//  3. Watermark set: half-open window (Watermark, End], strictly greater
//     than the watermark so the boundary row is never reloaded.
//  4. Nothing set: initial load, everything is eligible.
type Window struct {
	FullRefresh bool

	// Start/End are the explicit operator-provided bounds; zero means unset.
	Start time.Time
	End   time.Time

	// Watermark is the maximum invoice_date already persisted.
	Watermark    time.Time
	HasWatermark bool

	// Now is a clock seam for the End default; nil means time.Now.
	Now func() time.Time
}

func (w Window) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Active reports whether the window constrains the batch at all.
func (w Window) Active() bool {
	if w.FullRefresh {
		return false
	}
	return !w.Start.IsZero() || w.HasWatermark
}

// Bounds resolves the effective (lower, lowerInclusive, upper) bounds.
// Only meaningful when Active().
func (w Window) Bounds() (lower time.Time, lowerInclusive bool, upper time.Time) {
	upper = w.End
	if upper.IsZero() {
		upper = w.now()
	}
	if !w.Start.IsZero() {
		return w.Start, true, upper
	}
	return w.Watermark, false, upper
}

// Select returns the records of batch that fall inside the window. The input
// order is preserved. An empty result is not an error; the caller skips
// loading and the run still succeeds.
func Select(batch []cleaner.Record, w Window) []cleaner.Record {
	if !w.Active() {
		return batch
	}

	lower, inclusive, upper := w.Bounds()

	out := make([]cleaner.Record, 0, len(batch))
	for _, rec := range batch {
		ts := rec.InvoiceDate
		if inclusive {
			if ts.Before(lower) {
				continue
			}
		} else if !ts.After(lower) {
			continue
		}
		if ts.After(upper) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
