package metrics

import (
	"errors"
	"testing"
	"time"
)

type captureBackend struct {
	counters   map[string]float64
	histograms map[string][]float64
	labels     map[string]Labels
	flushed    int
}

func newCapture() *captureBackend {
	return &captureBackend{
		counters:   map[string]float64{},
		histograms: map[string][]float64{},
		labels:     map[string]Labels{},
	}
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.counters[name] += delta
	c.labels[name] = labels
}

func (c *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	c.histograms[name] = append(c.histograms[name], value)
	c.labels[name] = labels
}

func (c *captureBackend) Flush() error {
	c.flushed++
	return nil
}

func withBackend(t *testing.T, b Backend) {
	t.Helper()
	prev := backend
	SetBackend(b)
	t.Cleanup(func() { backend = prev })
}

func TestRecordStepSuccess(t *testing.T) {
	c := newCapture()
	withBackend(t, c)

	RecordStep("online-retail", "clean", nil, 250*time.Millisecond)

	if c.counters["retail_step_total"] != 1 {
		t.Fatalf("step counter = %v", c.counters["retail_step_total"])
	}
	lbls := c.labels["retail_step_total"]
	if lbls["status"] != "success" || lbls["step"] != "clean" || lbls["job"] != "online-retail" {
		t.Fatalf("labels = %v", lbls)
	}
	if got := c.histograms["retail_step_duration_seconds"]; len(got) != 1 || got[0] != 0.25 {
		t.Fatalf("duration samples = %v", got)
	}
}

func TestRecordStepFailure(t *testing.T) {
	c := newCapture()
	withBackend(t, c)

	RecordStep("online-retail", "load", errors.New("boom"), time.Second)

	if c.labels["retail_step_total"]["status"] != "failure" {
		t.Fatalf("labels = %v", c.labels["retail_step_total"])
	}
}

func TestRecordRowIgnoresNonPositive(t *testing.T) {
	c := newCapture()
	withBackend(t, c)

	RecordRow("online-retail", "rejected", 0)
	RecordRow("online-retail", "rejected", -5)
	if len(c.counters) != 0 {
		t.Fatalf("counters = %v", c.counters)
	}

	RecordRow("online-retail", "rejected", 42)
	if c.counters["retail_records_total"] != 42 {
		t.Fatalf("counter = %v", c.counters["retail_records_total"])
	}
}

func TestSetBackendNilKeepsExisting(t *testing.T) {
	c := newCapture()
	withBackend(t, c)

	SetBackend(nil)
	RecordBatches("online-retail", 1)
	if c.counters["retail_batches_total"] != 1 {
		t.Fatal("nil SetBackend must keep the current backend")
	}
}

func TestFlushDelegates(t *testing.T) {
	c := newCapture()
	withBackend(t, c)

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c.flushed != 1 {
		t.Fatalf("flushed = %d", c.flushed)
	}
}
