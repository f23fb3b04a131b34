package metrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/san-kum/celltx/internal/dynamo"
)

func TestTotalMass(t *testing.T) {
	m := NewTotalMass("car_t", []int{0, 2})
	if m.Value() != 0 {
		t.Errorf("expected 0 before observations, got %g", m.Value())
	}
	m.Observe(dynamo.State{1, 100, 3}, 0)
	m.Observe(dynamo.State{2, 100, 5}, 1)
	if m.Value() != 7 {
		t.Errorf("expected 7, got %g", m.Value())
	}

	all := NewTotalMass("all", nil)
	all.Observe(dynamo.State{1, 2, 3}, 0)
	if all.Value() != 6 {
		t.Errorf("expected 6, got %g", all.Value())
	}
}

func TestMassDrift(t *testing.T) {
	m := NewMassDrift(nil)
	m.Observe(dynamo.State{50, 50}, 0)
	m.Observe(dynamo.State{60, 41}, 1)
	m.Observe(dynamo.State{70, 30}, 2)
	if math.Abs(m.Value()-0.01) > 1e-12 {
		t.Errorf("expected drift 0.01, got %g", m.Value())
	}

	m.Reset()
	m.Observe(dynamo.State{10}, 0)
	if m.Value() != 0 {
		t.Errorf("reset should clear drift, got %g", m.Value())
	}
}

func TestExposure(t *testing.T) {
	e := NewExposure("auc", []int{1})
	// linear ramp 0..2 over t in [0,2]
	for i := 0; i <= 4; i++ {
		ti := float64(i) * 0.5
		e.Observe(dynamo.State{99, ti}, ti)
	}
	if math.Abs(e.Value()-2) > 1e-12 {
		t.Errorf("expected AUC 2, got %g", e.Value())
	}
	if e.Name() != "auc" {
		t.Errorf("unexpected name %q", e.Name())
	}
}

func TestRunaway(t *testing.T) {
	r := NewRunaway(10)
	if r.Value() != 1 || r.Name() != "stability" {
		t.Errorf("expected stability 1 with no samples, got %s=%g", r.Name(), r.Value())
	}
	if _, _, ok := r.First(); ok {
		t.Error("no runaway expected before any sample")
	}

	r.Observe(dynamo.State{1, 2}, 0)
	r.Observe(dynamo.State{1, -20}, 1)
	r.Observe(dynamo.State{30, 5}, 2)
	r.Observe(dynamo.State{3, 5}, 3)
	if r.Value() != 0.5 {
		t.Errorf("expected half the steps in bounds, got %g", r.Value())
	}
	at, idx, ok := r.First()
	if !ok || at != 1 || idx != 1 {
		t.Errorf("expected first runaway of entity 1 at t=1, got entity %d at %g (ok=%v)", idx, at, ok)
	}
	if r.Peak() != 30 {
		t.Errorf("expected peak 30, got %g", r.Peak())
	}

	r.Reset()
	if _, _, ok := r.First(); ok || r.Value() != 1 || r.Peak() != 0 {
		t.Error("reset should clear the runaway record")
	}
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}

	c.ObserveDerivative()
	c.ObserveDerivative()
	c.StepAccepted()
	c.StepRejected()
	c.Clamped(3)
	c.RunFinished(20*time.Millisecond, nil)
	c.RunFinished(time.Millisecond, errors.New("boom"))

	checks := []struct {
		name string
		col  prometheus.Collector
		want float64
	}{
		{"derivatives", c.derivatives, 2},
		{"accepted", c.accepted, 1},
		{"rejected", c.rejected, 1},
		{"clamps", c.clamps, 3},
		{"ok runs", c.runs.WithLabelValues("ok"), 1},
		{"failed runs", c.runs.WithLabelValues("error"), 1},
	}
	for _, ch := range checks {
		if got := testutil.ToFloat64(ch.col); got != ch.want {
			t.Errorf("%s: expected %g, got %g", ch.name, ch.want, got)
		}
	}
	if n := testutil.CollectAndCount(reg, "celltx_run_duration_seconds"); n != 1 {
		t.Errorf("expected one duration histogram, got %d", n)
	}

	if _, err := NewCollector(reg); err == nil {
		t.Error("registering twice should fail")
	}
}
