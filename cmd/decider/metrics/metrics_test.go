package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordDecision("normal", false, true)
	m.RecordDecision("normal", false, true)
	m.RecordDecision("abnormal", true, false)

	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("normal", "false", "true")); got != 2 {
		t.Errorf("normal decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("abnormal", "true", "false")); got != 1 {
		t.Errorf("abnormal decisions = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "poseidon_decider_decisions_total" {
			found = true
		}
	}
	if !found {
		t.Error("decisions counter not registered")
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.RecordPreconditionFailure()

	if got := testutil.ToFloat64(b.PreconditionFailuresTotal); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDegradation(ReasonNoHistory)
	m.RecordError("publish", "amqp")
	m.RecordPublish("writer", 0.01)
	m.RecordHistoryGap(50)

	if got := testutil.ToFloat64(m.DegradationsTotal.WithLabelValues(ReasonNoHistory)); got != 1 {
		t.Errorf("degradations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("publish", "amqp")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.PublishSeconds); got != 1 {
		t.Errorf("publish series = %d, want 1", got)
	}
}
