package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/starford/quarry/internal/coordinator"
	"github.com/starford/quarry/internal/store"
)

func TestObserveQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveQuery("posts", OutcomeOK, 2*time.Millisecond)
	m.ObserveQuery("posts", OutcomeOK, time.Millisecond)
	m.ObserveQuery("posts", OutcomeInvalid, 0)

	if got := testutil.ToFloat64(m.queries.WithLabelValues("posts", OutcomeOK)); got != 2 {
		t.Errorf("ok queries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.queries.WithLabelValues("posts", OutcomeInvalid)); got != 1 {
		t.Errorf("invalid queries = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.queryDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestHandleChange(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.HandleChange(store.Change{Collection: "posts", Kind: store.ChangeRebuilt, Valid: 4, Invalid: 1, Duration: time.Millisecond})
	m.HandleChange(store.Change{Collection: "posts", Kind: store.ChangeUpdated, Valid: 5, Invalid: 0})

	if got := testutil.ToFloat64(m.rebuilds.WithLabelValues("posts", "all")); got != 1 {
		t.Errorf("full rebuilds = %v", got)
	}
	if got := testutil.ToFloat64(m.rebuilds.WithLabelValues("posts", "path")); got != 1 {
		t.Errorf("path rebuilds = %v", got)
	}
	if got := testutil.ToFloat64(m.items.WithLabelValues("posts", "valid")); got != 5 {
		t.Errorf("valid items = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.items.WithLabelValues("posts", "invalid")); got != 0 {
		t.Errorf("invalid items = %v, want 0", got)
	}

	m.ForgetCollection("posts")
	if n := testutil.CollectAndCount(m.items); n != 0 {
		t.Errorf("item series after forget = %d", n)
	}
}

func TestObserveInvalidation(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveInvalidation(coordinator.Event{Kind: coordinator.Written}, nil)
	m.ObserveInvalidation(coordinator.Event{Kind: coordinator.Written}, errors.New("boom"))

	if got := testutil.ToFloat64(m.invalidations.WithLabelValues("written")); got != 2 {
		t.Errorf("invalidations = %v", got)
	}
	if got := testutil.ToFloat64(m.invalidationErrors.WithLabelValues("written")); got != 1 {
		t.Errorf("errors = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuery("posts", OutcomeOK, time.Second)
	m.HandleChange(store.Change{Collection: "posts"})
	m.ObserveInvalidation(coordinator.Event{}, nil)
	m.ForgetCollection("posts")
}
