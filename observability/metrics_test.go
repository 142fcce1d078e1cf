package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"stablecore/core/events"
)

func TestHubMetricsRecordOperations(t *testing.T) {
	m := Hub()
	before := testutil.ToFloat64(m.operations.WithLabelValues("bid", "success"))
	m.Observe("bid", 5*time.Millisecond, "")
	m.Observe("bid", time.Millisecond, "conflict")
	if got := testutil.ToFloat64(m.operations.WithLabelValues("bid", "success")); got != before+1 {
		t.Fatalf("unexpected success count %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("bid", "conflict")); got < 1 {
		t.Fatalf("conflict not recorded")
	}

	supply := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))
	m.RecordLedger(supply, big.NewInt(10), big.NewInt(4), big.NewInt(6))
	if got := testutil.ToFloat64(m.supply); got != 3e18 {
		t.Fatalf("unexpected supply gauge %v", got)
	}
	if got := testutil.ToFloat64(m.equity); got != 6 {
		t.Fatalf("unexpected equity gauge %v", got)
	}
}

func TestEventMetricsCountsEmittedTypes(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeRoll))
	var emitter events.Emitter = m
	emitter.Emit(events.Roll{})
	if got := testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeRoll)); got != before+1 {
		t.Fatalf("unexpected roll count %v", got)
	}
}

func TestModuleMetricsSplitsErrors(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("positions", "mint", 422, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("positions", "mint", "422")); got < 1 {
		t.Fatalf("error status not recorded")
	}
	m.RecordThrottle("", "")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")); got < 1 {
		t.Fatalf("throttle defaults not applied")
	}
}

func TestBigToFloatHandlesNil(t *testing.T) {
	if bigToFloat(nil) != 0 {
		t.Fatalf("nil must map to zero")
	}
}
