package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStoreOp("equity_data", "select", nil, time.Millisecond)
	m.ObserveChunk("equity_data", "insert", 10, nil)
	m.SubscriptionOpened("equity_data")
	m.EventDelivered("equity_data")
	m.RecordsIngested("equity_data", 3)
	m.ProducerFailed("synthetic", "quotes")
	m.IngestRun(nil)
}

func TestObserveStoreOp(t *testing.T) {
	m := New()

	m.ObserveStoreOp("equity_data", "insert", nil, time.Millisecond)
	m.ObserveStoreOp("equity_data", "insert", errors.New("boom"), time.Millisecond)
	m.ObserveStoreOp("equity_data", "insert", nil, time.Millisecond)

	if got := testutil.ToFloat64(m.StoreOps.WithLabelValues("equity_data", "insert", ResultOK)); got != 2 {
		t.Errorf("ok count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StoreOps.WithLabelValues("equity_data", "insert", ResultError)); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestObserveChunk(t *testing.T) {
	m := New()
	m.ObserveChunk("options_data", "insert", 1000, nil)
	m.ObserveChunk("options_data", "insert", 500, nil)
	m.ObserveChunk("options_data", "insert", 0, errors.New("boom"))

	if got := testutil.ToFloat64(m.BatchRecords.WithLabelValues("options_data", "insert")); got != 1500 {
		t.Errorf("committed = %v, want 1500", got)
	}
	if got := testutil.ToFloat64(m.BatchChunks.WithLabelValues("options_data", "insert", ResultError)); got != 1 {
		t.Errorf("failed chunks = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordsIngested("equity_data", 5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `alphakite_ingest_records_total{table="equity_data"} 5`) {
		t.Errorf("metrics output missing ingest counter:\n%s", body)
	}
}
