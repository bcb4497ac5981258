package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordCycle(ResultOK, time.Second)
		m.AddChanges(ChangeItemCreated, 3)
		m.RecordPush("create_list", ResultFailed)
		m.RecordCommand(CommandApplied)
		m.SetQueueDepth(4)
		m.AddSubscribers(1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()

	m.RecordCycle(ResultOK, 20*time.Millisecond)
	m.RecordCycle(ResultSkipped, 0)
	m.RecordCycle(ResultOK, 30*time.Millisecond)
	m.AddChanges(ChangeItemDeleted, 2)
	m.AddChanges(ChangeItemDeleted, 0)
	m.RecordPush("update_item", ResultOK)
	m.RecordCommand(CommandDropped)
	m.SetQueueDepth(5)
	m.AddSubscribers(2)
	m.AddSubscribers(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncCycles.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncCycles.WithLabelValues(ResultSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncChanges.WithLabelValues(ChangeItemDeleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushes.WithLabelValues("update_item", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queueCommands.WithLabelValues(CommandDropped)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscribers))

	// Skipped cycles do not contribute to the duration histogram.
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "todosync_sync_cycle_duration_seconds_count 2")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordCycle(ResultFailed, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `todosync_sync_cycles_total{result="failed"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
