package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsOutcomes(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()

	r.Observe(ctx, "eval", true, 2*time.Millisecond)
	r.Observe(ctx, "eval", true, time.Millisecond)
	r.Observe(ctx, "eval", false, time.Millisecond)
	r.Observe(ctx, "", true, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("eval", Succeeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("eval", Failed)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.durations))
}

func TestRecorderTracksOpenSessions(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()

	r.Observe(ctx, "open", true, 0)
	r.Observe(ctx, "open", true, 0)
	r.Observe(ctx, "open", false, 0)
	r.Observe(ctx, "close", true, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessions))
}

func TestRecorderHandler(t *testing.T) {
	r := NewRecorder()
	r.Observe(context.Background(), "solve", true, time.Second)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `leapmp_operations_total{operation="solve",outcome="succeeded"} 1`)
	assert.Contains(t, string(body), "leapmp_operation_duration_seconds_bucket")
}
