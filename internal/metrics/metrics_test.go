package metrics

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/knox/pkg/secretstore"
)

func TestObserveCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("corp-kv", "get", nil, 10*time.Millisecond)
	m.Observe("corp-kv", "get", nil, 20*time.Millisecond)
	m.Observe("corp-kv", "get", secretstore.NotFoundError{Store: "corp-kv", Name: "x"}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("corp-kv", "get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("corp-kv", "get", "not_found")))
}

func TestSetCached(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetCached("corp-kv", 12)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.CachedSecrets().WithLabelValues("corp-kv")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *VaultMetrics
	m.Observe("kv", "get", errors.New("x"), time.Second)
	m.SetCached("kv", 1)
}

func TestSummarize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("b-kv", "list", nil, time.Millisecond)
	m.Observe("a-kv", "set", secretstore.ConflictError{Store: "a-kv", Name: "x"}, time.Millisecond)
	m.Observe("a-kv", "get", nil, time.Millisecond)

	rows, err := Summarize(reg)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, OperationSummary{Vault: "a-kv", Operation: "get", Outcome: "ok", Count: 1}, rows[0])
	assert.Equal(t, OperationSummary{Vault: "a-kv", Operation: "set", Outcome: "conflict", Count: 1}, rows[1])
	assert.Equal(t, "b-kv", rows[2].Vault)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, reg))
	assert.Contains(t, buf.String(), "conflict")
}
