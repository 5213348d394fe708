// Package metrics records per-vault operation counts and latencies.
//
// knox does not expose an HTTP endpoint; the registry is gathered at the end
// of a command when --metrics is set and printed as a short summary.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/systmms/knox/pkg/secretstore"
)

// VaultMetrics records vault client operations. A nil *VaultMetrics is
// valid and records nothing.
type VaultMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cachedSecrets     *prometheus.GaugeVec
}

// New registers the vault metrics with reg.
func New(reg prometheus.Registerer) *VaultMetrics {
	factory := promauto.With(reg)

	return &VaultMetrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knox_vault_operations_total",
				Help: "Total number of vault operations by outcome",
			},
			[]string{"vault", "operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "knox_vault_operation_duration_seconds",
				Help:    "Duration of vault operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"vault", "operation"},
		),
		cachedSecrets: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "knox_vault_cached_secrets",
				Help: "Number of secret properties held in the vault cache",
			},
			[]string{"vault"},
		),
	}
}

// Observe records one finished operation. The outcome label is the error
// taxonomy kind ("ok", "not_found", "conflict", "auth", "remote", "error").
func (m *VaultMetrics) Observe(vault, operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(vault, operation, secretstore.Kind(err)).Inc()
	m.operationDuration.WithLabelValues(vault, operation).Observe(d.Seconds())
}

// SetCached records the current cache size for a vault.
func (m *VaultMetrics) SetCached(vault string, n int) {
	if m == nil {
		return
	}
	m.cachedSecrets.WithLabelValues(vault).Set(float64(n))
}

// OperationsTotal returns the operations counter for tests.
func (m *VaultMetrics) OperationsTotal() *prometheus.CounterVec {
	return m.operationsTotal
}

// CachedSecrets returns the cache size gauge for tests.
func (m *VaultMetrics) CachedSecrets() *prometheus.GaugeVec {
	return m.cachedSecrets
}

// OperationSummary is one line of the --metrics report.
type OperationSummary struct {
	Vault     string
	Operation string
	Outcome   string
	Count     float64
}

// Summarize gathers the operations counter from g, sorted by vault,
// operation and outcome.
func Summarize(g prometheus.Gatherer) ([]OperationSummary, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var out []OperationSummary
	for _, mf := range families {
		if mf.GetName() != "knox_vault_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			s := OperationSummary{Count: m.GetCounter().GetValue()}
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "vault":
					s.Vault = lp.GetValue()
				case "operation":
					s.Operation = lp.GetValue()
				case "outcome":
					s.Outcome = lp.GetValue()
				}
			}
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Vault != out[j].Vault {
			return out[i].Vault < out[j].Vault
		}
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out, nil
}

// WriteSummary prints the summary as aligned text.
func WriteSummary(w io.Writer, g prometheus.Gatherer) error {
	rows, err := Summarize(g)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-24s %-22s %-10s %g\n", r.Vault, r.Operation, r.Outcome, r.Count)
	}
	return nil
}
