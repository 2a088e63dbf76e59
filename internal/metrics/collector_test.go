package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]bool {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestCollector_RecordsQueryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("askbase", reg, zap.NewNop())

	c.RecordQuery("ok", 120*time.Millisecond)
	c.RecordQuery("ok", 80*time.Millisecond)
	c.RecordQuery("no_data", 10*time.Millisecond)

	names := gatherNames(t, reg)
	assert.True(t, names["askbase_queries_total"])
	assert.True(t, names["askbase_query_duration_seconds"])

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "askbase_queries_total" {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		assert.InDelta(t, 3.0, total, 1e-9)
		assert.Len(t, f.GetMetric(), 2, "one series per status label")
	}
}

func TestCollector_RecordsStageMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("askbase", reg, zap.NewNop())

	c.RecordStage("hybrid_search", "ok", 30*time.Millisecond)
	c.RecordStage("rerank", "error", 5*time.Millisecond)
	c.RecordCandidates("fusion", 24)
	c.RecordCandidates("acl", 3)

	names := gatherNames(t, reg)
	assert.True(t, names["askbase_stages_total"])
	assert.True(t, names["askbase_stage_duration_seconds"])
	assert.True(t, names["askbase_stage_candidates"])
}

func TestCollector_IsolatedRegistries(t *testing.T) {
	// 同名指标注册两次会 panic；每个收集器一个注册表就不会
	regA := prometheus.NewRegistry()
	regB := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		NewCollector("askbase", regA, zap.NewNop())
		NewCollector("askbase", regB, zap.NewNop())
	})
}
