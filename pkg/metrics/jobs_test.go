package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestJobMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)

	m.IncSuccess("reconcile")
	m.IncFailure("reconcile")
	m.IncDropped("delivery-filter")
	m.ObserveDuration("reconcile", 2*time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 4)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *JobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.IncDropped("x")
	m.ObserveDuration("x", time.Second)

	empty := NewJobMetrics(nil)
	empty.IncSuccess("")
}
