package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsWrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveWrite(OutcomeAccepted)
	r.ObserveWrite(OutcomeAccepted)
	r.ObserveWrite(OutcomeIgnored)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "loam_writes_total" {
			continue
		}
		found = true
		for _, m := range mf.Metric {
			for _, l := range m.Label {
				if l.GetName() == "outcome" && l.GetValue() == "accepted" {
					require.Equal(t, float64(2), m.GetCounter().GetValue())
				}
			}
		}
	}
	require.True(t, found)
}

func TestNopRecorderDoesNotPanic(t *testing.T) {
	r := Nop()
	r.ObserveWrite(OutcomeAccepted)
	r.ObserveQuery("documents", 0.1)
	r.ObserveExpiredReclaimed(3)

	var nilRecorder *Recorder
	nilRecorder.ObserveWrite(OutcomeAccepted)
	nilRecorder.ObserveQuery("documents", 0.1)
	nilRecorder.ObserveExpiredReclaimed(3)
}
