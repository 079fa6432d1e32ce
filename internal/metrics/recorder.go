package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder records the counters/histograms a Store emits. The zero value
// is not usable; construct with NewRecorder or use Nop() for tests that
// don't care about metrics.
type Recorder struct {
	writes           *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	expiredReclaimed prometheus.Counter
}

// Outcome labels the "outcome" dimension of loam_writes_total.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeInvalid  Outcome = "invalid"
)

// NewRecorder registers loam's instruments against reg and returns a
// Recorder. Passing the same *prometheus.Registry to two Recorders will
// fail registration (AlreadyRegisteredError); use one Recorder per Store.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loam_writes_total",
			Help: "Count of ingestDocument outcomes by type.",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loam_query_duration_seconds",
			Help:    "Duration of store read operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		expiredReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loam_expired_reclaimed_total",
			Help: "Count of documents removed by an expiry sweep.",
		}),
	}
	for _, c := range []prometheus.Collector{r.writes, r.queryDuration, r.expiredReclaimed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Nop returns a Recorder backed by an unregistered, private registry —
// safe to use in tests or when metrics aren't wired up.
func Nop() *Recorder {
	r, err := NewRecorder(prometheus.NewRegistry())
	if err != nil {
		panic(err) // unreachable: fresh registry never collides
	}
	return r
}

// ObserveWrite increments the write counter for outcome.
func (r *Recorder) ObserveWrite(outcome Outcome) {
	if r == nil {
		return
	}
	r.writes.WithLabelValues(string(outcome)).Inc()
}

// ObserveQuery records how long op took.
func (r *Recorder) ObserveQuery(op string, seconds float64) {
	if r == nil {
		return
	}
	r.queryDuration.WithLabelValues(op).Observe(seconds)
}

// ObserveExpiredReclaimed adds n to the expired-reclaimed counter.
func (r *Recorder) ObserveExpiredReclaimed(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.expiredReclaimed.Add(float64(n))
}
