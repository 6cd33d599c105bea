package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"article-desk/internal/outcome"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts classified outcomes per operation. It owns a private
// registry so several recorders (one per test) never collide.
type Recorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "desk_requests_total",
			Help: "Orchestrated requests by operation and classified outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "desk_request_duration_seconds",
			Help:    "Time from issuing a request to its classified outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	r.registry.MustRegister(r.requests, r.duration)
	return r
}

// Observe records one finished operation. A nil Recorder is a no-op.
func (r *Recorder) Observe(op outcome.Op, kind outcome.Kind, took time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(string(op), kind.String()).Inc()
	r.duration.WithLabelValues(string(op)).Observe(took.Seconds())
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteSummary prints one line per op/outcome pair with its count.
func (r *Recorder) WriteSummary(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		if mf.GetName() != "desk_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			lines = append(lines, fmt.Sprintf("%-8s %-13s %d", labels["op"], labels["outcome"], int(m.GetCounter().GetValue())))
		}
	}
	if len(lines) == 0 {
		_, err := fmt.Fprintln(w, "no requests yet")
		return err
	}

	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
