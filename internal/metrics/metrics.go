// Package metrics exposes Prometheus metrics for running sessions.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cogtask/internal/sequence"
	"cogtask/internal/session"
	"cogtask/internal/trial"
)

const namespace = "cogtask"

// Recorder holds every cogtask metric. It implements session.Sink and
// session.GenerationObserver.
type Recorder struct {
	registry *prometheus.Registry

	// Counters
	TrialsTotal      *prometheus.CounterVec
	RoundsTotal      prometheus.Counter
	SessionsTotal    prometheus.Counter
	GenerationsTotal *prometheus.CounterVec

	// Gauges
	CurrentN      *prometheus.GaugeVec
	RoundAccuracy *prometheus.GaugeVec

	// Histograms
	ReactionTime       *prometheus.HistogramVec
	GenerationDuration prometheus.Histogram
}

// NewRecorder creates and registers all metrics on a fresh registry. With
// process set, Go runtime and process collectors are registered too.
func NewRecorder(process bool) *Recorder {
	reg := prometheus.NewRegistry()
	if process {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Recorder{
		registry: reg,

		TrialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Classified trial outcomes by modality.",
		}, []string{"modality", "outcome"}),
		RoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Completed rounds.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Completed sessions.",
		}),
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_generations_total",
			Help:      "Sequence generations by result.",
		}, []string{"result"}),

		CurrentN: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_n",
			Help:      "Back distance of the session's next round.",
		}, []string{"session_id"}),
		RoundAccuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_accuracy",
			Help:      "Accuracy of the last completed round.",
		}, []string{"modality"}),

		ReactionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reaction_time_seconds",
			Help:      "Reaction time of responses.",
			Buckets:   []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1, 1.5, 2, 3},
		}, []string{"modality", "outcome"}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sequence_generation_seconds",
			Help:      "Time spent generating a round sequence.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	reg.MustRegister(
		r.TrialsTotal, r.RoundsTotal, r.SessionsTotal, r.GenerationsTotal,
		r.CurrentN, r.RoundAccuracy, r.ReactionTime, r.GenerationDuration,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Generated records a sequence generation.
func (r *Recorder) Generated(_ int, elapsed time.Duration, err error) {
	r.GenerationDuration.Observe(elapsed.Seconds())
	result := "ok"
	if err != nil {
		result = sequence.KindOf(err).String()
	}
	r.GenerationsTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) TrialCompleted(_ context.Context, info session.RoundInfo, res trial.Result) error {
	r.CurrentN.WithLabelValues(info.SessionID).Set(float64(info.N))
	for _, m := range []trial.Modality{trial.Visual, trial.Audio} {
		o := res.Outcome(m)
		r.TrialsTotal.WithLabelValues(m.String(), o.String()).Inc()
		if rt := res.RT(m); rt >= 0 {
			r.ReactionTime.WithLabelValues(m.String(), o.String()).Observe(rt)
		}
	}
	return nil
}

func (r *Recorder) RoundCompleted(_ context.Context, info session.RoundInfo, s session.RoundSummary) error {
	r.RoundsTotal.Inc()
	r.RoundAccuracy.WithLabelValues(trial.Visual.String()).Set(s.Visual.Accuracy)
	r.RoundAccuracy.WithLabelValues(trial.Audio.String()).Set(s.Audio.Accuracy)
	r.CurrentN.WithLabelValues(info.SessionID).Set(float64(s.NextN))
	return nil
}

func (r *Recorder) SessionCompleted(_ context.Context, s session.Summary) error {
	r.SessionsTotal.Inc()
	r.CurrentN.DeleteLabelValues(s.SessionID)
	return nil
}

var (
	_ session.Sink               = (*Recorder)(nil)
	_ session.GenerationObserver = (*Recorder)(nil)
)
