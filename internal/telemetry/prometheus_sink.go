package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "content_analyzer"

// PrometheusSink turns batches into prometheus series
type PrometheusSink struct {
	samplesTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latencySeconds *prometheus.HistogramVec
	quality        *prometheus.GaugeVec
	costTotal      *prometheus.CounterVec
	variantMetric  *prometheus.GaugeVec
	concluded      *prometheus.CounterVec
}

// NewPrometheusSink registers its collectors on reg
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "samples_total",
			Help:      "Total number of performance samples flushed, labeled by operation.",
		}, []string{"operation"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "errors_total",
			Help:      "Total number of failed samples, labeled by operation.",
		}, []string{"operation"}),
		latencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "latency_seconds",
			Help:      "Latency per operation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
		}, []string{"operation"}),
		quality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "last_quality",
			Help:      "Quality of the most recent flushed sample, labeled by operation.",
		}, []string{"operation"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cost_total",
			Help:      "Accumulated provider cost, labeled by operation.",
		}, []string{"operation"}),
		variantMetric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "variant_metric",
			Help:      "Final mean of an experiment metric per variant.",
		}, []string{"experiment", "variant", "metric"}),
		concluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "concluded_total",
			Help:      "Concluded experiments, labeled by winning variant.",
		}, []string{"winner"}),
	}

	for _, c := range []prometheus.Collector{
		s.samplesTotal, s.errorsTotal, s.latencySeconds, s.quality, s.costTotal, s.variantMetric, s.concluded,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Publish records the batch
func (s *PrometheusSink) Publish(ctx context.Context, batch Batch) error {
	for _, sample := range batch.Samples {
		op := sample.Operation
		s.samplesTotal.WithLabelValues(op).Inc()
		if sample.Error {
			s.errorsTotal.WithLabelValues(op).Inc()
		}
		s.latencySeconds.WithLabelValues(op).Observe(sample.Latency.Seconds())
		if sample.Quality > 0 {
			s.quality.WithLabelValues(op).Set(sample.Quality)
		}
		if sample.Cost > 0 {
			s.costTotal.WithLabelValues(op).Add(sample.Cost)
		}
	}

	if report := batch.Experiment; report != nil {
		winner := ""
		for _, v := range report.Variants {
			for metric, value := range v.Metrics {
				s.variantMetric.WithLabelValues(report.ExperimentID, v.VariantID, metric).Set(value)
			}
			if v.Winner {
				winner = v.VariantID
			}
		}
		s.concluded.WithLabelValues(winner).Inc()
	}
	return nil
}
