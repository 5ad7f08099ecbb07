package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Kind names what a batch carries. It doubles as the AMQP routing key.
type Kind string

const (
	KindSamples    Kind = "performance.samples"
	KindExperiment Kind = "experiment.concluded"
)

// Batch is one unit handed to a Sink
type Batch struct {
	Kind       Kind                       `json:"kind"`
	Samples    []models.PerformanceSample `json:"samples,omitempty"`
	Experiment *models.ExperimentReport   `json:"experiment,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// Sink receives flushed samples and concluded experiments
type Sink interface {
	Publish(ctx context.Context, batch Batch) error
}

// SampleBatch wraps samples for publishing
func SampleBatch(samples []models.PerformanceSample) Batch {
	return Batch{Kind: KindSamples, Samples: samples, Timestamp: time.Now().UTC()}
}

// ExperimentBatch wraps a concluded experiment for publishing
func ExperimentBatch(report models.ExperimentReport) Batch {
	return Batch{Kind: KindExperiment, Experiment: &report, Timestamp: time.Now().UTC()}
}

// MultiSink publishes to every sink and joins their errors
type MultiSink []Sink

// Publish calls each sink in order; one failing sink does not stop the others
func (m MultiSink) Publish(ctx context.Context, batch Batch) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink drops everything
type NopSink struct{}

func (NopSink) Publish(context.Context, Batch) error { return nil }
