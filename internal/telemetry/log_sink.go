package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes a summary line per batch
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

// Publish logs the batch
func (s *LogSink) Publish(ctx context.Context, batch Batch) error {
	entry := s.logger.WithFields(logrus.Fields{
		"kind":      batch.Kind,
		"timestamp": batch.Timestamp,
	})

	switch batch.Kind {
	case KindExperiment:
		if batch.Experiment == nil {
			return nil
		}
		fields := logrus.Fields{
			"experiment_id":  batch.Experiment.ExperimentID,
			"primary_metric": batch.Experiment.PrimaryMetric,
		}
		for _, v := range batch.Experiment.Variants {
			if v.Winner {
				fields["winner"] = v.VariantID
				fields["winner_samples"] = v.Samples
				fields["winner_confidence"] = v.Confidence
			}
		}
		entry.WithFields(fields).Info("Experiment concluded")
	default:
		perOp := make(map[string]int)
		errorsSeen := 0
		for _, sample := range batch.Samples {
			perOp[sample.Operation]++
			if sample.Error {
				errorsSeen++
			}
		}
		entry.WithFields(logrus.Fields{
			"samples":    len(batch.Samples),
			"operations": perOp,
			"errors":     errorsSeen,
		}).Info("Flushed performance samples")
	}
	return nil
}
