package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PipelineEvent represents a pipeline event
type PipelineEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	Operation      string                 `json:"operation,omitempty"`
	ContentRef     string                 `json:"content_ref,omitempty"`
	Provider       string                 `json:"provider,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Anomaly        *Anomaly               `json:"anomaly,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Anomaly describes a sample that strayed from its operation baseline
type Anomaly struct {
	Operation string  `json:"operation"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Baseline  float64 `json:"baseline"`
	Limit     float64 `json:"limit"`
}

// EventType represents the type of pipeline event
type EventType string

const (
	// AnalysisStarted when analysis begins
	AnalysisStarted EventType = "analysis_started"
	// AnalysisCompleted when analysis finishes successfully
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisFailed when analysis fails
	AnalysisFailed EventType = "analysis_failed"
	// ContentFetched when content is successfully resolved
	ContentFetched EventType = "content_fetched"
	// ContentFetchFailed when content resolution fails
	ContentFetchFailed EventType = "content_fetch_failed"
	// CacheHit when a result is served from cache
	CacheHit EventType = "cache_hit"
	// QualityEscalated when a low-quality result is re-run on a higher tier
	QualityEscalated EventType = "quality_escalated"
	// AnomalyDetected when a sample breaks its baseline
	AnomalyDetected EventType = "anomaly_detected"
	// ExperimentConcluded when an experiment picks a winner
	ExperimentConcluded EventType = "experiment_concluded"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event PipelineEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PipelineEvent)
}

// LoggingObserver logs pipeline events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles pipeline events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.Operation != "" {
		fields["operation"] = event.Operation
	}
	if event.ContentRef != "" {
		fields["content_ref"] = event.ContentRef
	}
	if event.Provider != "" {
		fields["provider"] = event.Provider
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	if a := event.Anomaly; a != nil {
		fields["metric"] = a.Metric
		fields["value"] = a.Value
		fields["baseline"] = a.Baseline
		fields["limit"] = a.Limit
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case AnalysisStarted:
		o.logger.WithFields(fields).Debug("Content analysis started")
	case AnalysisCompleted:
		o.logger.WithFields(fields).Info("Content analysis completed")
	case AnalysisFailed:
		o.logger.WithFields(fields).Error("Content analysis failed")
	case ContentFetched:
		o.logger.WithFields(fields).Debug("Content fetched successfully")
	case ContentFetchFailed:
		o.logger.WithFields(fields).Error("Content fetch failed")
	case CacheHit:
		o.logger.WithFields(fields).Debug("Served from cache")
	case QualityEscalated:
		o.logger.WithFields(fields).Info("Quality below threshold, escalating")
	case AnomalyDetected:
		o.logger.WithFields(fields).Warn("Performance anomaly detected")
	case ExperimentConcluded:
		o.logger.WithFields(fields).Info("Experiment concluded")
	default:
		o.logger.WithFields(fields).Info("Pipeline event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts pipeline events
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalAnalyses       int64
	successfulAnalyses  int64
	failedAnalyses      int64
	cacheHits           int64
	escalations         int64
	anomalies           map[string]int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{anomalies: make(map[string]int64)}
}

// OnEvent handles pipeline events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case AnalysisStarted:
		o.totalAnalyses++
	case AnalysisCompleted:
		o.successfulAnalyses++
		o.totalProcessingTime += event.ProcessingTime
	case AnalysisFailed:
		o.failedAnalyses++
	case CacheHit:
		o.cacheHits++
	case QualityEscalated:
		o.escalations++
	case AnomalyDetected:
		if event.Anomaly != nil {
			o.anomalies[event.Anomaly.Metric]++
		}
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successfulAnalyses > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successfulAnalyses)
	}
	anomalies := make(map[string]int64, len(o.anomalies))
	for k, v := range o.anomalies {
		anomalies[k] = v
	}

	return map[string]interface{}{
		"total_analyses":        o.totalAnalyses,
		"successful_analyses":   o.successfulAnalyses,
		"failed_analyses":       o.failedAnalyses,
		"cache_hits":            o.cacheHits,
		"escalations":           o.escalations,
		"anomalies":             anomalies,
		"total_processing_time": o.totalProcessingTime,
		"avg_processing_time":   avgProcessingTime,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	sync      bool
}

// NewEventPublisher creates a publisher that notifies observers concurrently, fire-and-forget
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// NewSyncEventPublisher creates a publisher that notifies observers inline, in order
func NewSyncEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
		sync:      true,
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PipelineEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		if p.sync {
			notify(ctx, observer, event)
			continue
		}
		go notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
