package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/anime-shed/content-analyzer-go/internal/observer"
	"github.com/anime-shed/content-analyzer-go/internal/telemetry"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

const (
	// Operation names recorded by the pipeline
	OpAnalyzeContent = "analyze_content"
	OpProviderCall   = "provider_call"
	// Cache hits are tracked apart so they do not drag the analysis baseline down
	OpCacheHit = "cache_hit"

	DefaultAlpha         = 0.1
	DefaultFlushInterval = 60 * time.Second
	RingSize             = 1024

	latencyFactor = 2.0
	errorMargin   = 0.10
	qualityFactor = 0.8
	costFactor    = 1.5
)

// Anomaly metric names
const (
	MetricLatency   = "latency"
	MetricErrorRate = "error_rate"
	MetricQuality   = "quality"
	MetricCost      = "cost"
)

// Baseline is the rolling expected value of an operation
type Baseline = models.Baseline

// Metrics is one measurement handed to Record. Zero Quality means not measured.
type Metrics struct {
	Latency         time.Duration
	Error           bool
	Quality         float64
	Cost            float64
	Throughput      float64
	TokenEfficiency float64
}

// Options configures a Monitor
type Options struct {
	Alpha         float64
	FlushInterval time.Duration
	Sink          telemetry.Sink
	Publisher     *observer.EventPublisher
	Logger        *logrus.Logger
	Now           func() time.Time
}

type opState struct {
	mu          sync.Mutex
	baseline    Baseline
	qualitySeen bool
	pending     []models.PerformanceSample
	ring        []models.PerformanceSample
	next        int
}

// Monitor keeps per-operation baselines, flags anomalies and flushes samples
type Monitor struct {
	alpha     float64
	interval  time.Duration
	sink      telemetry.Sink
	publisher *observer.EventPublisher
	logger    *logrus.Logger
	now       func() time.Time

	mu  sync.RWMutex
	ops map[string]*opState

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. It does not flush until Start is called.
func New(opts Options) *Monitor {
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		opts.Alpha = DefaultAlpha
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.NopSink{}
	}
	if opts.Publisher == nil {
		opts.Publisher = observer.NewEventPublisher()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		alpha:     opts.Alpha,
		interval:  opts.FlushInterval,
		sink:      opts.Sink,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Now,
		ops:       make(map[string]*opState),
	}
}

// Subscribe adds an anomaly observer
func (m *Monitor) Subscribe(obs observer.Observer) {
	m.publisher.Subscribe(obs)
}

func (m *Monitor) state(operation string) *opState {
	m.mu.RLock()
	st, ok := m.ops[operation]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok = m.ops[operation]; !ok {
		st = &opState{ring: make([]models.PerformanceSample, 0, RingSize)}
		m.ops[operation] = st
	}
	return st
}

// Record appends a sample, checks it against the baseline and then folds it
// into the baseline. Anomalies are returned and published to subscribers.
func (m *Monitor) Record(operation string, metrics Metrics, metadata map[string]string) []observer.Anomaly {
	sample := models.PerformanceSample{
		Operation:       operation,
		Latency:         metrics.Latency,
		Throughput:      metrics.Throughput,
		Error:           metrics.Error,
		TokenEfficiency: metrics.TokenEfficiency,
		Quality:         metrics.Quality,
		Cost:            metrics.Cost,
		Timestamp:       m.now(),
		Metadata:        metadata,
	}

	st := m.state(operation)
	st.mu.Lock()
	anomalies := st.detect(operation, sample)
	st.update(sample, m.alpha)
	st.pending = append(st.pending, sample)
	if len(st.ring) < RingSize {
		st.ring = append(st.ring, sample)
	} else {
		st.ring[st.next] = sample
	}
	st.next = (st.next + 1) % RingSize
	st.mu.Unlock()

	for i := range anomalies {
		a := anomalies[i]
		m.publisher.NotifyObservers(context.Background(), observer.PipelineEvent{
			EventType: observer.AnomalyDetected,
			Timestamp: sample.Timestamp,
			Operation: operation,
			Anomaly:   &a,
			Metadata:  toAny(metadata),
		})
	}
	return anomalies
}

func (st *opState) detect(operation string, s models.PerformanceSample) []observer.Anomaly {
	b := st.baseline
	if b.Samples == 0 {
		return nil
	}

	var out []observer.Anomaly
	flag := func(metric string, value, baseline, limit float64) {
		out = append(out, observer.Anomaly{
			Operation: operation, Metric: metric, Value: value, Baseline: baseline, Limit: limit,
		})
	}

	latency := float64(s.Latency) / float64(time.Millisecond)
	if limit := b.LatencyMs * latencyFactor; b.LatencyMs > 0 && latency > limit {
		flag(MetricLatency, latency, b.LatencyMs, limit)
	}
	errValue := boolToFloat(s.Error)
	if limit := b.ErrorRate + errorMargin; errValue > limit {
		flag(MetricErrorRate, errValue, b.ErrorRate, limit)
	}
	if limit := b.Quality * qualityFactor; s.Quality > 0 && st.qualitySeen && s.Quality < limit {
		flag(MetricQuality, s.Quality, b.Quality, limit)
	}
	if limit := b.Cost * costFactor; b.Cost > 0 && s.Cost > limit {
		flag(MetricCost, s.Cost, b.Cost, limit)
	}
	return out
}

func (st *opState) update(s models.PerformanceSample, alpha float64) {
	latency := float64(s.Latency) / float64(time.Millisecond)
	errValue := boolToFloat(s.Error)
	b := &st.baseline

	if b.Samples == 0 {
		b.LatencyMs = latency
		b.ErrorRate = errValue
		b.Cost = s.Cost
	} else {
		b.LatencyMs = ema(b.LatencyMs, latency, alpha)
		b.ErrorRate = ema(b.ErrorRate, errValue, alpha)
		b.Cost = ema(b.Cost, s.Cost, alpha)
	}
	if s.Quality > 0 {
		if !st.qualitySeen {
			b.Quality = s.Quality
			st.qualitySeen = true
		} else {
			b.Quality = ema(b.Quality, s.Quality, alpha)
		}
	}
	b.Samples++
}

func ema(old, value, alpha float64) float64 {
	return alpha*value + (1-alpha)*old
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func toAny(md map[string]string) map[string]interface{} {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// Baseline returns the current baseline of an operation
func (m *Monitor) Baseline(operation string) (Baseline, bool) {
	m.mu.RLock()
	st, ok := m.ops[operation]
	m.mu.RUnlock()
	if !ok {
		return Baseline{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.baseline, true
}

// GetStats aggregates retained samples. An empty operation means all
// operations; a zero window means every retained sample.
func (m *Monitor) GetStats(operation string, window time.Duration) map[string]models.OperationStats {
	m.mu.RLock()
	targets := make(map[string]*opState, len(m.ops))
	for name, st := range m.ops {
		if operation == "" || operation == name {
			targets[name] = st
		}
	}
	m.mu.RUnlock()

	var since time.Time
	if window > 0 {
		since = m.now().Add(-window)
	}

	out := make(map[string]models.OperationStats, len(targets))
	for name, st := range targets {
		st.mu.Lock()
		samples := make([]models.PerformanceSample, 0, len(st.ring))
		for _, s := range st.ring {
			if !s.Timestamp.Before(since) {
				samples = append(samples, s)
			}
		}
		baseline := st.baseline
		st.mu.Unlock()

		out[name] = aggregate(name, samples, baseline)
	}
	return out
}

func aggregate(name string, samples []models.PerformanceSample, baseline Baseline) models.OperationStats {
	stats := models.OperationStats{Operation: name, Count: len(samples), Baseline: baseline}
	if len(samples) == 0 {
		return stats
	}

	latencies := make([]float64, len(samples))
	var errs, qualitySum float64
	qualityCount := 0
	for i, s := range samples {
		latencies[i] = float64(s.Latency) / float64(time.Millisecond)
		if s.Error {
			errs++
		}
		if s.Quality > 0 {
			qualitySum += s.Quality
			qualityCount++
		}
		stats.TotalCost += s.Cost
	}

	n := float64(len(samples))
	stats.AvgLatencyMs = stat.Mean(latencies, nil)
	sort.Float64s(latencies)
	stats.P95LatencyMs = stat.Quantile(0.95, stat.Empirical, latencies, nil)
	stats.ErrorRate = errs / n
	stats.AvgCost = stats.TotalCost / n
	if qualityCount > 0 {
		stats.AvgQuality = qualitySum / float64(qualityCount)
	}
	return stats
}

// Flush swaps every pending buffer and publishes the samples to the sink.
// Recording continues while the sink is busy.
func (m *Monitor) Flush(ctx context.Context) error {
	m.mu.RLock()
	states := make([]*opState, 0, len(m.ops))
	for _, st := range m.ops {
		states = append(states, st)
	}
	m.mu.RUnlock()

	var samples []models.PerformanceSample
	for _, st := range states {
		st.mu.Lock()
		pending := st.pending
		st.pending = nil
		st.mu.Unlock()
		samples = append(samples, pending...)
	}
	if len(samples) == 0 {
		return nil
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	if err := m.sink.Publish(ctx, telemetry.SampleBatch(samples)); err != nil {
		m.logger.WithError(err).WithField("samples", len(samples)).Error("Failed to publish performance samples")
		return err
	}
	return nil
}

// Start runs the periodic flush until Stop is called or ctx ends
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				_ = m.Flush(runCtx)
			}
		}
	}(m.done)

	m.logger.WithField("flush_interval", m.interval).Info("Performance monitor started")
}

// Stop ends the flush loop and publishes whatever is still pending
func (m *Monitor) Stop(ctx context.Context) error {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Flush(ctx)
}
