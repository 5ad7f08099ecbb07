package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/observer"
	"github.com/anime-shed/content-analyzer-go/internal/telemetry"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

const (
	// DefaultDecisionPoint is where provider choice experiments plug in
	DefaultDecisionPoint = "provider_selection"

	weightTolerance = 1e-6
	maxConfidence   = 0.99
	confidenceScale = 100.0
)

// Options configures a Manager
type Options struct {
	Sink      telemetry.Sink
	Publisher *observer.EventPublisher
	Logger    *logrus.Logger
	// Seed fixes variant selection; zero seeds from the clock
	Seed int64
	Now  func() time.Time
}

type variantState struct {
	variant models.Variant
	samples int64
	means   map[string]float64
	counts  map[string]int64
}

type running struct {
	mu         sync.Mutex
	cfg        models.ExperimentConfig
	cumulative []float64
	variants   []*variantState
	startedAt  time.Time
	concluding bool
}

// Manager owns live experiments and the archive of concluded ones
type Manager struct {
	sink      telemetry.Sink
	publisher *observer.EventPublisher
	logger    *logrus.Logger
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.RWMutex
	live     map[string]*running
	archived map[string]models.ExperimentReport
}

// NewManager creates an experiment manager
func NewManager(opts Options) *Manager {
	if opts.Sink == nil {
		opts.Sink = telemetry.NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Manager{
		sink:      opts.Sink,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Now,
		rng:       rand.New(rand.NewSource(seed)),
		live:      make(map[string]*running),
		archived:  make(map[string]models.ExperimentReport),
	}
}

func validate(cfg models.ExperimentConfig) error {
	if len(cfg.Variants) == 0 {
		return apperrors.NewConfigurationError("experiment needs at least one variant", nil)
	}
	if len(cfg.Metrics) == 0 {
		return apperrors.NewConfigurationError("experiment needs at least one metric", nil)
	}

	seen := make(map[string]bool, len(cfg.Variants))
	sum := 0.0
	for _, v := range cfg.Variants {
		if v.ID == "" {
			return apperrors.NewConfigurationError("variant id cannot be empty", nil)
		}
		if seen[v.ID] {
			return apperrors.NewConfigurationError(fmt.Sprintf("duplicate variant id %q", v.ID), nil)
		}
		seen[v.ID] = true
		if v.Weight < 0 || math.IsNaN(v.Weight) {
			return apperrors.NewConfigurationError(fmt.Sprintf("variant %q has a negative weight", v.ID), nil)
		}
		sum += v.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return apperrors.NewConfigurationError(fmt.Sprintf("variant weights must sum to 1 (got %.6f)", sum), nil)
	}
	if cfg.Duration < 0 || cfg.SampleSize < 0 {
		return apperrors.NewConfigurationError("duration and sample size cannot be negative", nil)
	}
	return nil
}

// Start validates and registers an experiment, returning its id
func (m *Manager) Start(cfg models.ExperimentConfig) (string, error) {
	if err := validate(cfg); err != nil {
		return "", err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.DecisionPoint == "" {
		cfg.DecisionPoint = DefaultDecisionPoint
	}

	run := &running{cfg: cfg, startedAt: m.now()}
	acc := 0.0
	for _, v := range cfg.Variants {
		acc += v.Weight
		run.cumulative = append(run.cumulative, acc)
		run.variants = append(run.variants, &variantState{
			variant: v,
			means:   make(map[string]float64),
			counts:  make(map[string]int64),
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.live[cfg.ID]; exists {
		return "", apperrors.NewConfigurationError(fmt.Sprintf("experiment %q is already running", cfg.ID), nil)
	}
	if _, exists := m.archived[cfg.ID]; exists {
		return "", apperrors.NewConfigurationError(fmt.Sprintf("experiment %q has already concluded", cfg.ID), nil)
	}
	m.live[cfg.ID] = run

	m.logger.WithFields(logrus.Fields{
		"experiment_id":  cfg.ID,
		"name":           cfg.Name,
		"decision_point": cfg.DecisionPoint,
		"variants":       len(cfg.Variants),
	}).Info("Experiment started")
	return cfg.ID, nil
}

func (m *Manager) get(id string) (*running, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.live[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("experiment %q is not running", id), nil)
	}
	return run, nil
}

// SelectVariant draws a variant in proportion to the configured weights
func (m *Manager) SelectVariant(id string) (models.Variant, error) {
	run, err := m.get(id)
	if err != nil {
		return models.Variant{}, err
	}

	m.rngMu.Lock()
	draw := m.rng.Float64()
	m.rngMu.Unlock()

	// cumulative is immutable after Start
	total := run.cumulative[len(run.cumulative)-1]
	idx := sort.Search(len(run.cumulative), func(i int) bool { return draw*total < run.cumulative[i] })
	if idx == len(run.cumulative) {
		idx--
	}
	return run.variants[idx].variant, nil
}

// ActiveFor returns the earliest started experiment running at a decision point
func (m *Manager) ActiveFor(decisionPoint string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		bestID string
		bestAt time.Time
	)
	for id, run := range m.live {
		if run.cfg.DecisionPoint != decisionPoint {
			continue
		}
		if bestID == "" || run.startedAt.Before(bestAt) || (run.startedAt.Equal(bestAt) && id < bestID) {
			bestID, bestAt = id, run.startedAt
		}
	}
	return bestID, bestID != ""
}

// RecordResult folds metrics into the variant's running means. The
// experiment concludes itself once its duration or sample size is reached.
func (m *Manager) RecordResult(ctx context.Context, id, variantID string, metrics map[string]float64) error {
	run, err := m.get(id)
	if err != nil {
		return err
	}

	run.mu.Lock()
	var vs *variantState
	for _, candidate := range run.variants {
		if candidate.variant.ID == variantID {
			vs = candidate
			break
		}
	}
	if vs == nil {
		run.mu.Unlock()
		return apperrors.NewValidationError(fmt.Sprintf("experiment %q has no variant %q", id, variantID), nil)
	}

	vs.samples++
	for name, value := range metrics {
		vs.counts[name]++
		old := vs.means[name]
		vs.means[name] = old + (value-old)/float64(vs.counts[name])
	}
	due := run.dueLocked(m.now())
	if due {
		run.concluding = true
	}
	run.mu.Unlock()

	if due {
		if _, err := m.Conclude(ctx, id); err != nil && !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return err
		}
	}
	return nil
}

func (r *running) dueLocked(now time.Time) bool {
	if r.concluding {
		return false
	}
	if r.cfg.Duration > 0 && now.Sub(r.startedAt) >= r.cfg.Duration {
		return true
	}
	if r.cfg.SampleSize > 0 {
		for _, v := range r.variants {
			if v.samples >= r.cfg.SampleSize {
				return true
			}
		}
	}
	return false
}

// Confidence saturates with sample size
func Confidence(samples int64) float64 {
	return math.Min(maxConfidence, math.Sqrt(float64(samples)/confidenceScale))
}

func (r *running) resultsLocked() []models.VariantResult {
	results := make([]models.VariantResult, 0, len(r.variants))
	for _, v := range r.variants {
		metrics := make(map[string]float64, len(v.means))
		for k, val := range v.means {
			metrics[k] = val
		}
		results = append(results, models.VariantResult{
			VariantID:  v.variant.ID,
			Metrics:    metrics,
			Samples:    v.samples,
			Confidence: Confidence(v.samples),
		})
	}
	return results
}

func (r *running) minimize(metric string) bool {
	for _, m := range r.cfg.Minimize {
		if m == metric {
			return true
		}
	}
	return false
}

// markWinner flags the best variant on the primary metric. Variants that
// never reported it are not eligible.
func markWinner(results []models.VariantResult, primary string, minimize bool) {
	best := -1
	for i, res := range results {
		value, ok := res.Metrics[primary]
		if !ok || res.Samples == 0 {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		current := results[best].Metrics[primary]
		if (minimize && value < current) || (!minimize && value > current) {
			best = i
		}
	}
	if best >= 0 {
		results[best].Winner = true
	}
}

// Conclude picks the winner, publishes the report, drops the live state and
// archives the report. Concluding an archived experiment returns its report.
func (m *Manager) Conclude(ctx context.Context, id string) ([]models.VariantResult, error) {
	m.mu.Lock()
	run, ok := m.live[id]
	if !ok {
		report, archived := m.archived[id]
		m.mu.Unlock()
		if archived {
			return report.Variants, nil
		}
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("experiment %q not found", id), nil)
	}
	delete(m.live, id)
	m.mu.Unlock()

	run.mu.Lock()
	primary := run.cfg.Metrics[0]
	results := run.resultsLocked()
	markWinner(results, primary, run.minimize(primary))
	report := models.ExperimentReport{
		ExperimentID:  id,
		Name:          run.cfg.Name,
		PrimaryMetric: primary,
		Concluded:     true,
		ConcludedAt:   m.now().UTC(),
		Variants:      results,
	}
	run.mu.Unlock()

	m.mu.Lock()
	m.archived[id] = report
	m.mu.Unlock()

	winner := ""
	for _, r := range results {
		if r.Winner {
			winner = r.VariantID
		}
	}
	m.logger.WithFields(logrus.Fields{
		"experiment_id": id,
		"winner":        winner,
	}).Info("Experiment concluded")

	if m.publisher != nil {
		m.publisher.NotifyObservers(ctx, observer.PipelineEvent{
			EventType: observer.ExperimentConcluded,
			Success:   true,
			Metadata:  map[string]interface{}{"experiment_id": id, "winner": winner},
		})
	}

	if err := m.sink.Publish(ctx, telemetry.ExperimentBatch(report)); err != nil {
		m.logger.WithError(err).WithField("experiment_id", id).Error("Failed to publish experiment report")
	}
	return results, nil
}

// Report returns the live snapshot or the archived report of an experiment
func (m *Manager) Report(id string) (models.ExperimentReport, error) {
	m.mu.RLock()
	run, live := m.live[id]
	archived, done := m.archived[id]
	m.mu.RUnlock()

	if done {
		return archived, nil
	}
	if !live {
		return models.ExperimentReport{}, apperrors.NewNotFoundError(fmt.Sprintf("experiment %q not found", id), nil)
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return models.ExperimentReport{
		ExperimentID:  id,
		Name:          run.cfg.Name,
		PrimaryMetric: run.cfg.Metrics[0],
		Variants:      run.resultsLocked(),
	}, nil
}

// Active lists running experiment ids, oldest first
func (m *Manager) Active() []string {
	m.mu.RLock()
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(m.live))
	for id, run := range m.live {
		entries = append(entries, entry{id, run.startedAt})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].id < entries[j].id
		}
		return entries[i].at.Before(entries[j].at)
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}

// ExpireDue concludes every experiment whose duration has elapsed
func (m *Manager) ExpireDue(ctx context.Context) int {
	now := m.now()
	m.mu.RLock()
	var due []string
	for id, run := range m.live {
		run.mu.Lock()
		if run.cfg.Duration > 0 && run.dueLocked(now) {
			run.concluding = true
			due = append(due, id)
		}
		run.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, id := range due {
		if _, err := m.Conclude(ctx, id); err != nil {
			m.logger.WithError(err).WithField("experiment_id", id).Warn("Failed to conclude expired experiment")
		}
	}
	return len(due)
}

// RunExpiry checks for elapsed experiments on every tick until ctx ends
func (m *Manager) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ExpireDue(ctx)
		}
	}
}
