package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/content-analyzer-go/internal/analyzer"
	"github.com/anime-shed/content-analyzer-go/internal/cache"
	"github.com/anime-shed/content-analyzer-go/internal/config"
	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/monitor"
	"github.com/anime-shed/content-analyzer-go/internal/observer"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/internal/repository"
	"github.com/anime-shed/content-analyzer-go/internal/telemetry"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
	"github.com/anime-shed/content-analyzer-go/pkg/validation"
)

const chairRef = "https://cdn.example.com/chair.jpg"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeContent resolves every ref to its own bytes; refs listed in missing fail
type fakeContent struct {
	mu      sync.Mutex
	fetches int
	hashes  map[string]string
	missing map[string]bool
}

func (f *fakeContent) ValidateContentRef(ref string) error {
	return validation.NewContentRefValidator().ValidateContentRef(ref)
}

func (f *fakeContent) Resolve(_ context.Context, ref string) (*repository.Content, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.missing[ref] {
		return nil, apperrors.NewNotFoundError("content not found", nil)
	}
	hash := f.hashes[ref]
	if hash == "" {
		hash = repository.HashBytes([]byte(ref))
	}
	return &repository.Content{Ref: ref, Data: []byte(ref), MimeType: "image/jpeg", Hash: hash}, nil
}

func (f *fakeContent) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// countingProvider answers every call and records which catalog ids were used
type countingProvider struct {
	id       string
	shared   *callLog
	delay    time.Duration
	failWith error
}

type callLog struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight int
	maxSeen  int
}

func newCallLog() *callLog { return &callLog{calls: map[string]int{}} }

func (l *callLog) enter(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[id]++
	l.inFlight++
	if l.inFlight > l.maxSeen {
		l.maxSeen = l.inFlight
	}
}

func (l *callLog) leave() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
}

func (l *callLog) count(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[id]
}

func (l *callLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

func (l *callLog) peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxSeen
}

func (p *countingProvider) Name() string { return p.id }

func (p *countingProvider) Analyze(ctx context.Context, call provider.Call) (*provider.Response, error) {
	p.shared.enter(p.id)
	defer p.shared.leave()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.failWith != nil {
		return nil, p.failWith
	}
	usage := models.TokenUsage{Prompt: 10, Completion: 20, Total: 30}
	switch call.Purpose {
	case provider.PurposeAltText:
		return &provider.Response{Output: "Oak chair on a white floor", Usage: usage}, nil
	case provider.PurposeSEO:
		return &provider.Response{Output: "Solid oak dining chair", Usage: usage}, nil
	default:
		return &provider.Response{
			Output: `{"description":"A solid oak dining chair with a curved back, photographed from the front.","colors":["brown"],"confidence":0.88}`,
			Usage:  usage,
		}, nil
	}
}

// scriptedScorer hands out quality scores in order and repeats the last one
type scriptedScorer struct {
	mu     sync.Mutex
	scores []float64
	calls  int
}

func (s *scriptedScorer) CriteriaFor(opts models.AnalysisOptions) validation.QualityCriteria {
	return validation.QualityCriteria{}
}

func (s *scriptedScorer) EvaluateResult(_ *models.AnalysisResult, _ validation.QualityCriteria) validation.QualityReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.scores) {
		idx = len(s.scores) - 1
	}
	s.calls++
	q := s.scores[idx]
	return validation.QualityReport{
		Scores:  models.QualityScores{Accuracy: q, Completeness: q, Relevance: q, Consistency: q},
		Overall: q,
	}
}

func (s *scriptedScorer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingObserver struct {
	mu     sync.Mutex
	events []observer.PipelineEvent
}

func (o *recordingObserver) OnEvent(_ context.Context, e observer.PipelineEvent) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *recordingObserver) GetObserverName() string { return "recording" }

func (o *recordingObserver) ofType(t observer.EventType) []observer.PipelineEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []observer.PipelineEvent
	for _, e := range o.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	batches []telemetry.Batch
}

func (s *recordingSink) Publish(_ context.Context, b telemetry.Batch) error {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) kinds() []telemetry.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.Kind
	for _, b := range s.batches {
		out = append(out, b.Kind)
	}
	return out
}

type fakeSpeech struct{ text string }

func (f *fakeSpeech) Synthesize(_ context.Context, text string, voice provider.VoiceOptions) (*provider.AudioHandle, error) {
	f.text = text
	return &provider.AudioHandle{Data: []byte("ID3"), ContentType: "audio/mpeg", Format: voice.Format}, nil
}

type harness struct {
	pipeline *Pipeline
	content  *fakeContent
	calls    *callLog
	scorer   *scriptedScorer
	events   *recordingObserver
	sink     *recordingSink
	monitor  *monitor.Monitor
}

type harnessOption func(*Dependencies, *Settings, map[string]*countingProvider)

func withProviderFailure(err error) harnessOption {
	return func(_ *Dependencies, _ *Settings, ps map[string]*countingProvider) {
		for _, p := range ps {
			p.failWith = err
		}
	}
}

func withProviderDelay(d time.Duration) harnessOption {
	return func(_ *Dependencies, _ *Settings, ps map[string]*countingProvider) {
		for _, p := range ps {
			p.delay = d
		}
	}
}

func withoutCache() harnessOption {
	return func(d *Dependencies, _ *Settings, _ map[string]*countingProvider) { d.Cache = nil }
}

func withSpeech(s provider.SpeechSynthesizer) harnessOption {
	return func(d *Dependencies, _ *Settings, _ map[string]*countingProvider) { d.Speech = s }
}

func withLogger(l *logrus.Logger) harnessOption {
	return func(d *Dependencies, _ *Settings, _ map[string]*countingProvider) { d.Logger = l }
}

func withEmbedder(e cache.Embedder) harnessOption {
	return func(d *Dependencies, _ *Settings, _ map[string]*countingProvider) { d.Embedder = e }
}

// constantEmbedder maps every text to the same vector, so any embedded lookup is a semantic match
type constantEmbedder struct {
	mu    sync.Mutex
	texts []string
}

func (e *constantEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()
	return []float32{1, 0, 0}, nil
}

func (e *constantEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.texts)
}

func newHarness(t *testing.T, scores []float64, options ...harnessOption) *harness {
	t.Helper()
	logger := quietLogger()

	catalog, err := config.ParseCatalog([]byte(config.DefaultCatalogYAML))
	require.NoError(t, err)

	calls := newCallLog()
	registry := provider.NewRegistry()
	providers := map[string]*countingProvider{}
	for _, cfg := range catalog.All() {
		p := &countingProvider{id: cfg.ID, shared: calls}
		providers[cfg.ID] = p
		registry.Register(cfg.ID, p)
	}

	publisher := observer.NewSyncEventPublisher()
	events := &recordingObserver{}
	publisher.Subscribe(events)
	sink := &recordingSink{}
	mon := monitor.New(monitor.Options{Sink: sink, Publisher: publisher, Logger: logger})

	content := &fakeContent{hashes: map[string]string{chairRef: "abc123"}, missing: map[string]bool{}}
	scorer := &scriptedScorer{scores: scores}

	retry := analyzer.DefaultRetryPolicy()
	retry.Sleeper = func(time.Duration) {}

	deps := Dependencies{
		Catalog:   catalog,
		Providers: registry,
		Content:   content,
		Cache:     cache.New(cache.Options{Size: 100, TTL: time.Hour, Logger: logger}),
		Scorer:    scorer,
		Monitor:   mon,
		Publisher: publisher,
		Logger:    logger,
	}
	settings := Settings{Retry: retry, CallTimeout: time.Second}
	for _, opt := range options {
		opt(&deps, &settings, providers)
	}

	p, err := NewPipeline(deps, settings)
	require.NoError(t, err)
	return &harness{pipeline: p, content: content, calls: calls, scorer: scorer, events: events, sink: sink, monitor: mon}
}

func scenarioOptions() models.AnalysisOptions {
	opts := models.ProductOptions()
	opts.DetailLevel = models.DetailComprehensive
	opts.Context = "Oak dining chair for the spring catalogue"
	return opts
}

func TestAnalyze_EscalatesOnceAndCaches(t *testing.T) {
	h := newHarness(t, []float64{0.72, 0.91})
	req := models.AnalysisRequest{ContentRef: chairRef, ContentHash: "abc123", Options: scenarioOptions()}

	result := h.pipeline.Analyze(context.Background(), req)

	require.True(t, result.Success, "error: %+v", result.Error)
	assert.True(t, result.Escalated)
	assert.False(t, result.BelowThreshold)
	assert.Equal(t, "openai-gpt4o", result.Provider)
	assert.Equal(t, 0, result.Tier)
	assert.InDelta(t, 0.91, result.QualityScore, 1e-9)
	assert.Equal(t, int64(180), result.TokenUsage.Total)

	assert.Equal(t, 3, h.calls.count("gemini-pro"))
	assert.Equal(t, 3, h.calls.count("openai-gpt4o"))
	assert.Equal(t, 2, h.scorer.count())

	escalations := h.events.ofType(observer.QualityEscalated)
	require.Len(t, escalations, 1)
	assert.Equal(t, "openai-gpt4o", escalations[0].Provider)
	assert.Equal(t, "gemini-pro", escalations[0].Metadata["from"])

	stats := h.pipeline.GetOptimizationStats()
	assert.Equal(t, 1, stats.Cache.Entries)
}

func TestAnalyze_CachedResultIsIdenticalAndCallsNoProvider(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	opts := scenarioOptions()

	first := h.pipeline.AnalyzeContent(context.Background(), chairRef, opts)
	require.True(t, first.Success)
	callsAfterFirst := h.calls.total()

	second := h.pipeline.AnalyzeContent(context.Background(), chairRef, opts)
	require.True(t, second.Success)

	assert.Equal(t, callsAfterFirst, h.calls.total())
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))

	assert.Len(t, h.events.ofType(observer.CacheHit), 1)
	stats := h.pipeline.GetOptimizationStats()
	assert.InDelta(t, 0.5, stats.CacheHitRate, 1e-9)
	assert.Equal(t, 1, stats.PerformanceStats[monitor.OpCacheHit].Count)
	assert.Equal(t, 1, stats.PerformanceStats[monitor.OpAnalyzeContent].Count)
}

func TestAnalyze_SuppliedHashSkipsFetchOnHit(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	req := models.AnalysisRequest{ContentRef: chairRef, ContentHash: "abc123", Options: scenarioOptions()}

	require.True(t, h.pipeline.Analyze(context.Background(), req).Success)
	require.Equal(t, 1, h.content.fetchCount())

	require.True(t, h.pipeline.Analyze(context.Background(), req).Success)
	assert.Equal(t, 1, h.content.fetchCount())
}

func TestAnalyze_DifferentOptionsMiss(t *testing.T) {
	h := newHarness(t, []float64{0.9})

	require.True(t, h.pipeline.AnalyzeContent(context.Background(), chairRef, scenarioOptions()).Success)
	before := h.calls.total()

	other := scenarioOptions()
	other.TargetLanguage = "de"
	require.True(t, h.pipeline.AnalyzeContent(context.Background(), chairRef, other).Success)
	assert.Greater(t, h.calls.total(), before)
}

func TestAnalyze_EscalationIsCappedAtOne(t *testing.T) {
	h := newHarness(t, []float64{0.3})
	opts := scenarioOptions()

	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, opts)

	require.True(t, result.Success)
	assert.True(t, result.Escalated)
	assert.True(t, result.BelowThreshold)
	assert.Equal(t, 2, h.scorer.count())
	assert.Equal(t, 6, h.calls.total())
	assert.Len(t, h.events.ofType(observer.QualityEscalated), 1)

	// Below-threshold results are not cached
	again := h.pipeline.AnalyzeContent(context.Background(), chairRef, opts)
	require.True(t, again.Success)
	assert.Equal(t, 12, h.calls.total())
}

func TestAnalyze_BelowThresholdLogsQualityError(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := newHarness(t, []float64{0.3}, withLogger(logger))

	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, scenarioOptions())
	require.True(t, result.BelowThreshold)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message != "Result below quality threshold" {
			continue
		}
		found = true
		err, ok := entry.Data[logrus.ErrorKey].(error)
		require.True(t, ok)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeQuality))
		assert.Equal(t, logrus.WarnLevel, entry.Level)
	}
	assert.True(t, found, "below-threshold warning was logged")
}

func TestAnalyze_DistinctImagesNeverShareSemanticHit(t *testing.T) {
	embedder := &constantEmbedder{}
	h := newHarness(t, []float64{0.9}, withEmbedder(embedder))
	opts := models.ProductOptions()

	shoe := h.pipeline.AnalyzeContent(context.Background(), "https://cdn.example.com/red-shoe.jpg", opts)
	require.True(t, shoe.Success)
	callsAfterShoe := h.calls.total()

	sofa := h.pipeline.AnalyzeContent(context.Background(), "https://cdn.example.com/blue-sofa.jpg", opts)
	require.True(t, sofa.Success)

	assert.Greater(t, h.calls.total(), callsAfterShoe, "second image was analysed by a provider")
	assert.Empty(t, h.events.ofType(observer.CacheHit))
	assert.Zero(t, h.pipeline.GetOptimizationStats().Cache.SemanticHits)
	assert.Zero(t, embedder.count(), "binary content is never embedded")
	assert.Equal(t, 2, h.pipeline.GetOptimizationStats().Cache.Entries)
}

func TestAnalyze_CallerCancellationIsNotAFailureSample(t *testing.T) {
	h := newHarness(t, []float64{0.9}, withoutCache(), withProviderDelay(200*time.Millisecond))

	warm := h.pipeline.AnalyzeContent(context.Background(), chairRef, models.DefaultOptions())
	require.True(t, warm.Success)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()

	result := h.pipeline.AnalyzeContent(ctx, "https://cdn.example.com/lamp.jpg", models.DefaultOptions())

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, "CANCELLED", result.Error.Code)

	stats := h.monitor.GetStats(monitor.OpAnalyzeContent, 0)
	assert.Equal(t, 1, stats[monitor.OpAnalyzeContent].Count)
	assert.Zero(t, stats[monitor.OpAnalyzeContent].ErrorRate)
	assert.Empty(t, h.events.ofType(observer.AnalysisFailed))
	assert.Empty(t, h.events.ofType(observer.AnomalyDetected))
}

func TestAnalyze_TopTierHasNowhereToEscalate(t *testing.T) {
	h := newHarness(t, []float64{0.3})
	opts := scenarioOptions().WithProvider("openai-gpt4o")

	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, opts)

	require.True(t, result.Success)
	assert.False(t, result.Escalated)
	assert.True(t, result.BelowThreshold)
	assert.Equal(t, 1, h.scorer.count())
	assert.Empty(t, h.events.ofType(observer.QualityEscalated))
}

func TestAnalyze_QualityFloorOverridesThreshold(t *testing.T) {
	h := newHarness(t, []float64{0.75})

	lenient := models.DefaultOptions()
	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, lenient)
	require.True(t, result.Success)
	assert.False(t, result.Escalated)

	strict := models.DefaultOptions().WithQualityFloor(0.8)
	strict.TargetLanguage = "fr"
	result = h.pipeline.AnalyzeContent(context.Background(), chairRef, strict)
	require.True(t, result.Success)
	assert.True(t, result.Escalated)
}

func TestAnalyze_ExhaustedRetriesIsAFailedResult(t *testing.T) {
	h := newHarness(t, []float64{0.9}, withProviderFailure(
		apperrors.NewProviderError(apperrors.ProviderRateLimited, "slow down", nil)))

	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, models.DefaultOptions())

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, "EXHAUSTED_RETRIES", result.Error.Code)
	assert.NotEmpty(t, result.Error.Message)
	assert.Len(t, h.events.ofType(observer.AnalysisFailed), 1)

	stats := h.monitor.GetStats(monitor.OpAnalyzeContent, 0)
	assert.InDelta(t, 1.0, stats[monitor.OpAnalyzeContent].ErrorRate, 1e-9)
}

func TestAnalyze_AuthFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, []float64{0.9}, withoutCache(), withProviderFailure(
		apperrors.NewProviderError(apperrors.ProviderAuthFailure, "bad key", nil)))

	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, models.DefaultOptions())

	assert.False(t, result.Success)
	assert.Equal(t, "PROVIDER_AUTH_FAILURE", result.Error.Code)
	assert.LessOrEqual(t, h.calls.total(), 3)
}

func TestAnalyze_InvalidRefFailsWithoutFetching(t *testing.T) {
	h := newHarness(t, []float64{0.9})

	result := h.pipeline.AnalyzeContent(context.Background(), "ftp://files.example.com/a.jpg", models.DefaultOptions())

	assert.False(t, result.Success)
	assert.Equal(t, "VALIDATION", result.Error.Code)
	assert.Equal(t, 0, h.content.fetchCount())
	assert.Equal(t, 0, h.calls.total())
}

func TestAnalyze_MissingContent(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	h.content.missing[chairRef] = true

	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, models.DefaultOptions())

	assert.False(t, result.Success)
	assert.Equal(t, "NOT_FOUND", result.Error.Code)
	assert.Len(t, h.events.ofType(observer.ContentFetchFailed), 1)
}

func TestAnalyze_RecordsExperimentResults(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	id, err := h.pipeline.StartExperiment(models.ExperimentConfig{
		Name:    "flash-vs-pro",
		Metrics: []string{MetricQuality, MetricCost},
		Variants: []models.Variant{
			{ID: "flash", Config: map[string]string{"provider": "gemini-flash"}, Weight: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, h.pipeline.ActiveExperiments())

	result := h.pipeline.AnalyzeContent(context.Background(), chairRef, models.DefaultOptions())
	require.True(t, result.Success)
	assert.Equal(t, "gemini-flash", result.Provider)

	report, err := h.pipeline.GetExperimentReport(id)
	require.NoError(t, err)
	require.Len(t, report.Variants, 1)
	assert.Equal(t, int64(1), report.Variants[0].Samples)
	assert.InDelta(t, 0.9, report.Variants[0].Metrics[MetricQuality], 1e-9)

	concluded, err := h.pipeline.ConcludeExperiment(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, concluded, 1)
	assert.True(t, concluded[0].Winner)
	assert.Empty(t, h.pipeline.ActiveExperiments())
}

func TestAnalyzeBatch_BoundedConcurrency(t *testing.T) {
	h := newHarness(t, []float64{0.9}, withoutCache(), withProviderDelay(10*time.Millisecond))
	refs := make([]string, 10)
	for i := range refs {
		refs[i] = "https://cdn.example.com/item-" + string(rune('a'+i)) + ".jpg"
	}

	outcomes, err := h.pipeline.AnalyzeBatch(context.Background(), refs, models.DefaultOptions(),
		models.BatchConfig{MaxConcurrent: 3, ContinueOnError: true})
	require.NoError(t, err)

	require.Len(t, outcomes, 10)
	for i, o := range outcomes {
		assert.Equal(t, refs[i], o.Ref)
		assert.Equal(t, models.BatchSucceeded, o.Status)
	}
	assert.LessOrEqual(t, h.calls.peak(), 3)
	assert.Equal(t, 30, h.calls.total())
}

func TestAnalyzeBatch_ContinueOnError(t *testing.T) {
	h := newHarness(t, []float64{0.9}, withoutCache())
	refs := make([]string, 10)
	for i := range refs {
		refs[i] = "https://cdn.example.com/item-" + string(rune('a'+i)) + ".jpg"
	}
	h.content.missing[refs[4]] = true

	outcomes, err := h.pipeline.AnalyzeBatch(context.Background(), refs, models.DefaultOptions(),
		models.BatchConfig{MaxConcurrent: 3, ContinueOnError: true})
	require.NoError(t, err)

	require.Len(t, outcomes, 10)
	succeeded, failed, skipped := countOutcomes(outcomes)
	assert.Equal(t, 9, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, models.BatchFailed, outcomes[4].Status)
	assert.Equal(t, "NOT_FOUND", outcomes[4].Error.Code)
}

func TestAnalyzeBatch_StopsAfterFailure(t *testing.T) {
	h := newHarness(t, []float64{0.9}, withoutCache())
	refs := []string{
		"https://cdn.example.com/1.jpg",
		"https://cdn.example.com/2.jpg",
		"https://cdn.example.com/3.jpg",
		"https://cdn.example.com/4.jpg",
	}
	h.content.missing[refs[1]] = true

	outcomes, err := h.pipeline.AnalyzeBatch(context.Background(), refs, models.DefaultOptions(),
		models.BatchConfig{MaxConcurrent: 1})
	require.NoError(t, err)

	require.Len(t, outcomes, 4)
	assert.Equal(t, models.BatchSucceeded, outcomes[0].Status)
	assert.Equal(t, models.BatchFailed, outcomes[1].Status)
	for _, o := range outcomes[2:] {
		assert.Equal(t, models.BatchSkipped, o.Status)
		assert.Equal(t, "CANCELLED", o.Error.Code)
	}
}

func TestAnalyzeBatch_DelayBetweenChunks(t *testing.T) {
	h := newHarness(t, []float64{0.9}, withoutCache())
	refs := []string{
		"https://cdn.example.com/1.jpg",
		"https://cdn.example.com/2.jpg",
		"https://cdn.example.com/3.jpg",
		"https://cdn.example.com/4.jpg",
	}

	start := time.Now()
	outcomes, err := h.pipeline.AnalyzeBatch(context.Background(), refs, models.DefaultOptions(),
		models.BatchConfig{MaxConcurrent: 2, BatchSize: 2, DelayBetweenBatches: "40ms", ContinueOnError: true})
	require.NoError(t, err)

	assert.Len(t, outcomes, 4)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestAnalyzeBatch_CancelledContextSkipsEverything(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := h.pipeline.AnalyzeBatch(ctx, []string{chairRef, "https://cdn.example.com/2.jpg"},
		models.DefaultOptions(), models.BatchConfig{ContinueOnError: true})
	require.NoError(t, err)

	for _, o := range outcomes {
		assert.Equal(t, models.BatchSkipped, o.Status)
	}
	assert.Equal(t, 0, h.calls.total())
}

func TestAnalyzeBatch_RejectsBadConfig(t *testing.T) {
	h := newHarness(t, []float64{0.9})

	_, err := h.pipeline.AnalyzeBatch(context.Background(), nil, models.DefaultOptions(), models.BatchConfig{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = h.pipeline.AnalyzeBatch(context.Background(), []string{chairRef}, models.DefaultOptions(),
		models.BatchConfig{DelayBetweenBatches: "soon"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = h.pipeline.AnalyzeBatch(context.Background(), []string{chairRef}, models.DefaultOptions(),
		models.BatchConfig{RatePerSecond: -1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestNarrate(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	_, err := h.pipeline.Narrate(context.Background(), "hello", provider.VoiceOptions{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))

	speech := &fakeSpeech{}
	h = newHarness(t, []float64{0.9}, withSpeech(speech))

	_, err = h.pipeline.Narrate(context.Background(), "   ", provider.VoiceOptions{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	audio, err := h.pipeline.Narrate(context.Background(), "An oak chair", provider.VoiceOptions{Format: "mp3"})
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", audio.ContentType)
	assert.Equal(t, "An oak chair", speech.text)
}

func TestPipeline_Lifecycle(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	ctx := context.Background()

	require.NoError(t, h.pipeline.Init(ctx))
	require.NoError(t, h.pipeline.Init(ctx))

	require.True(t, h.pipeline.AnalyzeContent(ctx, chairRef, models.DefaultOptions()).Success)

	require.NoError(t, h.pipeline.Dispose(ctx))
	require.NoError(t, h.pipeline.Dispose(ctx))
	assert.Contains(t, h.sink.kinds(), telemetry.KindSamples)

	err := h.pipeline.Init(ctx)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}

func TestNewPipeline_RequiresCoreDependencies(t *testing.T) {
	_, err := NewPipeline(Dependencies{}, Settings{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
	assert.True(t, strings.Contains(err.Error(), "catalog"))
}

func TestRecordCall_FeedsProviderBaseline(t *testing.T) {
	h := newHarness(t, []float64{0.9})
	require.True(t, h.pipeline.AnalyzeContent(context.Background(), chairRef, models.DefaultOptions()).Success)

	baseline, ok := h.monitor.Baseline(monitor.OpProviderCall)
	require.True(t, ok)
	assert.Equal(t, int64(3), baseline.Samples)
}
