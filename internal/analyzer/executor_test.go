package analyzer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/internal/provider/stub"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

type scriptedProvider struct {
	mu    sync.Mutex
	calls map[provider.Purpose]int
	fn    func(ctx context.Context, call provider.Call, n int) (*provider.Response, error)
}

func newScripted(fn func(ctx context.Context, call provider.Call, n int) (*provider.Response, error)) *scriptedProvider {
	return &scriptedProvider{calls: map[provider.Purpose]int{}, fn: fn}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Analyze(ctx context.Context, call provider.Call) (*provider.Response, error) {
	p.mu.Lock()
	p.calls[call.Purpose]++
	n := p.calls[call.Purpose]
	p.mu.Unlock()
	return p.fn(ctx, call, n)
}

func (p *scriptedProvider) count(purpose provider.Purpose) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[purpose]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var testConfig = provider.Config{ID: "p1", Model: "m1", Tier: 1, MaxTokens: 800, CostPer1KTokens: decimal.RequireFromString("0.005")}

func newTestExecutor(p provider.AnalysisProvider, onCall func(CallRecord)) *Executor {
	registry := provider.NewRegistry()
	registry.Register(testConfig.ID, p)
	policy := DefaultRetryPolicy()
	policy.Sleeper = func(time.Duration) {}
	return NewExecutor(registry, ExecutorConfig{Retry: policy, CallTimeout: time.Second, Logger: quietLogger(), OnCall: onCall})
}

func usage(n int64) models.TokenUsage {
	return models.TokenUsage{Prompt: n, Completion: n, Total: 2 * n}
}

func TestExecute_FanOutJoinsAllFields(t *testing.T) {
	p := newScripted(func(_ context.Context, call provider.Call, _ int) (*provider.Response, error) {
		switch call.Purpose {
		case provider.PurposeAltText:
			return &provider.Response{Output: "Red chair", Usage: usage(10)}, nil
		case provider.PurposeSEO:
			return &provider.Response{Output: "Buy a red chair", Usage: usage(20)}, nil
		default:
			assert.Equal(t, 512, call.MaxTokens)
			assert.Equal(t, "m1", call.Model)
			return &provider.Response{Output: `{"description":"A red chair","confidence":0.9}`, Usage: usage(100)}, nil
		}
	})

	var records atomic.Int32
	e := newTestExecutor(p, func(CallRecord) { records.Add(1) })
	opts := models.DefaultOptions()
	opts.MaxTokens = 512

	res, err := e.Execute(context.Background(), Input{Content: []byte("img"), MimeType: "image/png", Options: opts}, BuildPrompts(opts), testConfig)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "A red chair", res.Description)
	assert.Equal(t, "Red chair", res.AltText)
	assert.Equal(t, "Buy a red chair", res.SEOText)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, usage(130), res.TokenUsage)
	assert.Equal(t, "p1", res.Provider)
	assert.Equal(t, 1, res.Tier)
	assert.Equal(t, int32(3), records.Load())
}

func TestExecute_AuxiliaryFailureDegradesField(t *testing.T) {
	p := newScripted(func(_ context.Context, call provider.Call, _ int) (*provider.Response, error) {
		if call.Purpose == provider.PurposeAltText {
			return nil, apperrors.NewProviderError(apperrors.ProviderAuthFailure, "denied", nil)
		}
		return &provider.Response{Output: "plain description", Usage: usage(5)}, nil
	})
	e := newTestExecutor(p, nil)
	opts := models.DefaultOptions()

	res, err := e.Execute(context.Background(), Input{Options: opts}, BuildPrompts(opts), testConfig)
	require.NoError(t, err)

	assert.Empty(t, res.AltText)
	assert.Equal(t, "plain description", res.SEOText)
	assert.Equal(t, "plain description", res.Description)
	assert.Equal(t, FallbackConfidence, res.Confidence)
}

func TestExecute_PrimaryFailureCancelsSiblings(t *testing.T) {
	p := newScripted(func(ctx context.Context, call provider.Call, _ int) (*provider.Response, error) {
		if call.Purpose == provider.PurposeDescription {
			return nil, apperrors.NewProviderError(apperrors.ProviderInvalidRequest, "bad image", nil)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newTestExecutor(p, nil)
	opts := models.DefaultOptions()

	done := make(chan struct{})
	var err error
	go func() {
		_, err = e.Execute(context.Background(), Input{Options: opts}, BuildPrompts(opts), testConfig)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after primary failure")
	}
	assert.True(t, apperrors.IsProviderKind(err, apperrors.ProviderInvalidRequest))
	assert.Equal(t, 1, p.count(provider.PurposeDescription), "non-retryable errors are not retried")
}

func TestExecute_RetriesThenExhausts(t *testing.T) {
	p := newScripted(func(_ context.Context, call provider.Call, _ int) (*provider.Response, error) {
		if call.Purpose == provider.PurposeDescription {
			return nil, apperrors.NewProviderError(apperrors.ProviderRateLimited, "429", nil)
		}
		return &provider.Response{Output: "ok"}, nil
	})
	e := newTestExecutor(p, nil)
	opts := models.DefaultOptions()

	_, err := e.Execute(context.Background(), Input{Options: opts}, BuildPrompts(opts), testConfig)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExhaustedRetries))
	assert.Equal(t, 3, p.count(provider.PurposeDescription))
}

func TestExecute_PerCallTimeoutIsRetryable(t *testing.T) {
	p := newScripted(func(ctx context.Context, call provider.Call, n int) (*provider.Response, error) {
		if call.Purpose == provider.PurposeDescription && n == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &provider.Response{Output: `{"description":"late but fine"}`}, nil
	})
	registry := provider.NewRegistry()
	registry.Register(testConfig.ID, p)
	policy := DefaultRetryPolicy()
	policy.Sleeper = func(time.Duration) {}
	e := NewExecutor(registry, ExecutorConfig{Retry: policy, CallTimeout: 20 * time.Millisecond, Logger: quietLogger()})
	opts := models.DefaultOptions()

	res, err := e.Execute(context.Background(), Input{Options: opts}, PromptSet{Description: "describe"}, testConfig)
	require.NoError(t, err)
	assert.Equal(t, "late but fine", res.Description)
	assert.Equal(t, 2, p.count(provider.PurposeDescription))
}

func TestExecute_UnknownProvider(t *testing.T) {
	e := NewExecutor(provider.NewRegistry(), ExecutorConfig{Logger: quietLogger()})
	_, err := e.Execute(context.Background(), Input{}, PromptSet{Description: "x"}, testConfig)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}

func TestExecute_CallLimitBoundsInFlight(t *testing.T) {
	var inFlight, peak atomic.Int64
	p := newScripted(func(context.Context, provider.Call, int) (*provider.Response, error) {
		n := inFlight.Add(1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &provider.Response{Output: "ok"}, nil
	})
	e := newTestExecutor(p, nil)
	ctx := WithCallLimit(context.Background(), semaphore.NewWeighted(2))
	opts := models.DefaultOptions()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(ctx, Input{Options: opts}, BuildPrompts(opts), testConfig)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestExecute_StubProvider(t *testing.T) {
	e := newTestExecutor(stub.New("stub"), nil)
	opts := models.ProductOptions()

	first, err := e.Execute(context.Background(), Input{Content: []byte("abc")}, BuildPrompts(opts), testConfig)
	require.NoError(t, err)
	second, err := e.Execute(context.Background(), Input{Content: []byte("abc")}, BuildPrompts(opts), testConfig)
	require.NoError(t, err)

	assert.Equal(t, first.Description, second.Description)
	assert.NotEmpty(t, first.AltText)
	assert.Equal(t, []string{"item", "background"}, first.Metadata.VisualElements)
}

func TestCallMaxTokens(t *testing.T) {
	assert.Equal(t, 800, callMaxTokens(0, 800))
	assert.Equal(t, 512, callMaxTokens(512, 800))
	assert.Equal(t, 800, callMaxTokens(1024, 800))
	assert.Equal(t, 1024, callMaxTokens(1024, 0))
}

func TestAcquireCall_CancelledContext(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))
	ctx, cancel := context.WithCancel(WithCallLimit(context.Background(), sem))
	cancel()

	_, err := acquireCall(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
