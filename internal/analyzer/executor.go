package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

const defaultCallTimeout = 30 * time.Second

// ProviderLookup resolves a catalog id to its adapter
type ProviderLookup interface {
	Get(id string) (provider.AnalysisProvider, error)
}

// Input is the resolved content plus the options that shaped the prompts
type Input struct {
	Content  []byte
	MimeType string
	Options  models.AnalysisOptions
}

// CallRecord describes one provider call, after retries
type CallRecord struct {
	Provider string
	Purpose  provider.Purpose
	Latency  time.Duration
	Usage    models.TokenUsage
	Err      error
}

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	Retry       RetryPolicy
	CallTimeout time.Duration
	Logger      *logrus.Logger
	// OnCall is invoked after every provider call; it must not block
	OnCall func(CallRecord)
}

// Executor runs the primary and auxiliary provider calls of one analysis
type Executor struct {
	providers   ProviderLookup
	retry       RetryPolicy
	callTimeout time.Duration
	logger      *logrus.Logger
	onCall      func(CallRecord)
}

// NewExecutor creates an Executor
func NewExecutor(providers ProviderLookup, cfg ExecutorConfig) *Executor {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Executor{
		providers:   providers,
		retry:       cfg.Retry,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
		onCall:      cfg.OnCall,
	}
}

// Execute fans out the description, alt-text and SEO calls and joins them. An auxiliary
// failure only leaves its field empty; a primary failure cancels the others and fails.
func (e *Executor) Execute(ctx context.Context, in Input, prompts PromptSet, cfg provider.Config) (*models.AnalysisResult, error) {
	adapter, err := e.providers.Get(cfg.ID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		primary  *provider.Response
		altResp  *provider.Response
		seoResp  *provider.Response
		maxToken = callMaxTokens(in.Options.MaxTokens, cfg.MaxTokens)
	)

	newCall := func(purpose provider.Purpose, prompt string) provider.Call {
		return provider.Call{
			Purpose:   purpose,
			Content:   in.Content,
			MimeType:  in.MimeType,
			System:    prompts.System,
			Prompt:    prompt,
			Model:     cfg.Model,
			MaxTokens: maxToken,
			Language:  in.Options.TargetLanguage,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := e.call(gctx, adapter, cfg.ID, newCall(provider.PurposeDescription, prompts.Description))
		if err != nil {
			return err
		}
		primary = resp
		return nil
	})
	auxiliary := func(purpose provider.Purpose, prompt string, dst **provider.Response) {
		if prompt == "" {
			return
		}
		g.Go(func() error {
			resp, err := e.call(gctx, adapter, cfg.ID, newCall(purpose, prompt))
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					e.logger.WithError(err).WithFields(logrus.Fields{
						"provider": cfg.ID,
						"purpose":  purpose,
					}).Warn("Auxiliary analysis failed, leaving field empty")
				}
				return nil
			}
			*dst = resp
			return nil
		})
	}
	auxiliary(provider.PurposeAltText, prompts.AltText, &altResp)
	auxiliary(provider.PurposeSEO, prompts.SEO, &seoResp)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	parsed := ParseDescription(primary.Output)
	result := &models.AnalysisResult{
		Success:     true,
		Description: parsed.Description,
		Metadata:    parsed.Metadata,
		Confidence:  parsed.Confidence,
		TokenUsage:  primary.Usage,
		Provider:    cfg.ID,
		Model:       cfg.Model,
		Tier:        int(cfg.Tier),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if altResp != nil {
		result.AltText = ParseAuxiliary(altResp.Output)
		result.TokenUsage = result.TokenUsage.Add(altResp.Usage)
	}
	if seoResp != nil {
		result.SEOText = ParseAuxiliary(seoResp.Output)
		result.TokenUsage = result.TokenUsage.Add(seoResp.Usage)
	}
	result.ProcessingTimeSec = time.Since(start).Seconds()

	if !parsed.Structured {
		e.logger.WithField("provider", cfg.ID).Debug("Provider output was not structured, using raw text")
	}
	return result, nil
}

// call performs one provider call under the retry policy. Each attempt holds a call-limit
// slot and runs under the per-call timeout.
func (e *Executor) call(ctx context.Context, adapter provider.AnalysisProvider, id string, c provider.Call) (*provider.Response, error) {
	start := time.Now()
	var resp *provider.Response

	err := e.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		release, err := acquireCall(ctx)
		if err != nil {
			return err
		}
		defer release()

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		r, err := adapter.Analyze(callCtx, c)
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = apperrors.NewProviderError(apperrors.ProviderTimeout,
					fmt.Sprintf("provider call exceeded %s", e.callTimeout), err)
			}
			e.logger.WithError(err).WithFields(logrus.Fields{
				"provider": id,
				"purpose":  c.Purpose,
				"attempt":  attempt,
			}).Debug("Provider call attempt failed")
			return err
		}
		if r == nil {
			return apperrors.NewProviderError(apperrors.ProviderInvalidResponse, "provider returned no response", nil)
		}
		resp = r
		return nil
	})

	if e.onCall != nil {
		record := CallRecord{Provider: id, Purpose: c.Purpose, Latency: time.Since(start), Err: err}
		if resp != nil {
			record.Usage = resp.Usage
		}
		if !errors.Is(err, context.Canceled) {
			e.onCall(record)
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func callMaxTokens(requested, limit int) int {
	switch {
	case requested <= 0:
		return limit
	case limit <= 0:
		return requested
	case requested < limit:
		return requested
	default:
		return limit
	}
}
