package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anime-shed/content-analyzer-go/internal/container"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

type optionFlags struct {
	preset       string
	context      string
	qualityFloor float64
	provider     string
	experiment   string
	noSemantic   bool
}

func (f *optionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "default", "Option preset: default, product, accessibility or fast")
	cmd.Flags().StringVar(&f.context, "context", "", "Domain context passed to the prompts")
	cmd.Flags().Float64Var(&f.qualityFloor, "quality-floor", 0, "Minimum acceptable quality score")
	cmd.Flags().StringVar(&f.provider, "provider", "", "Force a provider id")
	cmd.Flags().StringVar(&f.experiment, "experiment", "", "Route through an active experiment")
	cmd.Flags().BoolVar(&f.noSemantic, "no-semantic-cache", false, "Only match the cache exactly")
}

func (f *optionFlags) options() (models.AnalysisOptions, error) {
	var opts models.AnalysisOptions
	switch strings.ToLower(f.preset) {
	case "", "default":
		opts = models.DefaultOptions()
	case "product":
		opts = models.ProductOptions()
	case "accessibility":
		opts = models.AccessibilityOptions()
	case "fast":
		opts = models.FastOptions()
	default:
		return opts, fmt.Errorf("unknown preset %q", f.preset)
	}
	if f.context != "" {
		opts = opts.WithContext(f.context)
	}
	if f.qualityFloor > 0 {
		opts = opts.WithQualityFloor(f.qualityFloor)
	}
	if f.provider != "" {
		opts = opts.WithProvider(f.provider)
	}
	if f.experiment != "" {
		opts = opts.WithExperiment(f.experiment)
	}
	if f.noSemantic {
		opts = opts.WithoutSemanticCache()
	}
	return opts, nil
}

func newAnalyzeCommand() *cobra.Command {
	var flags optionFlags
	var hash string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <content-ref>",
		Short: "Analyse a single content reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(c *container.Container) error {
				result := c.Pipeline().Analyze(cmd.Context(), models.AnalysisRequest{
					ContentRef:  args[0],
					ContentHash: hash,
					Options:     opts,
				})
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(cmd, result)
				}
				fmt.Fprintln(out, renderResult(result))
				if !result.Success {
					return fmt.Errorf("%s: %s", result.Error.Code, result.Error.Message)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&hash, "hash", "", "Known content hash; skips the fetch on an exact cache hit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw result as JSON")
	return cmd
}

func newBatchCommand() *cobra.Command {
	var flags optionFlags
	var batch models.BatchConfig
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batch <content-ref>...",
		Short: "Analyse several content references with bounded concurrency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(c *container.Container) error {
				start := time.Now()
				outcomes, err := c.Pipeline().AnalyzeBatch(cmd.Context(), args, opts, batch)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, outcomes)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderOutcomes(outcomes))
				fmt.Fprintf(cmd.OutOrStdout(), "%d items in %s\n", len(outcomes), time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&batch.MaxConcurrent, "max-concurrent", 0, "Maximum provider calls in flight")
	cmd.Flags().IntVar(&batch.BatchSize, "batch-size", 0, "Items per chunk")
	cmd.Flags().StringVar(&batch.DelayBetweenBatches, "delay", "", "Pause between chunks, e.g. 500ms")
	cmd.Flags().Float64Var(&batch.RatePerSecond, "rate", 0, "Maximum items started per second")
	cmd.Flags().BoolVar(&batch.ContinueOnError, "continue-on-error", true, "Keep going after a failed item")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcomes as JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
