package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anime-shed/content-analyzer-go/internal/container"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "content-analyzer",
		Short:         "Adaptive multi-provider content analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newProvidersCommand())

	return rootCmd
}

// withContainer builds and initialises the container, runs fn and disposes it
func withContainer(ctx context.Context, fn func(*container.Container) error) error {
	c, err := container.NewContainer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			c.Logger().WithError(err).Warn("Container shutdown reported errors")
		}
	}()
	if err := c.Init(ctx); err != nil {
		return err
	}
	return fn(c)
}
