package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anime-shed/content-analyzer-go/internal/config"
)

func newProvidersCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the provider catalog in tier order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("PROVIDERS_FILE")
			}
			catalog, err := config.LoadCatalog(file)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(catalog.All()))
			for _, p := range catalog.All() {
				role := ""
				switch p.ID {
				case catalog.Premium().ID:
					role = "premium"
				case catalog.Economy().ID:
					role = "economy"
				}
				rows = append(rows, []string{
					strconv.Itoa(int(p.Tier)),
					p.ID,
					string(p.Kind),
					p.Model,
					p.CostPer1KTokens.StringFixed(5),
					strconv.Itoa(p.MaxTokens),
					strings.Join(p.Capabilities, ","),
					role,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Tier", "ID", "Kind", "Model", "Cost/1K", "Max Tokens", "Capabilities", "Role"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Provider catalog YAML (defaults to PROVIDERS_FILE or the built-in catalog)")
	return cmd
}
