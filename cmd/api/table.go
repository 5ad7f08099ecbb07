package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderResult(r *models.AnalysisResult) string {
	if !r.Success {
		return renderTable([]string{"Field", "Value"}, [][]string{
			{"Success", "false"},
			{"Code", r.Error.Code},
			{"Message", r.Error.Message},
		}, nil)
	}
	rows := [][]string{
		{"Provider", r.Provider},
		{"Model", r.Model},
		{"Quality", fmt.Sprintf("%.2f", r.QualityScore)},
		{"Confidence", fmt.Sprintf("%.2f", r.Confidence)},
		{"Escalated", fmt.Sprintf("%t", r.Escalated)},
		{"Below Threshold", fmt.Sprintf("%t", r.BelowThreshold)},
		{"Tokens", fmt.Sprintf("%d", r.TokenUsage.Total)},
		{"Description", r.Description},
		{"Alt Text", r.AltText},
		{"SEO Text", r.SEOText},
	}
	if len(r.Metadata.VisualElements) > 0 {
		rows = append(rows, []string{"Elements", strings.Join(r.Metadata.VisualElements, ", ")})
	}
	if len(r.Metadata.Colors) > 0 {
		rows = append(rows, []string{"Colors", strings.Join(r.Metadata.Colors, ", ")})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderOutcomes(outcomes []models.BatchOutcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		provider, quality, detail := "", "", ""
		if o.Result != nil && o.Result.Success {
			provider = o.Result.Provider
			quality = fmt.Sprintf("%.2f", o.Result.QualityScore)
		}
		if o.Error != nil {
			detail = o.Error.Code + ": " + o.Error.Message
		}
		rows = append(rows, []string{o.Ref, string(o.Status), provider, quality, detail})
	}
	return renderTable(
		[]string{"Ref", "Status", "Provider", "Quality", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}
