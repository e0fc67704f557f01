package main

import (
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

const maxInsightWidth = 60

var (
	centristColor = color.New(color.FgGreen, color.Bold)
	moderateColor = color.New(color.FgCyan)
	balancedColor = color.New(color.FgYellow)
	neutralColor  = color.New(color.FgMagenta)
	boldColor     = color.New(color.Bold)
)

func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// bandLabel colours a band by how far it sits from the centre.
func bandLabel(band scoring.InsightBand) string {
	switch band {
	case scoring.BandCentrist:
		return centristColor.Sprint(band)
	case scoring.BandModerate:
		return moderateColor.Sprint(band)
	case scoring.BandBalanced:
		return balancedColor.Sprint(band)
	default:
		return neutralColor.Sprint(band)
	}
}

func bold(s string) string {
	return boldColor.Sprint(s)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
