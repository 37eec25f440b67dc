package cmd

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/hostcrawl/internal/output"
)

// renderResults prints the visited hosts in completion order.
func renderResults(w io.Writer, report output.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.AppendHeader(table.Row{"#", "Host", "RTT"})
	for i, rec := range report.Results {
		t.AppendRow(table.Row{i + 1, rec.Host, rec.RTT.Round(time.Microsecond)})
	}
	t.AppendFooter(table.Row{"", "Total", len(report.Results)})
	t.Render()
}
