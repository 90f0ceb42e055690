package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/neurlang/seqadv/stats"
)

// RenderSummary writes one row per task and a merged total.
func RenderSummary(w io.Writer, list []*stats.Statistics) {
	if len(list) == 0 {
		_, _ = fmt.Fprintln(w, "(0 tasks)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "Words", "Acc", "Ppl", "Xent", "Critic", "Elapsed"})
	for _, st := range list {
		t.AppendRow(summaryRow(st.Basename, st))
	}
	t.AppendFooter(summaryRow("total", stats.Merge("total", list...)))
	t.Render()
}

func summaryRow(name string, st *stats.Statistics) table.Row {
	return table.Row{
		name,
		st.NWords,
		fmt.Sprintf("%.2f", st.Accuracy()),
		fmt.Sprintf("%.3f", st.Perplexity()),
		fmt.Sprintf("%.4f", st.XEnt()),
		fmt.Sprintf("%.4f", st.CriticLoss),
		st.ElapsedTime().Round(time.Millisecond).String(),
	}
}

// RenderReports writes stored report rows.
func RenderReports(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Step", "Kind", "Task", "Words", "Acc", "Ppl", "Critic", "LR"})
	for _, r := range rows {
		st := r.Stats()
		t.AppendRow(table.Row{
			r.Step,
			r.Kind,
			r.Task,
			r.NWords,
			fmt.Sprintf("%.2f", st.Accuracy()),
			fmt.Sprintf("%.3f", st.Perplexity()),
			fmt.Sprintf("%.4f", r.CriticLoss),
			fmt.Sprintf("%.6f", r.LR),
		})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
}
