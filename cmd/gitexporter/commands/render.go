package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
	"github.com/open-condo-software/gitexporter/pkg/replay"
	"github.com/open-condo-software/gitexporter/pkg/safeconv"
)

const messageWidth = 60

func newTable(out io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(out)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

// renderSummary prints the end-of-run counters.
func renderSummary(out io.Writer, stats replay.Stats, timing bool) {
	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"commits", "followed", "applied", "synced", "empty", "files", "written", "head"})
	tbl.AppendRow(table.Row{
		humanize.Comma(int64(stats.Total)),
		humanize.Comma(int64(stats.Followed)),
		humanize.Comma(int64(stats.Applied)),
		humanize.Comma(int64(stats.Synced)),
		humanize.Comma(int64(stats.Empty)),
		fmt.Sprintf("+%d ~%d -%d", stats.Records.Added, stats.Records.Modified, stats.Records.Deleted),
		humanize.IBytes(safeconv.Size(stats.Bytes)),
		shortOrDash(stats.Head),
	})

	if timing {
		tbl.AppendFooter(table.Row{"elapsed", stats.Elapsed.Round(time.Millisecond).String()})
	}

	tbl.Render()

	if stats.Warnings > 0 {
		fmt.Fprintf(out, "%s records skipped with a warning\n", humanize.Comma(int64(stats.Warnings)))
	}
}

// renderLogTable prints the entries and path sets of an export log.
func renderLogTable(out io.Writer, path string, doc *exportlog.Document) {
	fmt.Fprintf(out, "%s (version %d)\n\n", path, doc.Version)

	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"index", "sha", "action", "new sha", "paths", "message"})

	actions := make(map[string]int)

	for _, c := range doc.Commits {
		action := c.Processing.Action
		if action == "" {
			action = exportlog.ActionApply
		}

		actions[action]++

		tbl.AppendRow(table.Row{
			c.Processing.Index,
			c.Sha.Short(),
			action,
			shortOrDash(c.Processing.NewSha),
			c.Processing.Paths,
			firstLine(c.Message),
		})
	}

	tbl.AppendFooter(table.Row{"total", humanize.Comma(int64(len(doc.Commits))), actionSummary(actions)})
	tbl.Render()

	fmt.Fprintln(out)

	sets := newTable(out)
	sets.AppendHeader(table.Row{"paths", "count"})
	sets.AppendRows([]table.Row{
		{"all", doc.All.Len()},
		{"allowed", doc.Allowed.Len()},
		{"ignored", doc.Ignored.Len()},
		{"skipped", doc.Skipped.Len()},
	})
	sets.Render()
}

// renderReport prints verify findings, one row per path.
func renderReport(out io.Writer, report *replay.VerifyReport, lineDiffs bool) {
	fmt.Fprintf(out, "source %s, target %s, %s paths checked\n",
		shortOrDash(report.SourceHead), shortOrDash(report.TargetHead), humanize.Comma(int64(report.Checked)))

	if len(report.Mismatches) == 0 {
		fmt.Fprintln(out, "target matches source")

		return
	}

	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"path", "difference"})

	for _, m := range report.Mismatches {
		kind := string(m.Kind)
		if m.Kind == replay.ModeChanged {
			kind += " " + m.Detail
		}

		tbl.AppendRow(table.Row{m.Path, kind})
	}

	tbl.Render()

	if !lineDiffs {
		return
	}

	for _, m := range report.Mismatches {
		if m.Kind != replay.ContentChanged || m.Detail == "" {
			continue
		}

		fmt.Fprintf(out, "\n--- %s\n%s", m.Path, m.Detail)
	}
}

func actionSummary(actions map[string]int) string {
	parts := make([]string, 0, len(actions))

	for _, action := range []string{
		exportlog.ActionApply, exportlog.ActionSync, exportlog.ActionEmpty, exportlog.ActionFollow,
	} {
		if n := actions[action]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", action, n))
		}
	}

	return strings.Join(parts, ", ")
}

func shortOrDash(h gitlib.Hash) string {
	if h.IsZero() {
		return "-"
	}

	return h.Short()
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")

	runes := []rune(line)
	if len(runes) > messageWidth {
		return string(runes[:messageWidth-1]) + "…"
	}

	return line
}
