package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/open-condo-software/gitexporter/pkg/changes"
	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

// Progress prints one line per processed commit.
type Progress struct {
	out    io.Writer
	timing bool
	start  time.Time
	now    func() time.Time
	tags   map[string]*color.Color
}

// NewProgress writes progress lines to out. Timing adds throughput figures.
func NewProgress(out io.Writer, useColor, timing bool) *Progress {
	tags := map[string]*color.Color{
		exportlog.ActionApply:  color.New(color.FgGreen),
		exportlog.ActionSync:   color.New(color.FgMagenta, color.Bold),
		exportlog.ActionEmpty:  color.New(color.FgYellow),
		exportlog.ActionFollow: color.New(color.FgCyan),
	}

	for _, c := range tags {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return &Progress{out: out, timing: timing, start: time.Now(), now: time.Now, tags: tags}
}

// Commit prints the progress line of commit i.
func (p *Progress) Commit(i, total int, sha gitlib.Hash, action string, summary changes.Summary) {
	if p == nil {
		return
	}

	var line strings.Builder

	fmt.Fprintf(&line, "progress: %s/%s %s %s",
		humanize.Comma(int64(i+1)), humanize.Comma(int64(total)), sha.Short(), p.tag(action))

	if action != exportlog.ActionFollow {
		fmt.Fprintf(&line, " (+%d ~%d -%d)", summary.Added, summary.Modified, summary.Deleted)
	}

	if p.timing {
		elapsed := p.now().Sub(p.start)
		if seconds := elapsed.Seconds(); seconds > 0 {
			fmt.Fprintf(&line, " %s commits/s", humanize.FtoaWithDigits(float64(i+1)/seconds, 1))
		}
	}

	fmt.Fprintln(p.out, line.String())
}

func (p *Progress) tag(action string) string {
	c, ok := p.tags[action]
	if !ok {
		return action
	}

	return c.Sprint(action)
}
