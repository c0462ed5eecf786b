// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"gitlab.com/hepcedar/lhapdf-management/internal/fetch"
)

const (
	barWidth      = 40
	redrawEvery   = 100 * time.Millisecond
	clearLineCode = "\r\x1b[2K"
)

// ProgressBar draws a single-line byte progress bar, redrawn in place.
type ProgressBar struct {
	out   io.Writer
	name  string
	total int64
	done  int64
	bar   progress.Model

	now      func() time.Time
	lastDraw time.Time
}

// NewProgressBar creates a bar for the named transfer. total is -1 when the
// size is not known, in which case only the byte count is shown.
func NewProgressBar(out io.Writer, name string, total int64) *ProgressBar {
	return &ProgressBar{
		out:   out,
		name:  name,
		total: total,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		now:   time.Now,
	}
}

// ProgressFunc returns a constructor of bars drawing to out, matching
// fetch.ProgressFunc.
func ProgressFunc(out io.Writer) fetch.ProgressFunc {
	return func(name string, total int64) fetch.Progress {
		return NewProgressBar(out, name, total)
	}
}

// Add records n transferred bytes and redraws at most every redrawEvery.
func (p *ProgressBar) Add(n int64) {
	p.done += n
	if now := p.now(); now.Sub(p.lastDraw) >= redrawEvery {
		p.lastDraw = now
		p.draw()
	}
}

// Finish draws the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.draw()
	fmt.Fprintln(p.out)
}

// View renders the current state without control codes.
func (p *ProgressBar) View() string {
	if p.total <= 0 {
		return fmt.Sprintf("%s %s", p.name, fetch.FormatBytes(p.done))
	}
	percent := min(float64(p.done)/float64(p.total), 1)
	return fmt.Sprintf("%s %s %s/%s", p.name, p.bar.ViewAs(percent),
		fetch.FormatBytes(p.done), fetch.FormatBytes(p.total))
}

func (p *ProgressBar) draw() {
	fmt.Fprint(p.out, clearLineCode+p.View())
}
