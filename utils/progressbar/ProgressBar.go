// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar implements a progress bar that must be manually managed.
// That is, Display must be called whenever an updated progress bar
// should be printed.
type ProgressBar struct {
	out             io.Writer
	width           int
	maxProgress     int
	currentProgress int
	bar             strings.Builder
	startTime       time.Time
}

// New returns a new ProgressBar that is width characters wide, writes
// to out, and reaches 100% after max units of progress.
func New(out io.Writer, width, max int) *ProgressBar {
	if max < 1 {
		max = 1
	}
	return &ProgressBar{
		out:         out,
		width:       width,
		maxProgress: max,
		startTime:   time.Now(),
	}
}

// Add adds n units of progress. Progress never exceeds the maximum.
func (p *ProgressBar) Add(n int) {
	p.currentProgress += n
	if p.currentProgress > p.maxProgress {
		p.currentProgress = p.maxProgress
	}
}

// Progress returns the fraction of progress made
func (p *ProgressBar) Progress() float64 {
	return float64(p.currentProgress) / float64(p.maxProgress)
}

// Display redraws the progress bar on the current line
func (p *ProgressBar) Display() {
	p.bar.Reset()
	p.bar.WriteString("|")

	filled := int(p.Progress() * float64(p.width))
	p.bar.WriteString(strings.Repeat("█", filled))
	p.bar.WriteString(strings.Repeat(" ", p.width-filled))
	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]", p.Progress()*100,
		time.Since(p.startTime).Truncate(time.Second))

	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.bar.String())
}

// Close draws the bar a final time and moves to the next line
func (p *ProgressBar) Close() {
	p.Display()
	fmt.Fprintln(p.out)
}
