package profiler

import (
	"io"
	"time"

	"github.com/muesli/termenv"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithOutput sends the summary lines to w. Colors are used only when w is a terminal.
//
// Parameters:
//   - w: the writer receiving the summaries
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithOutput(w io.Writer) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.out = termenv.NewOutput(w)
	}
}

// WithUpdateInterval sets how often a summary is printed.
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.updateInterval = d
	}
}
