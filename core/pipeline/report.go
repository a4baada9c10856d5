package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Stopwatch accumulates time across start/stop intervals. It is used only
// by the coordinating goroutine.
type Stopwatch struct {
	elapsed time.Duration
	started time.Time
	running bool
}

// Start starts the watch; starting a running watch is a no-op
func (w *Stopwatch) Start() {
	if w.running {
		return
	}
	w.started = time.Now()
	w.running = true
}

// Stop stops the watch
func (w *Stopwatch) Stop() {
	if !w.running {
		return
	}
	w.elapsed += time.Since(w.started)
	w.running = false
}

// Elapsed returns the accumulated time, including a running interval
func (w *Stopwatch) Elapsed() time.Duration {
	if w.running {
		return w.elapsed + time.Since(w.started)
	}
	return w.elapsed
}

// ProcessorTiming is the time the coordinator spent blocked on one processor
type ProcessorTiming struct {
	Name      string        `json:"name"`
	Blocking  time.Duration `json:"blocking"`
	Breakdown string        `json:"breakdown,omitempty"`
}

// Report summarizes the timing of a run
type Report struct {
	RunID      string            `json:"run_id"`
	Elapsed    time.Duration     `json:"elapsed"`
	Combining  time.Duration     `json:"combining"`
	Processors []ProcessorTiming `json:"processors"`
	Branches   int               `json:"branches"`
	Throughput float64           `json:"throughput"`
}

// BlockingRatio is the share of the elapsed time spent blocked
func (r Report) BlockingRatio() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return r.Combining.Seconds() / r.Elapsed.Seconds()
}

// String renders the report as indented lines
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total time combining:\t%s\n", FormatBlocking(r.Combining, r.Elapsed))
	for _, p := range r.Processors {
		fmt.Fprintf(&sb, "\t%s:\t%s", p.Name, FormatBlocking(p.Blocking, r.Elapsed))
		if p.Breakdown != "" {
			fmt.Fprintf(&sb, ";\t%s", p.Breakdown)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatBlocking renders a blocking time and its share of total, as
// "1.23 s (4.56%)" or "2.50 m (40.00%)" above one minute.
func FormatBlocking(blocking, total time.Duration) string {
	secs := blocking.Seconds()
	var ts string
	if mins := secs / 60; mins > 1 {
		ts = fmt.Sprintf("%.2f m", mins)
	} else {
		ts = fmt.Sprintf("%.2f s", secs)
	}
	ratio := 0.0
	if total > 0 {
		ratio = secs / total.Seconds()
	}
	return fmt.Sprintf("%s (%.2f%%)", ts, ratio*100)
}

// EstimateRemaining extrapolates the time left from done of total units
// completed in elapsed.
func EstimateRemaining(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || total <= done {
		return 0
	}
	each := elapsed.Seconds() / float64(done)
	left := each*float64(total) - elapsed.Seconds()
	return time.Duration(left * float64(time.Second))
}

// FormatETA renders a remaining duration in seconds, minutes or hours
func FormatETA(d time.Duration) string {
	secs := d.Seconds()
	mins := secs / 60
	switch {
	case mins > 90:
		return fmt.Sprintf("%.2f hours", mins/60)
	case secs > 90:
		return fmt.Sprintf("%.2f mins", mins)
	default:
		return fmt.Sprintf("%.2f secs", secs)
	}
}
