package reindex

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker tracks and reports progress of a reindex run.
type ProgressTracker struct {
	writer         io.Writer
	report         func(message string, progress float64)
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress lines; nil discards them
// total: total number of memories to process
// reportInterval: report progress every N memories
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// OnReport registers fn to receive every progress report as a fraction in [0,1].
func (p *ProgressTracker) OnReport(fn func(message string, progress float64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report = fn
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.lastReported = 0
}

// Increment increases the current progress by delta.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = min(p.current+delta, p.total)
	if p.current-p.lastReported >= p.reportInterval {
		p.print()
		p.lastReported = p.current
	}
}

// Finish marks the run as complete and prints final progress.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = p.total
	p.print()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// Fraction returns completed work as a value in [0,1].
func (p *ProgressTracker) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fraction()
}

func (p *ProgressTracker) fraction() float64 {
	if p.total == 0 {
		return 1
	}
	return float64(p.current) / float64(p.total)
}

// print writes the current progress. Must be called with lock held.
func (p *ProgressTracker) print() {
	rate := float64(p.current) / time.Since(p.startTime).Seconds()
	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %.1f memories/s",
		p.current, p.total, p.fraction()*100, rate)
	if p.report != nil {
		p.report(fmt.Sprintf("indexed %d of %d memories", p.current, p.total), p.fraction())
	}
}
