package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jamesainslie/mus/pkg/mus/engine"
	"github.com/jamesainslie/mus/pkg/mus/manifest"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

const (
	progressInterval = 500 * time.Millisecond
	statusLineWidth  = 79
)

var _ engine.Listener = (*progress)(nil)

// progress prints the run lifecycle and a periodically refreshed status line.
// The status line is rewritten in place with a carriage return.
type progress struct {
	w        io.Writer
	interval time.Duration
	source   func() types.Status

	mu       sync.Mutex
	building bool
	warnings []error
	stop     chan struct{}
	done     chan struct{}
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w, interval: progressInterval}
}

// attach sets the status source polled while hashing.
func (p *progress) attach(source func() types.Status) {
	p.source = source
}

func (p *progress) OnBuilding() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.building = true
	p.write("Building file tree... ")
}

func (p *progress) OnCalculating(s types.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.building = false
	p.write("Ok.\n")
	for _, w := range p.warnings {
		p.write(fmt.Sprintf("Warning: %v\n", w))
	}
	p.warnings = nil
	p.write(fmt.Sprintf("Checksumming %d files (%s)...\n", s.TotalFiles, types.FormatSize(s.TotalBytes)))

	if p.source == nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(p.stop, p.done)
}

func (p *progress) OnFinished(s types.Status) {
	p.halt()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(fmt.Sprintf("Finished.  Speed: %s  Time: %s\n",
		types.FormatSpeed(s.BytesPerSecond), types.FormatSeconds(s.ElapsedSeconds)))
}

// OnError defers integrity warnings until the catalog is built. Any other
// error ends the current line.
func (p *progress) OnError(err error) {
	var ie *manifest.IntegrityError
	if errors.As(err, &ie) {
		p.mu.Lock()
		p.warnings = append(p.warnings, err)
		p.mu.Unlock()
		return
	}
	p.finish()
}

// finish closes whatever line is still open and prints pending warnings.
func (p *progress) finish() {
	if p.halt() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.building {
		p.building = false
		p.write("Failed.\n")
	}
	for _, w := range p.warnings {
		p.write(fmt.Sprintf("Warning: %v\n", w))
	}
	p.warnings = nil
}

// halt stops the status line and moves past it. It reports whether a status
// line was running and is safe to call more than once.
func (p *progress) halt() bool {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return false
	}
	close(stop)
	<-done

	p.mu.Lock()
	p.write("\n")
	p.mu.Unlock()
	return true
}

func (p *progress) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			line := formatStatusLine(p.source())
			p.mu.Lock()
			p.write(line)
			p.mu.Unlock()
		}
	}
}

// write must be called with p.mu held.
func (p *progress) write(s string) {
	_, _ = io.WriteString(p.w, s)
}

// formatStatusLine renders one refresh of the status line, padded so that it
// fully overwrites the previous one.
func formatStatusLine(s types.Status) string {
	line := fmt.Sprintf("%d of %d  %d.%02d%% done  Speed: %s  ETA: %s",
		s.Done(), s.TotalFiles,
		s.PercentDoneBp/100, s.PercentDoneBp%100,
		types.FormatSpeed(s.BytesPerSecond),
		types.FormatSeconds(s.SecondsRemaining),
	)
	return fmt.Sprintf("%-*s\r", statusLineWidth, line)
}
