package engine

import (
	"sync/atomic"
	"time"

	"github.com/jamesainslie/mus/pkg/mus/types"
)

// totals aggregates the progress of one run. Workers share it by pointer.
type totals struct {
	files     atomic.Int64
	bytes     atomic.Int64
	processed atomic.Int64
	ok        atomic.Int64
	ko        atomic.Int64
	missing   atomic.Int64
}

// counts is a plain copy of totals.
type counts struct {
	files, bytes, processed int64
	ok, ko, missing         int64
}

func (t *totals) load() counts {
	return counts{
		files:     t.files.Load(),
		bytes:     t.bytes.Load(),
		processed: t.processed.Load(),
		ok:        t.ok.Load(),
		ko:        t.ko.Load(),
		missing:   t.missing.Load(),
	}
}

// addProcessed is the progress callback handed to the hasher.
func (t *totals) addProcessed(n int64) {
	t.processed.Add(n)
}

// computeStatus derives a snapshot from the run state. start and end are
// zero until the corresponding phase boundary has been crossed. completed
// is false for a finished run that was stopped or failed before every file
// was processed.
func computeStatus(state types.State, c counts, start, end, now time.Time, completed bool) types.Status {
	s := types.Status{State: state}

	switch state {
	case types.StateBuilding:
		s.TotalFiles = int(c.files)
		s.TotalBytes = c.bytes

	case types.StateCalculating:
		fill(&s, c)
		if c.bytes > 0 {
			s.PercentDoneBp = int(c.processed * 10000 / c.bytes)
		}
		elapsed := wholeSeconds(start, now)
		s.ElapsedSeconds = elapsed
		s.BytesPerSecond = rate(c.processed, elapsed)
		s.SecondsRemaining = types.Unmeasurable
		if s.BytesPerSecond > 0 {
			s.SecondsRemaining = (c.bytes - c.processed) / s.BytesPerSecond
		}

	case types.StateFinished:
		fill(&s, c)
		switch {
		case completed:
			s.PercentDoneBp = 10000
		case c.bytes > 0:
			s.PercentDoneBp = int(min(c.processed, c.bytes) * 10000 / c.bytes)
		}
		elapsed := wholeSeconds(start, end)
		s.ElapsedSeconds = elapsed
		s.BytesPerSecond = rate(c.processed, elapsed)
		s.SecondsRemaining = 0
	}

	return s
}

func fill(s *types.Status, c counts) {
	s.TotalFiles = int(c.files)
	s.TotalBytes = c.bytes
	s.ProcessedBytes = c.processed
	s.DoneOK = int(c.ok)
	s.DoneKO = int(c.ko)
	s.DoneMissing = int(c.missing)
}

func wholeSeconds(from, to time.Time) int64 {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Second)
}

func rate(bytes, seconds int64) int64 {
	if seconds == 0 {
		return types.Unmeasurable
	}
	return bytes / seconds
}
