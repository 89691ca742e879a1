package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/mus/pkg/mus/manifest"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func TestNewModel(t *testing.T) {
	m := NewModel(Options{Title: "mus"}, nil, nil)

	if m.opts.Interval != DefaultInterval {
		t.Errorf("expected default interval %v, got %v", DefaultInterval, m.opts.Interval)
	}
	if m.phase != phaseStarting {
		t.Errorf("expected starting phase, got %d", m.phase)
	}
	if m.status.BytesPerSecond != types.Unmeasurable {
		t.Errorf("expected unmeasurable speed, got %d", m.status.BytesPerSecond)
	}
	if m.done {
		t.Error("expected done to be false initially")
	}
}

func TestModelLifecycle(t *testing.T) {
	m := NewModel(Options{Title: "mus"}, nil, nil)

	m, _ = update(t, m, buildingMsg{})
	if m.phase != phaseBuilding {
		t.Fatalf("expected building phase, got %d", m.phase)
	}

	m, _ = update(t, m, calculatingMsg{status: types.Status{State: types.StateCalculating, TotalFiles: 10}})
	if m.phase != phaseCalculating {
		t.Fatalf("expected calculating phase, got %d", m.phase)
	}
	if m.status.TotalFiles != 10 {
		t.Errorf("expected 10 files, got %d", m.status.TotalFiles)
	}

	final := types.Status{State: types.StateFinished, TotalFiles: 10, DoneOK: 10, PercentDoneBp: 10000}
	m, _ = update(t, m, finishedMsg{status: final})
	if m.phase != phaseFinished {
		t.Fatalf("expected finished phase, got %d", m.phase)
	}
	if !strings.Contains(m.View(), "Finished") {
		t.Error("expected view to report the finished run")
	}
}

func TestModelTickPollsSource(t *testing.T) {
	calls := 0
	source := func() types.Status {
		calls++
		return types.Status{State: types.StateCalculating, TotalFiles: 4, DoneOK: 2, PercentDoneBp: 5000}
	}
	m := NewModel(Options{Title: "mus"}, source, nil)

	// No polling before the run has started building.
	m, cmd := update(t, m, tickMsg(time.Now()))
	if calls != 0 {
		t.Errorf("expected no poll before building, got %d", calls)
	}
	if cmd == nil {
		t.Error("expected the next tick to be scheduled")
	}

	m, _ = update(t, m, calculatingMsg{})
	m, _ = update(t, m, tickMsg(time.Now()))
	if calls != 1 {
		t.Errorf("expected one poll, got %d", calls)
	}
	if m.status.DoneOK != 2 {
		t.Errorf("expected polled status, got %+v", m.status)
	}
	if !strings.Contains(m.View(), "2 of 4") {
		t.Error("expected view to show file progress")
	}
}

func TestModelIntegrityErrorIsWarning(t *testing.T) {
	m := NewModel(Options{Title: "mus"}, nil, nil)

	m, _ = update(t, m, errorMsg{err: &manifest.IntegrityError{Paths: []string{"a.mu5"}}})
	if m.phase == phaseFailed {
		t.Error("integrity errors must not fail the view")
	}
	if len(m.warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(m.warnings))
	}
	if !strings.Contains(m.View(), "a.mu5") {
		t.Error("expected view to show the warning")
	}
}

func TestModelFatalError(t *testing.T) {
	m := NewModel(Options{Title: "mus"}, nil, nil)

	m, _ = update(t, m, errorMsg{err: errors.New("disk on fire")})
	if m.phase != phaseFailed {
		t.Fatalf("expected failed phase, got %d", m.phase)
	}
	if !strings.Contains(m.View(), "disk on fire") {
		t.Error("expected view to show the error")
	}
}

func TestModelStopCancelsOnce(t *testing.T) {
	cancels := 0
	m := NewModel(Options{Title: "mus"}, nil, context.CancelFunc(func() { cancels++ }))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	if cancels != 1 {
		t.Errorf("expected cancel to be called once, got %d", cancels)
	}
	if !m.cancelled {
		t.Error("expected model to be cancelled")
	}
	if !strings.Contains(m.View(), "Stopping") {
		t.Error("expected view to show the stop in progress")
	}
}

func TestModelDoneQuits(t *testing.T) {
	source := func() types.Status {
		return types.Status{State: types.StateFinished, TotalFiles: 1, DoneOK: 1}
	}
	m := NewModel(Options{Title: "mus"}, source, nil)

	m, cmd := update(t, m, doneMsg{err: context.Canceled})
	if !m.done {
		t.Fatal("expected done")
	}
	if m.phase == phaseFailed {
		t.Error("cancellation must not be shown as a failure")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}
	if m.status.DoneOK != 1 {
		t.Error("expected final status to be polled")
	}
}
