package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/mus/pkg/mus/engine"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

// Runner is the part of an engine the view drives.
type Runner interface {
	Run(ctx context.Context, workers int) error
	Status() types.Status
}

// View shows a run in the terminal. It is also the engine's listener, so it
// must be registered when the engine is built and then started with Run.
type View struct {
	opts    Options
	program *tea.Program
}

var _ engine.Listener = (*View)(nil)

// New creates a view. Nothing is drawn until Run.
func New(opts Options) *View {
	return &View{opts: opts}
}

func (v *View) OnBuilding()                  { v.send(buildingMsg{}) }
func (v *View) OnCalculating(s types.Status) { v.send(calculatingMsg{status: s}) }
func (v *View) OnFinished(s types.Status)    { v.send(finishedMsg{status: s}) }
func (v *View) OnError(err error)            { v.send(errorMsg{err: err}) }

func (v *View) send(msg tea.Msg) {
	if v.program != nil {
		v.program.Send(msg)
	}
}

// Run starts r with the given number of workers and shows its progress until
// it returns. Stopping the view cancels the run. The run's error is returned.
func (v *View) Run(ctx context.Context, r Runner, workers int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := v.opts
	opts.Workers = workers
	v.program = tea.NewProgram(NewModel(opts, r.Status, cancel), tea.WithAltScreen())

	result := make(chan error, 1)
	go func() {
		err := r.Run(ctx, workers)
		result <- err
		v.program.Send(doneMsg{err: err})
	}()

	if _, err := v.program.Run(); err != nil {
		cancel()
		<-result
		return fmt.Errorf("running progress view: %w", err)
	}
	return <-result
}
