package engine

import "github.com/jamesainslie/mus/pkg/mus/types"

// Listener receives lifecycle notifications from a run. Methods are called
// from the goroutine that invoked Run.
type Listener interface {
	// OnBuilding is called once the run starts building its catalog.
	OnBuilding()

	// OnCalculating is called when hashing starts, with the initial status.
	OnCalculating(types.Status)

	// OnFinished is called when every file has been processed.
	OnFinished(types.Status)

	// OnError is called for fatal errors and for manifest integrity failures.
	OnError(error)
}

// ListenerFuncs adapts optional functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Building    func()
	Calculating func(types.Status)
	Finished    func(types.Status)
	Error       func(error)
}

func (l ListenerFuncs) OnBuilding() {
	if l.Building != nil {
		l.Building()
	}
}

func (l ListenerFuncs) OnCalculating(s types.Status) {
	if l.Calculating != nil {
		l.Calculating(s)
	}
}

func (l ListenerFuncs) OnFinished(s types.Status) {
	if l.Finished != nil {
		l.Finished(s)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
