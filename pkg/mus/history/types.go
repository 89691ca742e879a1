// Package history records completed mus runs in a local badger database so
// earlier generations and verifications can be listed and inspected.
package history

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/jamesainslie/mus/pkg/mus/types"
)

// EntryVersion is incremented when the stored entry format changes.
const EntryVersion = 1

// Operation is the kind of run an entry describes.
type Operation string

const (
	// OpGenerate is a manifest generation run.
	OpGenerate Operation = "generate"
	// OpVerify is a manifest verification run.
	OpVerify Operation = "verify"
)

// OperationFor maps an engine mode to its history operation.
func OperationFor(mode types.Mode) Operation {
	if mode == types.ModeVerify {
		return OpVerify
	}
	return OpGenerate
}

// Entry is one recorded run.
type Entry struct {
	Version   int          `json:"version"`
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Operation Operation    `json:"operation"`
	Inputs    []string     `json:"inputs"`
	Manifest  string       `json:"manifest,omitempty"`
	Algorithm string       `json:"algorithm"`
	Workers   int          `json:"workers"`
	Status    types.Status `json:"status"`
	Failures  []Failure    `json:"failures,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Failure is a file that did not verify or could not be hashed.
type Failure struct {
	Path  string `json:"path"`
	Cause string `json:"cause"`
}

// Succeeded reports whether the run finished without any failure.
func (e *Entry) Succeeded() bool {
	return e.Error == "" && e.Status.DoneKO == 0 && e.Status.State == types.StateFinished
}

// Encode serializes the entry.
func (e *Entry) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding history entry: %w", err)
	}
	return data, nil
}

// Decode deserializes data into the entry.
func (e *Entry) Decode(data []byte) error {
	if err := json.Unmarshal(data, e); err != nil {
		return fmt.Errorf("decoding history entry: %w", err)
	}
	return nil
}
