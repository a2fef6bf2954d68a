// Package jobs tracks long-running generation jobs submitted to external
// model services. A Tracker owns the lifecycle of each job from submission
// through polling to result import; providers only speak the remote HTTP
// contract and never touch tracker state directly.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrService indicates the remote generation service rejected a request
	// or returned an unusable response.
	ErrService = errors.New("generation service error")

	// ErrInvalidState indicates an operation that is not legal in the job's
	// current status, such as importing a result before completion.
	ErrInvalidState = errors.New("invalid job state")

	// ErrUnknownJob indicates a job ID the tracker has never seen.
	ErrUnknownJob = errors.New("unknown job")
)

// Status is a job's position in its lifecycle. Transitions only move
// forward: a completed or failed job never becomes pending again.
type Status int

const (
	StatusSubmitted Status = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses for the forward-only transition check. Completed and
// failed share a rank because they are alternative terminals, not a sequence.
func (s Status) rank() int {
	switch s {
	case StatusSubmitted:
		return 0
	case StatusProcessing:
		return 1
	default:
		return 2
	}
}

// SubmitRequest carries the inputs for a new generation job. Exactly one of
// Prompt and ImageRef should be set for most providers; the provider decides
// what combinations it accepts.
type SubmitRequest struct {
	Prompt   string
	ImageRef string
	// BBox optionally constrains the generated model's proportions as
	// width, height, length. Nil means unconstrained.
	BBox []float64
}

// PollUpdate is a provider's report on a remote job. ResultRef is only
// meaningful when Status is StatusCompleted; Message carries the failure
// reason when Status is StatusFailed.
type PollUpdate struct {
	Status    Status
	Progress  float64
	ResultRef string
	Message   string
}

// Provider is a remote generation service. Submit returns the service's own
// identifier for the job; Poll translates the service's status vocabulary
// into ours. Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Submit(ctx context.Context, req SubmitRequest) (remoteID string, err error)
	Poll(ctx context.Context, remoteID string) (PollUpdate, error)
}

// Commander sends a command to the content-creation host and returns the
// host's result payload. *bridge.Conn satisfies this.
type Commander interface {
	Call(ctx context.Context, command string, params any) (json.RawMessage, error)
}
