package lavaflow

import (
	"errors"
	"fmt"

	"github.com/lavaflow/lavaflow/lavalink"
)

// Sentinel errors surfaced by the client.
var (
	// ErrNoNodes means no connected node is available to serve a request.
	ErrNoNodes = errors.New("no audio nodes available")
	// ErrNodeNotReady means the node has no session yet.
	ErrNodeNotReady = errors.New("node is not ready")
	// ErrPlayerDestroyed means an operation was attempted on a destroyed player.
	ErrPlayerDestroyed = errors.New("player is destroyed")
	// ErrNodeDestroyed means an operation was attempted on a destroyed node.
	ErrNodeDestroyed = errors.New("node is destroyed")
	// ErrNotConnected means the player has no complete voice binding.
	ErrNotConnected = errors.New("player is not connected to a voice channel")
	// ErrEmptyQueue means play was requested with nothing queued.
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrVoiceTimeout means the voice binding did not complete in time.
	ErrVoiceTimeout = errors.New("voice binding timed out")
)

// ValidationError reports a bad argument from the caller. No state changes
// when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ContractError reports that a node rejected a request or failed a load.
// The player treats it like a track load failure.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("node rejected %s: %s", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// RestError is a non-2xx node response with its decoded body.
type RestError struct {
	Status int
	Body   lavalink.Error
}

func (e *RestError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("node returned %d: %s", e.Status, e.Body.Message)
	}
	return fmt.Sprintf("node returned %d", e.Status)
}

// Retriable reports whether the response status may succeed on retry.
func (e *RestError) Retriable() bool {
	return e.Status == 429 || e.Status >= 500
}
