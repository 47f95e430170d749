package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidContent     = errors.New("invalid generated content")
	ErrPublishRejected    = errors.New("publisher rejected post")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrUnknownSite        = errors.New("unknown site")

	// ErrEntryAlreadyPublished notes a success whose calendar entry another run had already served.
	ErrEntryAlreadyPublished = errors.New("calendar entry already published")
)

// Stage names the orchestrator step an error belongs to.
type Stage string

const (
	StageResolving      Stage = "resolving"
	StageDuplicateCheck Stage = "duplicate_check"
	StageGenerating     Stage = "generating"
	StagePublishing     Stage = "publishing"
	StageRecording      Stage = "recording"
)

// StageError ties a failure to a stage and attempt number.
type StageError struct {
	Stage   Stage
	Attempt int
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (attempt %d): %v", e.Stage, e.Attempt, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Retryable reports whether the orchestrator may retry the stage.
func (e *StageError) Retryable() bool {
	return e.Stage == StageGenerating || e.Stage == StagePublishing
}
