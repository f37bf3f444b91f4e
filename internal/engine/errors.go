package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/folio/internal/remote"
)

var (
	// ErrReplayInProgress is returned by TryReplay while another replay runs.
	ErrReplayInProgress = errors.New("replay already in progress")

	// ErrOffline is returned by FullSync while the backend is unreachable.
	ErrOffline = errors.New("offline")

	// ErrNotIntercepted is returned by Intercept for submissions that must
	// go straight to the backend.
	ErrNotIntercepted = errors.New("submission not intercepted")
)

// SyncError describes why a sync pass stopped.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// IntentID identifies the outbox entry being replayed, if any.
	IntentID int64

	// StatusCode is the backend's HTTP status for rejected requests.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeReplayRejected indicates the backend answered a replayed
	// intent with a non-success status.
	ErrCodeReplayRejected SyncErrorCode = "REPLAY_REJECTED"

	// ErrCodeReplayFailed indicates a replay request never got an answer.
	ErrCodeReplayFailed SyncErrorCode = "REPLAY_FAILED"

	// ErrCodeRefreshFailed indicates the snapshot fetch or merge failed.
	ErrCodeRefreshFailed SyncErrorCode = "REFRESH_FAILED"

	// ErrCodeStorage indicates the local database failed.
	ErrCodeStorage SyncErrorCode = "STORAGE_FAILED"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.IntentID != 0 {
		msg += fmt.Sprintf(" (intent=%d)", e.IntentID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsReplayRejected returns true if the backend refused a replayed intent.
// Uses errors.As to handle wrapped errors.
func IsReplayRejected(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeReplayRejected
	}
	return false
}

// IsStorageError returns true if the error came from the local database.
// Uses errors.As to handle wrapped errors.
func IsStorageError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeStorage
	}
	return false
}

func newReplayError(intentID int64, err error) *SyncError {
	if status := remote.StatusCode(err); status != 0 {
		return &SyncError{
			Code:       ErrCodeReplayRejected,
			Message:    fmt.Sprintf("sync failed with status %d", status),
			IntentID:   intentID,
			StatusCode: status,
			Err:        err,
		}
	}
	return &SyncError{
		Code:     ErrCodeReplayFailed,
		Message:  "backend unreachable",
		IntentID: intentID,
		Err:      err,
	}
}

func newStorageError(op string, err error) *SyncError {
	return &SyncError{Code: ErrCodeStorage, Message: op, Err: err}
}

func newRefreshError(err error) *SyncError {
	return &SyncError{Code: ErrCodeRefreshFailed, Message: "refresh mirror", Err: err}
}
