package engine

import (
	"fmt"
	"sync/atomic"
)

// State is the orchestrator's sync state.
type State int32

const (
	StateIdle State = iota
	StateSyncing
	StateSyncError
)

// String returns the state name used in status output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateSyncError:
		return "sync_error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "syncing":
		*s = StateSyncing
	case "sync_error":
		*s = StateSyncError
	default:
		return fmt.Errorf("unknown sync state %q", text)
	}
	return nil
}

// stateCell holds the current State. Entering Syncing is a
// compare-and-swap, which makes it the replay guard.
type stateCell struct {
	v atomic.Int32
}

func (c *stateCell) Load() State {
	return State(c.v.Load())
}

func (c *stateCell) Store(s State) {
	c.v.Store(int32(s))
}

// begin moves Idle or SyncError to Syncing. It returns false, leaving the
// cell untouched, when a sync is already running.
func (c *stateCell) begin() bool {
	for {
		cur := c.v.Load()
		if State(cur) == StateSyncing {
			return false
		}
		if c.v.CompareAndSwap(cur, int32(StateSyncing)) {
			return true
		}
	}
}

// clearError moves SyncError back to Idle. Other states are left alone.
func (c *stateCell) clearError() bool {
	return c.v.CompareAndSwap(int32(StateSyncError), int32(StateIdle))
}
