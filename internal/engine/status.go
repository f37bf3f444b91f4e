package engine

import "fmt"

// SyncPausedText is shown after a failed sync pass.
const SyncPausedText = "Sync paused. Keep folio running online to continue syncing."

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Online    bool   `json:"online"`
	State     State  `json:"state"`
	Pending   int    `json:"pending"`
	LastError string `json:"lastError,omitempty"`
	Conflicts int    `json:"conflicts"`
	Text      string `json:"text"`
}

// Describe renders the single status line shown to the admin. It is a pure
// function of its inputs.
func Describe(online, syncing bool, pending int, lastError string, conflicts int) string {
	conflictText := ""
	if conflicts > 0 {
		conflictText = fmt.Sprintf(" Conflict resolution applied for %d pending %s.", conflicts, plural(conflicts))
	}

	switch {
	case !online:
		return fmt.Sprintf("Offline mode. %d queued %s.%s", pending, plural(pending), conflictText)
	case syncing:
		return fmt.Sprintf("Online. Syncing %d queued %s.%s", pending, plural(pending), conflictText)
	case lastError != "":
		return lastError + conflictText
	case pending > 0:
		return fmt.Sprintf("Online. %d queued %s waiting to sync.%s", pending, plural(pending), conflictText)
	default:
		return "Online. Local mirror and database are in sync." + conflictText
	}
}

func plural(n int) string {
	if n == 1 {
		return "change"
	}
	return "changes"
}
