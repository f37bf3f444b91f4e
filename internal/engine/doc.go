// Package engine implements the folio sync orchestrator.
//
// The engine owns the local mirror and the outbox. It intercepts
// local-first form submissions while offline, applies them optimistically to
// the mirror, replays the outbox against the backend when connectivity
// returns and merges fresh server snapshots back into the mirror.
//
// # Triggers
//
// Full sync passes are requested by the startup sequence, by an
// offline-to-online transition and by a periodic timer. Requests are fed to
// a coalescing queue drained by Run, so a burst of triggers produces one pass.
//
// # Replay guard
//
// The state cell moves Idle or SyncError to Syncing with a compare-and-swap.
// A second replay attempted while one is running returns
// ErrReplayInProgress immediately; it is never queued.
//
// # Status
//
// Status is a pure projection of {online, syncing, pending, lastError,
// conflicts}. Every public entry point classifies its own failures into
// that projection; nothing panics into callers.
package engine
