// Package model defines the mirrored portfolio state, queued write intents,
// and compiled form catalog entries shared by every other folio package.
//
// This package contains type definitions and small value helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Conventions:
//   - JSON tags use the backend's camelCase wire names
//   - Nullable columns are pointers and serialize as JSON null
//   - Timestamps on entities are ISO-8601 strings as produced by the backend
//   - Intent.CreatedAt is unix milliseconds and doubles as the logical clock
//     for replay ordering and conflict comparison
package model
