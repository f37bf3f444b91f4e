// Package mirror holds the pure functions that evolve the local mirror.
//
// Two concerns live here:
//
// Optimistic application:
// ParseMutation turns a captured intent into a typed Mutation, and Apply
// folds it into a snapshot. The result is what the admin would see had the
// backend accepted the write. Apply never fails: intents with missing or
// unknown metadata leave the snapshot unchanged.
//
// Reconciliation:
// Merge combines a fresh server snapshot with the local mirror while writes
// are still pending, and DetectConflicts counts pending writes whose target
// changed on the server after the write was captured.
//
// Every function in this package returns deep copies. Callers may keep and
// mutate their inputs without affecting the results.
package mirror
