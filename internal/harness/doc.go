// Package harness runs scripted sync scenarios against a real engine, a
// local SQLite store and the in-memory dev backend.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: offline_create_reconnect
//	description: "What this scenario validates"
//	seed: default            # or "empty"
//	steps:
//	  - do: offline
//	  - do: submit
//	    action: /dashboard/skills/new
//	    fields: { name: Rust, category: Language, proficiency: 60 }
//	    expect: queued
//	  - do: online
//	  - do: sync
//	    expect: ok
//	assertions:
//	  - type: status
//	    expect: { pending: 0 }
//	  - type: final_state
//	    table: mirror.skills
//	    where: { name: Rust }
//	    expect: { slug: rust }
//
// # Steps
//
//   - online, offline: flip engine connectivity and backend reachability together
//   - sync: one full sync pass
//   - replay: a replay pass, even with an empty outbox
//   - refresh: refresh the mirror against the current outbox
//   - submit: post a form; captured when offline, sent to the backend otherwise
//   - fail_writes: make the backend reject the next count writes with status
//
// # Assertion Types
//
//   - trace_contains: a step with the given step, action and outcome ran
//   - trace_order: step labels ("submit:queued") appear in order
//   - trace_count: a step label appears exactly count times
//   - final_state: a record of mirror.<collection> or backend.<collection> matches
//   - status: the final status projection matches (subset)
//   - outbox: the outbox holds exactly count intents
//   - backend_writes: the backend applied exactly count writes
//
// # Deterministic Testing
//
// Every run uses a fresh database, sequential idempotency keys and
// deterministic client and server clocks, so traces are stable across runs
// and can be compared against golden files.
package harness
