package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/folio/internal/backend"
	"github.com/roach88/folio/internal/engine"
	"github.com/roach88/folio/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Label(), event.Action)
		}
	}

	return buf.String()
}

// assertTraceContains checks that a step with the given kind, action and
// outcome ran. Empty action or outcome match anything.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Step != assertion.Step {
			continue
		}
		if assertion.Action != "" && event.Action != assertion.Action {
			continue
		}
		if assertion.Outcome != "" && event.Outcome != assertion.Outcome {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("step %s action %q outcome %q", assertion.Step, assertion.Action, assertion.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if labels appear in the specified order.
// Labels don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Labels) && event.Label() == assertion.Labels[next] {
			next++
		}
	}
	if next == len(assertion.Labels) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("labels in order: %v", assertion.Labels),
		Actual:   fmt.Sprintf("%s not found after %v", assertion.Labels[next], assertion.Labels[:next]),
		Trace:    trace,
	}
}

// assertTraceCount checks if the label appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Label() == assertion.Label {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Label),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState finds exactly one record of the table matching Where and
// checks Expect against it with subset semantics. Field names are the
// records' JSON names.
func assertFinalState(ctx context.Context, actx *AssertionContext, assertion Assertion) error {
	side, collection, _ := splitTable(assertion.Table)

	var snap model.Snapshot
	switch side {
	case "mirror":
		env, err := actx.Engine.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("read mirror: %w", err)
		}
		if env == nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("records in %s", assertion.Table),
				Actual:   "no mirror has been written",
			}
		}
		snap = env.Snapshot
	case "backend":
		snap = actx.Backend.Snapshot()
	}

	rows, err := tableRows(snap, collection)
	if err != nil {
		return err
	}

	where := normalize(assertion.Where)
	var matches []map[string]any
	for _, row := range rows {
		if matchArgs(row, where) {
			matches = append(matches, row)
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(matches) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record in %s where %s", assertion.Table, whereDesc),
			Actual:   "record not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one record in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple records matched (assertion is ambiguous)",
		}
	}

	actual := matches[0]
	expect := normalize(assertion.Expect)
	for _, key := range sortedKeys(expect) {
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("fields present: %v", sortedKeys(actual)),
			}
		}
		if !valuesEqual(actualValue, expect[key]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, expect[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, actualValue),
			}
		}
	}
	return nil
}

func assertStatus(st engine.Status, assertion Assertion) error {
	actual := normalize(st)
	expect := normalize(assertion.Expect)
	for _, key := range sortedKeys(expect) {
		if !valuesEqual(actual[key], expect[key]) {
			return &AssertionError{
				Type:     AssertStatus,
				Expected: fmt.Sprintf("%s = %v", key, expect[key]),
				Actual:   fmt.Sprintf("%s = %v", key, actual[key]),
			}
		}
	}
	return nil
}

func assertCount(kind string, actual, expected int) error {
	if actual != expected {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d", expected),
			Actual:   fmt.Sprintf("%d", actual),
		}
	}
	return nil
}

func splitTable(table string) (side, collection string, ok bool) {
	return strings.Cut(table, ".")
}

// tableRows returns the records of one collection as JSON objects.
func tableRows(s model.Snapshot, collection string) ([]map[string]any, error) {
	var v any
	switch collection {
	case "profile":
		if s.Profile == nil {
			return nil, nil
		}
		v = []*model.Profile{s.Profile}
	case "skills":
		v = s.Skills
	case "projects":
		v = s.Projects
	case "posts":
		v = s.Posts
	case "socials":
		v = s.Socials
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", collection, err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return rows, nil
}

// normalize round-trips v through JSON so YAML ints and JSON numbers
// compare equal.
func normalize(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// matchArgs checks if actual contains all expected keys (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two normalized values for equality.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Engine  *engine.Engine
	Backend *backend.Server
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Engine == nil || actx.Backend == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires an engine and a backend", i)
			} else {
				err = assertFinalState(actx.Ctx, actx, assertion)
			}
		case AssertStatus:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: status requires an engine", i)
			} else {
				err = assertStatus(actx.Engine.Status(), assertion)
			}
		case AssertOutbox:
			err = assertCount(AssertOutbox, result.Final.Pending, assertion.Count)
		case AssertBackendWrites:
			err = assertCount(AssertBackendWrites, result.Final.Writes, assertion.Count)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
