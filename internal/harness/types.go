package harness

import (
	"cmp"
	"slices"

	"github.com/roach88/folio/internal/model"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Step    string `json:"step"`
	Action  string `json:"action,omitempty"`
	Outcome string `json:"outcome"`
	Intent  int64  `json:"intent,omitempty"`
	Pending int    `json:"pending"`
	Status  string `json:"status"`
}

// Label is the "step:outcome" form used by trace_order and trace_count.
func (e TraceEvent) Label() string {
	return e.Step + ":" + e.Outcome
}

// Record is the summary of one mirrored or server record.
type Record struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug,omitempty"`
}

// Summary lists the records of a snapshot by id.
type Summary struct {
	Profile  string   `json:"profile,omitempty"`
	Skills   []Record `json:"skills"`
	Projects []Record `json:"projects"`
	Posts    []Record `json:"posts"`
	Socials  []Record `json:"socials"`
}

// Summarize reduces a snapshot to ids, labels and slugs.
func Summarize(s model.Snapshot) Summary {
	var out Summary
	if s.Profile != nil {
		out.Profile = s.Profile.FullName
	}
	out.Skills = make([]Record, 0, len(s.Skills))
	for _, v := range s.Skills {
		out.Skills = append(out.Skills, Record{ID: v.ID, Label: v.Name, Slug: v.Slug})
	}
	out.Projects = make([]Record, 0, len(s.Projects))
	for _, v := range s.Projects {
		out.Projects = append(out.Projects, Record{ID: v.ID, Label: v.Title, Slug: v.Slug})
	}
	out.Posts = make([]Record, 0, len(s.Posts))
	for _, v := range s.Posts {
		out.Posts = append(out.Posts, Record{ID: v.ID, Label: v.Title, Slug: v.Slug})
	}
	out.Socials = make([]Record, 0, len(s.Socials))
	for _, v := range s.Socials {
		out.Socials = append(out.Socials, Record{ID: v.ID, Label: v.Name})
	}
	for _, records := range [][]Record{out.Skills, out.Projects, out.Posts, out.Socials} {
		slices.SortFunc(records, func(a, b Record) int { return cmp.Compare(a.ID, b.ID) })
	}
	return out
}

// Final is the state left behind by a scenario.
type Final struct {
	Status    string  `json:"status"`
	Pending   int     `json:"pending"`
	Conflicts int     `json:"conflicts"`
	Writes    int     `json:"writes"`
	Mirror    Summary `json:"mirror"`
	Backend   Summary `json:"backend"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	Final Final `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
