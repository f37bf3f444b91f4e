package harness

import (
	"context"
	"strings"
)

// SuiteResult contains results from running a set of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Scenario string `json:"scenario"`
	Error    string `json:"error"`
}

// RunAll runs every scenario and tallies the outcome. A scenario that
// cannot be executed counts as failed. Stops early when ctx is done.
func RunAll(ctx context.Context, scenarios []*Scenario, opts ...Option) (*SuiteResult, error) {
	res := &SuiteResult{}
	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.TotalScenarios++

		result, err := Run(ctx, s, opts...)
		switch {
		case err != nil:
			res.Failed++
			res.Failures = append(res.Failures, ScenarioFailure{Scenario: s.Name, Error: err.Error()})
		case !result.Pass:
			res.Failed++
			res.Failures = append(res.Failures, ScenarioFailure{Scenario: s.Name, Error: strings.Join(result.Errors, "\n")})
		default:
			res.Passed++
		}
	}
	return res, nil
}
