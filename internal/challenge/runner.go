package challenge

import (
	"context"
	"strings"
)

// TestResult is the graded outcome of one test case.
type TestResult struct {
	Passed          bool   `json:"passed"`
	Input           string `json:"input"`
	Expected        string `json:"expectedOutput"`
	Actual          string `json:"actualOutput"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Hidden          bool   `json:"-"`
}

// Runner grades a submission against a set of test cases. The real
// implementation is a sandboxed execution engine living outside this
// repository; the room only depends on this contract.
type Runner interface {
	Run(ctx context.Context, code, language string, cases []TestCase) ([]TestResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, code, language string, cases []TestCase) ([]TestResult, error)

func (f RunnerFunc) Run(ctx context.Context, code, language string, cases []TestCase) ([]TestResult, error) {
	return f(ctx, code, language, cases)
}

// EchoRunner is the stand-in grader: a case passes when the submission
// literally embeds its expected output. Good enough to exercise the room
// lifecycle and tests; the production runner replaces it.
type EchoRunner struct{}

func (EchoRunner) Run(_ context.Context, code, _ string, cases []TestCase) ([]TestResult, error) {
	results := make([]TestResult, len(cases))
	for i, tc := range cases {
		passed := tc.Expected != "" && strings.Contains(code, tc.Expected)
		actual := ""
		if passed {
			actual = tc.Expected
		}
		results[i] = TestResult{
			Passed:          passed,
			Input:           tc.Input,
			Expected:        tc.Expected,
			Actual:          actual,
			ExecutionTimeMs: 1,
			Hidden:          tc.Hidden,
		}
	}
	return results, nil
}

// MaskHidden blanks the payload of hidden-case results so clients learn
// pass/fail but never the case itself.
func MaskHidden(results []TestResult) []TestResult {
	out := make([]TestResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].Hidden {
			out[i].Input = ""
			out[i].Expected = ""
			out[i].Actual = ""
		}
	}
	return out
}

// AllPassed reports whether every case in results passed.
func AllPassed(results []TestResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return len(results) > 0
}
