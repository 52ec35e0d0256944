// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"sync"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/dbt"
)

// FakeRunner records every invocation and answers through Handler.
// With a nil Handler every command succeeds with exit code 0.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []dbt.CommandSpec
	Handler func(spec dbt.CommandSpec) (dbt.CommandResult, error)
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

func (f *FakeRunner) Run(_ context.Context, spec dbt.CommandSpec) (dbt.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	if f.Handler != nil {
		return f.Handler(spec)
	}

	return dbt.CommandResult{ExitCode: 0}, nil
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []dbt.CommandSpec {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]dbt.CommandSpec(nil), f.calls...)
}

// CallCount returns the number of recorded invocations.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}
