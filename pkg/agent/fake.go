package agent

import "context"

// FakeRunner is a Runner test double
type FakeRunner struct {
	// RunFunc is the fake implementation for Run
	RunFunc func(ctx context.Context, task Task) (Result, error)
}

// Run calls RunFunc if set, otherwise returns an empty result
func (f *FakeRunner) Run(ctx context.Context, task Task) (Result, error) {
	if f.RunFunc != nil {
		return f.RunFunc(ctx, task)
	}
	return Result{}, nil
}
