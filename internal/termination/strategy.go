package termination

import "context"

// Strategy is one teardown step. Attempt returns nil when the step did
// its work (or had nothing to do) and an error when it tried and failed.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context) error
}

type strategyFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (s strategyFunc) Name() string                      { return s.name }
func (s strategyFunc) Attempt(ctx context.Context) error { return s.fn(ctx) }
