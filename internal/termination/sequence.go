package termination

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-agent-platform/internal/audit"
)

const defaultStrategyTimeout = 3 * time.Second

// Result records one strategy outcome.
type Result struct {
	Strategy string
	Err      error
}

// Sequence runs a teardown cascade to completion. A failing, hanging, or
// panicking strategy never prevents the ones after it from running.
type Sequence struct {
	strategies []Strategy
	audit      *audit.Service
	log        *slog.Logger
	timeout    time.Duration

	sessionID      string
	providerCallID string
}

func NewSequence(target Target, auditSvc *audit.Service, log *slog.Logger, sessionID, providerCallID string) *Sequence {
	return &Sequence{
		strategies:     Strategies(target),
		audit:          auditSvc,
		log:            log,
		timeout:        defaultStrategyTimeout,
		sessionID:      sessionID,
		providerCallID: providerCallID,
	}
}

// Run executes every strategy in order and returns all outcomes. The
// parent context bounds the whole run; each strategy additionally gets
// its own timeout so one stuck host call cannot eat the full budget.
func (s *Sequence) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.strategies))
	for _, strat := range s.strategies {
		err := s.attempt(ctx, strat)
		results = append(results, Result{Strategy: strat.Name(), Err: err})

		outcome := "ok"
		if err != nil {
			outcome = "failed: " + err.Error()
			s.log.Warn("termination strategy failed", "strategy", strat.Name(), "err", err)
		}
		if s.audit != nil {
			if aerr := s.audit.LogTerminationAttempt(ctx, s.sessionID, s.providerCallID, strat.Name(), outcome); aerr != nil {
				s.log.Warn("termination audit write failed", "strategy", strat.Name(), "err", aerr)
			}
		}
	}
	return results
}

// attempt bounds a single strategy. The strategy runs on its own
// goroutine so one that ignores its context cannot stall the cascade; a
// late result is discarded.
func (s *Sequence) attempt(ctx context.Context, strat Strategy) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- strat.Attempt(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return fmt.Errorf("strategy timed out: %w", attemptCtx.Err())
	}
}
