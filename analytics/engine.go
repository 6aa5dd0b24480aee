// Package analytics derives dashboard aggregates from the task and project
// read models. Every method is a pure function of the slices passed in: the
// caller reads the store immediately before the call and nothing is cached
// between requests. Store failures never reach this package; the HTTP layer
// surfaces them unchanged.
package analytics

import "time"

const defaultVelocityWindowDays = 7

// Engine computes dashboard aggregates. The clock is injectable so tests can
// pin "now"; Option follows the functional-options pattern.
type Engine struct {
	now        func() time.Time
	windowDays int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithVelocityWindow sets the trailing window, in days, for velocity and
// flow snapshots. Non-positive values keep the default.
func WithVelocityWindow(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.windowDays = days
		}
	}
}

// NewEngine constructs an Engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:        time.Now,
		windowDays: defaultVelocityWindowDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return round1(num / den * 100)
}
