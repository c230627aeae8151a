// Package estimator reports how long a JavaScript artifact would run on a
// reference low-end CPU.
//
// An Estimator combines three collaborators:
//
//   - a Runner that decides which files are executable artifacts and times them,
//   - a Calibrator that measures the host against the reference CPU,
//   - a throttling.Cache that keeps the resulting factor across calls and processes.
//
// Estimate(path) returns 0 for files the Runner does not accept. This makes
// unsupported inputs indistinguishable from zero-cost artifacts, which is
// intended.
//
// Calibration happens when the cache is empty. Concurrent callers that all
// find it empty each calibrate and write; the last write wins. No lock is
// held across calibration.
package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ja7ad/runningtime/pkg/throttling"
)

// Runner classifies and executes artifacts.
type Runner interface {
	// Eligible reports whether path is an artifact Execute can time.
	Eligible(path string) (bool, error)
	// Execute runs the artifact once and returns its raw wall time.
	Execute(ctx context.Context, path string) (time.Duration, error)
}

// Calibrator measures the current host against the reference CPU.
type Calibrator interface {
	Calibrate(ctx context.Context) (throttling.Factor, error)
}

// Estimator normalizes artifact running time to the reference CPU.
// It is safe for concurrent use.
type Estimator struct {
	fixed      atomic.Pointer[float64]
	cache      throttling.Cache
	runner     Runner
	calibrator Calibrator
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records estimates and calibrations on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Estimator) { e.metrics = m }
}

// New returns an Estimator. cfg may be nil.
func New(cfg *Config, cache throttling.Cache, runner Runner, cal Calibrator, opts ...Option) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cache == nil || runner == nil || cal == nil {
		return nil, fmt.Errorf("%w: cache, runner and calibrator are required", ErrInvalidConfig)
	}

	e := &Estimator{
		cache:      cache,
		runner:     runner,
		calibrator: cal,
		logger:     slog.Default(),
	}
	if cfg != nil && cfg.FixedDuration != nil {
		v := *cfg.FixedDuration
		e.fixed.Store(&v)
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// SetFixedDuration replaces the fixed duration for subsequent calls.
// nil restores real measurement.
func (e *Estimator) SetFixedDuration(seconds *float64) error {
	if seconds == nil {
		e.fixed.Store(nil)
		return nil
	}
	if err := validFixed(*seconds); err != nil {
		return err
	}
	v := *seconds
	e.fixed.Store(&v)
	return nil
}

// Estimate returns the running time of the artifact at path on the
// reference CPU, in seconds.
func (e *Estimator) Estimate(ctx context.Context, path string) (float64, error) {
	if v := e.fixed.Load(); v != nil {
		e.metrics.observe(OutcomeFixed, *v)
		return *v, nil
	}

	ok, err := e.runner.Eligible(path)
	if err != nil {
		e.metrics.observe(OutcomeError, 0)
		return 0, err
	}
	if !ok {
		e.logger.Debug("skipping ineligible artifact", "path", path)
		e.metrics.observe(OutcomeIneligible, 0)
		return 0, nil
	}

	factor, err := e.Throttling(ctx)
	if err != nil {
		e.metrics.observe(OutcomeError, 0)
		return 0, err
	}

	raw, err := e.runner.Execute(ctx, path)
	if err != nil {
		e.metrics.observe(OutcomeError, 0)
		return 0, err
	}

	sec, err := factor.Normalize(raw)
	if err != nil {
		e.metrics.observe(OutcomeError, 0)
		return 0, fmt.Errorf("estimate %s: %w", path, err)
	}
	e.logger.Debug("estimated", "path", path, "raw", raw, "factor", factor.String(), "seconds", sec)
	e.metrics.observe(OutcomeMeasured, sec)
	return sec, nil
}

// Throttling returns the cached factor, calibrating and persisting one
// when the cache is empty.
func (e *Estimator) Throttling(ctx context.Context) (throttling.Factor, error) {
	if f, ok := e.cache.Read(); ok {
		e.metrics.factorInUse(float64(f))
		return f, nil
	}
	return e.Calibrate(ctx)
}

// Calibrate runs the calibration benchmark unconditionally and persists
// the result.
func (e *Estimator) Calibrate(ctx context.Context) (throttling.Factor, error) {
	f, err := e.calibrator.Calibrate(ctx)
	if err != nil {
		return 0, err
	}
	e.metrics.calibrated(float64(f))
	if err := e.cache.Write(f); err != nil {
		return 0, err
	}
	return f, nil
}
