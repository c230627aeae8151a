package throttling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ja7ad/runningtime/pkg/system/util"
)

// DefaultReference is how long the calibration workload runs on the
// reference low-end CPU.
const DefaultReference = 1200 * time.Millisecond

// DefaultRuns is the number of benchmark runs a calibration takes the median of.
const DefaultRuns = 3

// Benchmark runs the fixed calibration workload once and reports its wall time.
type Benchmark func(ctx context.Context) (time.Duration, error)

// Calibrator derives a Factor by timing a Benchmark on the current host.
type Calibrator struct {
	bench     Benchmark
	reference time.Duration
	runs      int
	logger    *slog.Logger
}

// CalibratorOption configures a Calibrator.
type CalibratorOption func(*Calibrator)

// WithReference overrides the reference duration of the workload.
// Non-positive values are ignored.
func WithReference(d time.Duration) CalibratorOption {
	return func(c *Calibrator) {
		if d > 0 {
			c.reference = d
		}
	}
}

// WithRuns overrides the number of benchmark runs. Values < 1 are ignored.
func WithRuns(n int) CalibratorOption {
	return func(c *Calibrator) {
		if n > 0 {
			c.runs = n
		}
	}
}

// WithLogger sets the logger used for calibration progress.
func WithLogger(l *slog.Logger) CalibratorOption {
	return func(c *Calibrator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCalibrator returns a Calibrator timing bench.
func NewCalibrator(bench Benchmark, opts ...CalibratorOption) *Calibrator {
	c := &Calibrator{
		bench:     bench,
		reference: DefaultReference,
		runs:      DefaultRuns,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Reference returns the reference duration the factor is computed against.
func (c *Calibrator) Reference() time.Duration { return c.reference }

// Calibrate runs the benchmark and returns reference / median(host time).
func (c *Calibrator) Calibrate(ctx context.Context) (Factor, error) {
	if c.bench == nil {
		return 0, fmt.Errorf("%w: no benchmark", ErrCalibration)
	}

	samples := make([]time.Duration, 0, c.runs)
	for i := 0; i < c.runs; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		d, err := c.bench(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("%w: run %d: %w", ErrCalibration, i+1, err)
		}
		c.logger.Debug("calibration run", "run", i+1, "elapsed", d)
		samples = append(samples, d)
	}

	host := util.Median(samples)
	if host <= 0 {
		return 0, fmt.Errorf("%w: non-positive benchmark time %s", ErrCalibration, host)
	}
	f := Factor(util.SafeDiv(c.reference.Seconds(), host.Seconds()))
	if !f.Valid() {
		return 0, fmt.Errorf("%w: derived factor %v", ErrCalibration, float64(f))
	}

	c.logger.Info("calibrated", "host", host, "reference", c.reference, "factor", f.String())
	return f, nil
}
