package estimator

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/runningtime/pkg/script"
	"github.com/ja7ad/runningtime/pkg/throttling"
)

const bundle = "/dist/index.js"

type fakeRunner struct {
	eligible map[string]bool
	raw      time.Duration
	execErr  error
	checkErr error

	checks atomic.Int32
	execs  atomic.Int32
}

func (r *fakeRunner) Eligible(path string) (bool, error) {
	r.checks.Add(1)
	return r.eligible[path], r.checkErr
}

func (r *fakeRunner) Execute(context.Context, string) (time.Duration, error) {
	r.execs.Add(1)
	return r.raw, r.execErr
}

type fakeCalibrator struct {
	factor throttling.Factor
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (c *fakeCalibrator) Calibrate(context.Context) (throttling.Factor, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.factor, c.err
}

type fixture struct {
	fs     afero.Fs
	cache  *throttling.DiskCache
	runner *fakeRunner
	cal    *fakeCalibrator
	est    *Estimator
}

func newFixture(t *testing.T, cfg *Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		fs:     afero.NewMemMapFs(),
		runner: &fakeRunner{eligible: map[string]bool{bundle: true}, raw: 50 * time.Millisecond},
		cal:    &fakeCalibrator{factor: 4},
	}
	f.cache = throttling.NewDiskCache(f.fs, "/cache")
	est, err := New(cfg, f.cache, f.runner, f.cal, opts...)
	require.NoError(t, err)
	f.est = est
	return f
}

func TestNew_Validation(t *testing.T) {
	cache := throttling.NewMemoryCache()
	runner := &fakeRunner{}
	cal := &fakeCalibrator{factor: 1}

	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := New(&Config{FixedDuration: Fixed(v)}, cache, runner, cal)
		require.ErrorIs(t, err, ErrInvalidConfig, "fixed=%v", v)
	}

	_, err := New(nil, nil, runner, cal)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(nil, cache, nil, cal)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(nil, cache, runner, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{FixedDuration: Fixed(0)}, cache, runner, cal)
	require.NoError(t, err)
}

func TestEstimate_IneligibleIsZero(t *testing.T) {
	f := newFixture(t, nil)

	for _, p := range []string{"/a.jpg", "/styles.css", "/missing.js"} {
		got, err := f.est.Estimate(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, 0.0, got, p)
	}
	assert.Equal(t, int32(0), f.cal.calls.Load(), "ineligible input must not calibrate")
	assert.Equal(t, int32(0), f.runner.execs.Load())
}

func TestEstimate_FirstCallCalibrates(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.est.Estimate(context.Background(), bundle)
	require.NoError(t, err)
	assert.Greater(t, got, 0.0)
	// 50ms on the host, 4x slower reference
	assert.InDelta(t, 0.2, got, 1e-9)
	assert.Equal(t, int32(1), f.cal.calls.Load())

	cached, ok := f.cache.Read()
	require.True(t, ok)
	assert.Equal(t, throttling.Factor(4), cached)

	b, err := afero.ReadFile(f.fs, f.cache.Path())
	require.NoError(t, err)
	assert.Equal(t, "4\n", string(b))
}

func TestEstimate_CalibratesOnce(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 5; i++ {
		_, err := f.est.Estimate(context.Background(), bundle)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.cal.calls.Load())
	assert.Equal(t, int32(5), f.runner.execs.Load())
}

func TestEstimate_UsesDurableFactor(t *testing.T) {
	f := newFixture(t, nil)
	// written by an earlier process
	require.NoError(t, throttling.NewDiskCache(f.fs, "/cache").Write(10))

	got, err := f.est.Estimate(context.Background(), bundle)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)
	assert.Equal(t, int32(0), f.cal.calls.Load())
}

func TestEstimate_ClearRereadsDisk(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.cache.Write(2))
	f.cache.Clear()

	got, err := f.est.Estimate(context.Background(), bundle)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, got, 1e-9)
	assert.Equal(t, int32(0), f.cal.calls.Load(), "clear must not force recalibration")
}

func TestEstimate_FixedDurationWins(t *testing.T) {
	f := newFixture(t, &Config{FixedDuration: Fixed(1)})
	ctx := context.Background()

	// empty cache
	got, err := f.est.Estimate(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	// populated cache with a large factor
	require.NoError(t, f.cache.Write(100))
	got, err = f.est.Estimate(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	// in-memory state cleared
	f.cache.Clear()
	got, err = f.est.Estimate(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	// even for inputs that would be ineligible
	got, err = f.est.Estimate(ctx, "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	assert.Equal(t, int32(0), f.runner.checks.Load(), "fixed duration must not touch the artifact")
	assert.Equal(t, int32(0), f.runner.execs.Load())
	assert.Equal(t, int32(0), f.cal.calls.Load())

	cached, ok := f.cache.Read()
	require.True(t, ok)
	assert.Equal(t, throttling.Factor(100), cached, "fixed duration must not write the cache")
}

func TestEstimate_FixedDurationDoesNotWriteEmptyCache(t *testing.T) {
	f := newFixture(t, &Config{FixedDuration: Fixed(0.25)})

	got, err := f.est.Estimate(context.Background(), bundle)
	require.NoError(t, err)
	assert.Equal(t, 0.25, got)

	exists, err := afero.Exists(f.fs, f.cache.Path())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetFixedDuration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.est.SetFixedDuration(Fixed(3)))
	got, err := f.est.Estimate(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	require.NoError(t, f.est.SetFixedDuration(nil))
	got, err = f.est.Estimate(ctx, bundle)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got, 1e-9)

	require.ErrorIs(t, f.est.SetFixedDuration(Fixed(-2)), ErrInvalidConfig)
}

func TestEstimate_CacheWriteFailure(t *testing.T) {
	runner := &fakeRunner{eligible: map[string]bool{bundle: true}, raw: time.Millisecond}
	cal := &fakeCalibrator{factor: 3}
	cache := throttling.NewDiskCache(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/cache")
	est, err := New(nil, cache, runner, cal)
	require.NoError(t, err)

	_, err = est.Estimate(context.Background(), bundle)
	require.ErrorIs(t, err, throttling.ErrCacheWrite)
	assert.Equal(t, int32(0), runner.execs.Load())
}

func TestEstimate_CalibrationFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.cal.err = throttling.ErrCalibration

	_, err := f.est.Estimate(context.Background(), bundle)
	require.ErrorIs(t, err, throttling.ErrCalibration)

	_, ok := f.cache.Read()
	assert.False(t, ok)
}

func TestEstimate_InvalidCalibratedFactor(t *testing.T) {
	f := newFixture(t, nil)
	f.cal.factor = 0

	_, err := f.est.Estimate(context.Background(), bundle)
	require.ErrorIs(t, err, throttling.ErrInvalidFactor)
}

func TestEstimate_ExecutionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.execErr = script.ErrExecution

	got, err := f.est.Estimate(context.Background(), bundle)
	require.ErrorIs(t, err, script.ErrExecution)
	assert.Equal(t, 0.0, got)
}

func TestEstimate_EligibilityError(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.checkErr = script.ErrUnreadable

	_, err := f.est.Estimate(context.Background(), bundle)
	require.ErrorIs(t, err, script.ErrUnreadable)
	assert.Equal(t, int32(0), f.cal.calls.Load())
}

func TestEstimate_ConcurrentFixed(t *testing.T) {
	f := newFixture(t, &Config{FixedDuration: Fixed(1)})
	const n = 16

	results := make([]float64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.est.Estimate(context.Background(), bundle)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	require.Len(t, results, n)
	for i, v := range results {
		assert.Equal(t, 1.0, v, "call %d", i)
	}
}

func TestEstimate_ConcurrentFirstCalibration(t *testing.T) {
	f := newFixture(t, nil)
	f.cal.delay = 10 * time.Millisecond
	const n = 8

	results := make([]float64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.est.Estimate(context.Background(), bundle)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		assert.InDelta(t, 0.2, v, 1e-9, "call %d", i)
	}
	calls := f.cal.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(n))
	t.Logf("%d concurrent callers ran %d calibrations", n, calls)

	cached, ok := f.cache.Read()
	require.True(t, ok)
	assert.Equal(t, throttling.Factor(4), cached)
}

func TestCalibrate_Forces(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.cache.Write(9))

	got, err := f.est.Calibrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, throttling.Factor(4), got)
	assert.Equal(t, int32(1), f.cal.calls.Load())

	cached, ok := f.cache.Read()
	require.True(t, ok)
	assert.Equal(t, throttling.Factor(4), cached)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, nil, WithMetrics(m))
	ctx := context.Background()

	_, err := f.est.Estimate(ctx, bundle)
	require.NoError(t, err)
	_, err = f.est.Estimate(ctx, "/a.jpg")
	require.NoError(t, err)
	require.NoError(t, f.est.SetFixedDuration(Fixed(1)))
	_, err = f.est.Estimate(ctx, bundle)
	require.NoError(t, err)
	require.NoError(t, f.est.SetFixedDuration(nil))
	f.runner.execErr = script.ErrExecution
	_, err = f.est.Estimate(ctx, bundle)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.estimates.WithLabelValues(OutcomeMeasured)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.estimates.WithLabelValues(OutcomeIneligible)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.estimates.WithLabelValues(OutcomeFixed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.estimates.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calibrations))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.factor))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observe(OutcomeMeasured, 1)
		m.calibrated(2)
		m.factorInUse(2)
	})
}

func TestEstimate_RealRunner(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the calibration workload")
	}
	runner := script.NewJSRunner()
	cal := throttling.NewCalibrator(runner.Benchmark, throttling.WithRuns(1))
	cache := throttling.NewDiskCache(nil, t.TempDir())

	est, err := New(nil, cache, runner, cal)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	got, err := est.Estimate(ctx, filepath.Join("..", "script", "testdata", "idgen.mjs"))
	require.NoError(t, err)
	assert.Greater(t, got, 0.0)

	f, ok := cache.Read()
	require.True(t, ok)
	t.Logf("factor %s, idgen.mjs %.4fs on the reference CPU", f, got)

	got, err = est.Estimate(ctx, "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	_, err = est.Estimate(ctx, filepath.Join("..", "script", "testdata", "throws.js"))
	require.True(t, errors.Is(err, script.ErrExecution))
}
