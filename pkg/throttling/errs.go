package throttling

import "errors"

var (
	// ErrInvalidFactor indicates a factor that is zero, negative, NaN or infinite.
	ErrInvalidFactor = errors.New("throttling: invalid factor")

	// ErrCacheWrite indicates that the durable record could not be written.
	ErrCacheWrite = errors.New("throttling: cache write failed")

	// ErrCalibration indicates that the calibration benchmark failed or
	// produced a measurement no factor can be derived from.
	ErrCalibration = errors.New("throttling: calibration failed")

	// ErrNotFinite indicates that normalizing a measurement overflowed.
	ErrNotFinite = errors.New("throttling: normalized time is not finite")
)
