package estimator

import (
	"errors"
	"fmt"

	"github.com/ja7ad/runningtime/pkg/system/util"
)

// ErrInvalidConfig indicates a Config that cannot be used.
var ErrInvalidConfig = errors.New("estimator: invalid config")

// Config holds estimator settings.
//
// FixedDuration, when set, is returned by every Estimate call as-is, in
// seconds, without touching the artifact, the cache or the calibrator.
// It exists for deterministic tests and debugging.
type Config struct {
	FixedDuration *float64
}

// Validate rejects negative or non-finite fixed durations.
func (c *Config) Validate() error {
	if c == nil || c.FixedDuration == nil {
		return nil
	}
	return validFixed(*c.FixedDuration)
}

func validFixed(v float64) error {
	if !util.Finite(v) || v < 0 {
		return fmt.Errorf("%w: fixed duration %v must be a non-negative number", ErrInvalidConfig, v)
	}
	return nil
}

// Fixed is a convenience for building a Config.FixedDuration.
func Fixed(seconds float64) *float64 { return &seconds }
