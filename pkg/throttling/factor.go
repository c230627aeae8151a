// Package throttling maps execution times measured on the current machine
// onto a reference low-end CPU.
//
// A Factor is the ratio (reference time) / (host time) for a fixed
// CPU-bound workload. It is derived once by a Calibrator, persisted through a
// Cache and multiplied onto every raw measurement:
//
//	normalized = raw seconds * factor
//
// Values above 1 mean the host is faster than the reference device.
package throttling

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ja7ad/runningtime/pkg/system/util"
)

// Factor is a throttling factor. The zero value is not a valid factor.
type Factor float64

// None is the factor of a host exactly as fast as the reference CPU.
const None Factor = 1

// Valid reports whether f is finite and strictly positive.
func (f Factor) Valid() bool {
	return util.Finite(float64(f)) && f > 0
}

// Normalize scales a raw measurement to reference-CPU seconds.
// The result is always non-negative.
func (f Factor) Normalize(raw time.Duration) (float64, error) {
	if !f.Valid() {
		return 0, fmt.Errorf("normalize with %v: %w", float64(f), ErrInvalidFactor)
	}
	v := util.NonNegative(raw.Seconds() * float64(f))
	if !util.Finite(v) {
		return 0, ErrNotFinite
	}
	return v, nil
}

func (f Factor) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

// ParseFactor decodes the on-disk representation of a factor. Surrounding
// whitespace is ignored; anything that is not a valid factor is an error.
func ParseFactor(s string) (Factor, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFactor, err)
	}
	f := Factor(v)
	if !f.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFactor, s)
	}
	return f, nil
}
