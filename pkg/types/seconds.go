package types

import (
	"fmt"
	"math"
	"time"
)

// Seconds is a float64 wrapper representing a running time in seconds.
type Seconds float64

// FromDuration converts d to Seconds.
func FromDuration(d time.Duration) Seconds { return Seconds(d.Seconds()) }

// Humanized returns a short human-readable form, rounding up:
// milliseconds below one second, tenths of a second above.
func (s Seconds) Humanized() string {
	v := float64(s)
	switch {
	case math.IsNaN(v) || v <= 0:
		return "0 ms"
	case v >= 1:
		return fmt.Sprintf("%.1f s", math.Ceil(v*10)/10)
	default:
		return fmt.Sprintf("%d ms", int64(math.Ceil(v*1000)))
	}
}

// Milliseconds returns the value in milliseconds.
func (s Seconds) Milliseconds() float64 { return float64(s) * 1000 }

// Duration converts s back to a time.Duration, truncating below a nanosecond.
func (s Seconds) Duration() time.Duration { return time.Duration(float64(s) * float64(time.Second)) }
