// Package report collects per-artifact running times into a run summary.
package report

import (
	"sort"
	"sync"

	"github.com/ja7ad/runningtime/pkg/types"
)

// Accumulator keeps results in submission order along with running totals.
// It is safe for concurrent use.
type Accumulator struct {
	mu      sync.Mutex
	results []indexed
	total   float64
	counts  map[Status]int
}

type indexed struct {
	i int
	r Result
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{counts: make(map[Status]int)}
}

// Apply records the outcome for the i-th artifact. seconds is ignored when
// err is non-nil; a zero result is Ineligible unless fixed says otherwise.
func (a *Accumulator) Apply(i int, path string, seconds float64, fixed bool, err error) Result {
	r := Result{Path: path, Seconds: types.Seconds(seconds)}
	switch {
	case err != nil:
		r.Status, r.Seconds, r.Error = Failed, 0, err.Error()
	case fixed:
		r.Status = Fixed
	case seconds == 0:
		r.Status = Ineligible
	default:
		r.Status = Measured
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, indexed{i: i, r: r})
	a.total += float64(r.Seconds)
	a.counts[r.Status]++
	return r
}

// Total returns the sum of all reported seconds.
func (a *Accumulator) Total() types.Seconds {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.Seconds(a.total)
}

// Failed reports how many artifacts failed.
func (a *Accumulator) Failed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[Failed]
}

// Summary returns the results ordered by index and the aggregates.
// Average is taken over measured and fixed results only.
func (a *Accumulator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	rs := make([]indexed, len(a.results))
	copy(rs, a.results)
	sort.SliceStable(rs, func(x, y int) bool { return rs[x].i < rs[y].i })

	s := Summary{
		Results:    make([]Result, 0, len(rs)),
		Total:      types.Seconds(a.total),
		Measured:   a.counts[Measured] + a.counts[Fixed],
		Ineligible: a.counts[Ineligible],
		Failed:     a.counts[Failed],
	}
	for _, r := range rs {
		s.Results = append(s.Results, r.r)
	}
	if s.Measured > 0 {
		s.Average = types.Seconds(a.total / float64(s.Measured))
	}
	return s
}
