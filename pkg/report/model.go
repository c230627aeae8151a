package report

import "github.com/ja7ad/runningtime/pkg/types"

// Status classifies one artifact's outcome.
type Status string

const (
	Measured   Status = "measured"
	Ineligible Status = "ineligible"
	Fixed      Status = "fixed"
	Failed     Status = "failed"
)

// Result is the outcome of estimating one artifact.
type Result struct {
	Path    string        `json:"path" yaml:"path"`
	Seconds types.Seconds `json:"seconds" yaml:"seconds"`
	Status  Status        `json:"status" yaml:"status"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary aggregates all results of a run.
type Summary struct {
	Results    []Result      `json:"results" yaml:"results"`
	Total      types.Seconds `json:"total_seconds" yaml:"total_seconds"`
	Average    types.Seconds `json:"average_seconds" yaml:"average_seconds"`
	Measured   int           `json:"measured" yaml:"measured"`
	Ineligible int           `json:"ineligible" yaml:"ineligible"`
	Failed     int           `json:"failed" yaml:"failed"`
	Throttling float64       `json:"throttling_factor,omitempty" yaml:"throttling_factor,omitempty"`
}
