// Package host describes the machine a calibration ran on.
package host

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	hostinfo "github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ja7ad/runningtime/pkg/system/cgroup"
)

// Summary is a best-effort description of the host. Fields that could not
// be read are left empty.
type Summary struct {
	Hostname string  `json:"hostname" yaml:"hostname"`
	Kernel   string  `json:"kernel" yaml:"kernel"`
	OS       string  `json:"os" yaml:"os"`
	Arch     string  `json:"arch" yaml:"arch"`
	CPUModel string  `json:"cpu_model" yaml:"cpu_model"`
	CPUs     int     `json:"cpus" yaml:"cpus"`
	CPUQuota float64 `json:"cpu_quota,omitempty" yaml:"cpu_quota,omitempty"`
	MemTotal uint64  `json:"mem_total" yaml:"mem_total"`
}

// Describe collects a Summary.
func Describe(ctx context.Context) Summary {
	s := Summary{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		CPUs: runtime.NumCPU(),
	}
	if hi, err := hostinfo.InfoWithContext(ctx); err == nil {
		s.Hostname = hi.Hostname
		s.Kernel = hi.KernelVersion
		if hi.Platform != "" {
			s.OS = fmt.Sprintf("%s %s", hi.Platform, hi.PlatformVersion)
		}
	}
	if ci, err := cpu.InfoWithContext(ctx); err == nil && len(ci) > 0 {
		s.CPUModel = ci[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemTotal = vm.Total
	}
	if cores, limited, err := cgroup.CPUQuota(); err == nil && limited {
		s.CPUQuota = cores
	}
	return s
}

// CPU returns "<model> x<n>" with the cgroup quota appended when set.
func (s Summary) CPU() string {
	model := s.CPUModel
	if model == "" {
		model = "unknown CPU"
	}
	out := fmt.Sprintf("%s x%d", model, s.CPUs)
	if s.CPUQuota > 0 {
		out += fmt.Sprintf(" (quota %.2f cores)", s.CPUQuota)
	}
	return out
}

// Mem returns the total memory in GiB.
func (s Summary) Mem() string {
	return fmt.Sprintf("%.1f GiB", float64(s.MemTotal)/(1<<30))
}
