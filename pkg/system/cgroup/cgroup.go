//go:build linux

package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Version int

const (
	Unsupported Version = iota // non-Linux or no cgroup mounts
	V1                         // legacy multi-hierarchy cgroup v1
	V2                         // unified cgroup v2
	Hybrid                     // both v1 and v2 present
)

func (v Version) String() string {
	switch v {
	case V1:
		return "cgroup v1"
	case V2:
		return "cgroup v2"
	case Hybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// Mounts lists cgroup mount points found in mountinfo.
type Mounts struct {
	V2  []string
	CPU []string // v1 hierarchies carrying the cpu controller
}

func (m Mounts) version() Version {
	switch {
	case len(m.V2) > 0 && len(m.CPU) > 0:
		return Hybrid
	case len(m.V2) > 0:
		return V2
	case len(m.CPU) > 0:
		return V1
	default:
		return Unsupported
	}
}

const (
	mountinfoPath = "/proc/self/mountinfo"
	selfCgroup    = "/proc/self/cgroup"
)

// Detect returns the cgroup version of the current process.
func Detect() (Version, Mounts, error) {
	f, err := os.Open(mountinfoPath)
	if err != nil {
		return Unsupported, Mounts{}, fmt.Errorf("open mountinfo: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var (
		m  Mounts
		sc = bufio.NewScanner(f)
	)
	for sc.Scan() {
		line := sc.Text()
		// mountinfo has: <fields> - <fstype> <source> <superopts>
		sep := " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+len(sep):])
		pre := strings.Fields(line[:i])
		if len(tail) < 1 || len(pre) < 5 {
			continue
		}
		mountPoint := pre[4]

		switch tail[0] {
		case "cgroup2":
			m.V2 = append(m.V2, mountPoint)
		case "cgroup":
			if len(tail) >= 3 && hasOption(tail[2], "cpu") {
				m.CPU = append(m.CPU, mountPoint)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Unsupported, Mounts{}, fmt.Errorf("scan mountinfo: %w", err)
	}
	return m.version(), m, nil
}

func hasOption(opts, want string) bool {
	for _, o := range strings.Split(opts, ",") {
		if o == want {
			return true
		}
	}
	return false
}

// CPUQuota returns the CPU limit of the current process in cores.
// limited is false when no quota is set or it cannot be determined.
func CPUQuota() (cores float64, limited bool, err error) {
	ver, m, err := Detect()
	if err != nil {
		return 0, false, err
	}
	rel, err := selfPath(ver)
	if err != nil {
		return 0, false, err
	}

	switch ver {
	case V2, Hybrid:
		for _, mp := range m.V2 {
			if b, err := os.ReadFile(filepath.Join(mp, rel, "cpu.max")); err == nil {
				return parseCPUMax(string(b))
			}
		}
	}
	if ver == V1 || ver == Hybrid {
		for _, mp := range m.CPU {
			q, qerr := os.ReadFile(filepath.Join(mp, rel, "cpu.cfs_quota_us"))
			p, perr := os.ReadFile(filepath.Join(mp, rel, "cpu.cfs_period_us"))
			if qerr == nil && perr == nil {
				return parseCFS(string(q), string(p))
			}
		}
	}
	return 0, false, nil
}

// selfPath returns the process's cgroup path relative to the hierarchy root.
func selfPath(ver Version) (string, error) {
	b, err := os.ReadFile(selfCgroup)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", selfCgroup, err)
	}
	var v1 string
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		// hierarchy-ID:controller-list:cgroup-path
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		if parts[0] == "0" && parts[1] == "" && ver != V1 {
			return parts[2], nil
		}
		if hasOption(parts[1], "cpu") {
			v1 = parts[2]
		}
	}
	return v1, nil
}

// parseCPUMax parses a v2 cpu.max line: "<quota|max> <period>".
func parseCPUMax(s string) (float64, bool, error) {
	fs := strings.Fields(s)
	if len(fs) == 0 || fs[0] == "max" {
		return 0, false, nil
	}
	period := "100000"
	if len(fs) > 1 {
		period = fs[1]
	}
	return parseCFS(fs[0], period)
}

func parseCFS(quota, period string) (float64, bool, error) {
	q, err := strconv.ParseInt(strings.TrimSpace(quota), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cgroup: quota %q: %w", quota, err)
	}
	p, err := strconv.ParseInt(strings.TrimSpace(period), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cgroup: period %q: %w", period, err)
	}
	if q <= 0 || p <= 0 {
		return 0, false, nil
	}
	return float64(q) / float64(p), true, nil
}
