//go:build !linux

package cgroup

// CPUQuota reports no limit outside Linux.
func CPUQuota() (cores float64, limited bool, err error) {
	return 0, false, nil
}
