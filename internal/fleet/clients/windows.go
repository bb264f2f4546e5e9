package clients

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var (
	// typeperf prints the sampled counter quoted, e.g. `"12.503341"`.
	winCpuPattern = regexp.MustCompile(`"(\d+[.,]\d+)"`)
	winMemPattern = regexp.MustCompile(`(?i)FreePhysicalMemory=(\d+)\s+TotalVisibleMemorySize=(\d+)`)
	winDiskFree   = regexp.MustCompile(`(?i)FreeSpace=(\d+)`)
	winDiskSize   = regexp.MustCompile(`(?i)Size=(\d+)`)
)

// WindowsCommands queries utilization with wmic and typeperf, the same
// counters the legacy monitoring scripts used on the RDP fleet.
type WindowsCommands struct{}

func (WindowsCommands) QueryCPU() string {
	return `typeperf "\Processor Information(_Total)\% Processor Time" -sc 1`
}

func (WindowsCommands) ParseCPU(output string) (float64, error) {
	m := winCpuPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, errors.New("no processor counter value in typeperf output")
	}
	return parsePercent(m[1])
}

func (WindowsCommands) QueryMemory() string {
	return `wmic OS get FreePhysicalMemory,TotalVisibleMemorySize /Value`
}

func (WindowsCommands) ParseMemory(output string) (float64, error) {
	m := winMemPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, errors.New("no memory counters in wmic output")
	}
	free, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, errors.Wrap(err, "free memory")
	}
	total, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, errors.Wrap(err, "total memory")
	}
	if total <= 0 || free > total {
		return 0, errors.Errorf("implausible memory counters free=%v total=%v", free, total)
	}
	return (total - free) / total * 100, nil
}

func (WindowsCommands) QueryDiskC() string {
	return `wmic LogicalDisk where DeviceID="C:" get Size,FreeSpace /Value`
}

func (WindowsCommands) ParseDiskC(output string) (float64, error) {
	fm := winDiskFree.FindStringSubmatch(output)
	sm := winDiskSize.FindStringSubmatch(output)
	if fm == nil || sm == nil {
		return 0, errors.New("no disk counters in wmic output")
	}
	free, err := strconv.ParseFloat(fm[1], 64)
	if err != nil {
		return 0, errors.Wrap(err, "disk free space")
	}
	size, err := strconv.ParseFloat(sm[1], 64)
	if err != nil {
		return 0, errors.Wrap(err, "disk size")
	}
	if size <= 0 || free > size {
		return 0, errors.Errorf("implausible disk counters free=%v size=%v", free, size)
	}
	return (size - free) / size * 100, nil
}
