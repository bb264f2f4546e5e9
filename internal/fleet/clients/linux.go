package clients

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// `%Cpu(s):  3.1 us,  1.0 sy, ... 95.4 id, ...` — idle share after LANG=C.
	linuxIdlePattern = regexp.MustCompile(`(\d+[.,]\d+)\s*id`)
	linuxMemPattern  = regexp.MustCompile(`(?m)^Mem:\s+(\d+)\s+(\d+)`)
)

// LinuxCommands queries utilization with coreutils/procps tools. LANG=C
// pins the field layout; numeric locale variation is still tolerated by
// the shared percent parser.
type LinuxCommands struct{}

func (LinuxCommands) QueryCPU() string {
	return `LANG=C top -bn1 | head -5`
}

func (LinuxCommands) ParseCPU(output string) (float64, error) {
	m := linuxIdlePattern.FindStringSubmatch(output)
	if m == nil {
		return 0, errors.New("no idle share in top output")
	}
	idle, err := parsePercent(m[1])
	if err != nil {
		return 0, err
	}
	return 100 - idle, nil
}

func (LinuxCommands) QueryMemory() string {
	return `LANG=C free -b`
}

func (LinuxCommands) ParseMemory(output string) (float64, error) {
	m := linuxMemPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, errors.New("no Mem row in free output")
	}
	total, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, errors.Wrap(err, "total memory")
	}
	used, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, errors.Wrap(err, "used memory")
	}
	if total <= 0 || used > total {
		return 0, errors.Errorf("implausible memory counters used=%v total=%v", used, total)
	}
	return used / total * 100, nil
}

func (LinuxCommands) QueryDiskC() string {
	// Root filesystem stands in for the C drive on Linux hosts.
	return `LANG=C df -P /`
}

func (LinuxCommands) ParseDiskC(output string) (float64, error) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 || !strings.HasSuffix(fields[4], "%") {
			continue
		}
		return parsePercent(fields[4])
	}
	return 0, errors.New("no usage column in df output")
}
