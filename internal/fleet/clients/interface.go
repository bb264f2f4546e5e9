package clients

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ResourceCommands is the per-OS-family command dialect for reading
// CPU, memory, and system-drive utilization over an SSH session. Each
// Query method returns the remote command line; the matching Parse
// method turns its raw text output into a percentage in [0,100].
type ResourceCommands interface {
	QueryCPU() string
	ParseCPU(output string) (float64, error)

	QueryMemory() string
	ParseMemory(output string) (float64, error)

	QueryDiskC() string
	ParseDiskC(output string) (float64, error)
}

// ForFamily selects the dialect for an inventory os_family value.
func ForFamily(family string) (ResourceCommands, error) {
	switch strings.ToLower(strings.TrimSpace(family)) {
	case "windows", "":
		return &WindowsCommands{}, nil
	case "linux":
		return &LinuxCommands{}, nil
	default:
		return nil, errors.Errorf("unsupported os family %q", family)
	}
}

// parsePercent normalizes a numeric token into a percentage. Remote
// shells emit locale-dependent output, so comma decimal separators and
// trailing unit marks are tolerated. Values outside [0,100] fail closed.
func parsePercent(token string) (float64, error) {
	s := strings.TrimSpace(token)
	s = strings.TrimRight(s, "%")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, errors.New("empty numeric value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %q", token)
	}
	if v < 0 || v > 100 {
		return 0, errors.Errorf("value %.2f out of percentage range", v)
	}
	return v, nil
}
