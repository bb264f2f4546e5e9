package clients

import (
	"math"
	"testing"
)

const typeperfOutput = `
"(PDH-CSV 4.0)","\\WIN-RDP07\Processor Information(_Total)\% Processor Time"
"02/14/2026 09:30:01.000","12.503341"
The command completed successfully.
`

const typeperfCommaOutput = `
"(PDH-CSV 4.0)","\\WIN-RDP08\Processor Information(_Total)\% Processor Time"
"14.02.2026 09:30:01.000","12,503341"
Der Befehl wurde erfolgreich ausgefuehrt.
`

const wmicMemOutput = "\r\n\r\nFreePhysicalMemory=4803476\r\nTotalVisibleMemorySize=8005792\r\n\r\n"

const wmicDiskOutput = "\r\n\r\nFreeSpace=53687091200\r\nSize=246290604032\r\n\r\n"

func TestWindowsParseCPU(t *testing.T) {
	var w WindowsCommands

	got, err := w.ParseCPU(typeperfOutput)
	if err != nil {
		t.Fatalf("ParseCPU: %v", err)
	}
	if math.Abs(got-12.503341) > 1e-9 {
		t.Errorf("ParseCPU = %v, want 12.503341", got)
	}
}

func TestWindowsParseCPUCommaDecimal(t *testing.T) {
	var w WindowsCommands

	got, err := w.ParseCPU(typeperfCommaOutput)
	if err != nil {
		t.Fatalf("ParseCPU with comma decimal: %v", err)
	}
	if math.Abs(got-12.503341) > 1e-9 {
		t.Errorf("ParseCPU = %v, want 12.503341", got)
	}
}

func TestWindowsParseCPUFailsClosed(t *testing.T) {
	var w WindowsCommands
	for name, output := range map[string]string{
		"empty":       "",
		"no counter":  "The command completed successfully.",
		"bare number": "99.5",
	} {
		if _, err := w.ParseCPU(output); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestWindowsParseMemory(t *testing.T) {
	var w WindowsCommands

	got, err := w.ParseMemory(wmicMemOutput)
	if err != nil {
		t.Fatalf("ParseMemory: %v", err)
	}
	want := (8005792.0 - 4803476.0) / 8005792.0 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ParseMemory = %v, want %v", got, want)
	}
}

func TestWindowsParseMemoryImplausible(t *testing.T) {
	var w WindowsCommands
	// free greater than total fails closed
	if _, err := w.ParseMemory("FreePhysicalMemory=9000000\nTotalVisibleMemorySize=8005792"); err == nil {
		t.Error("expected error for free > total")
	}
}

func TestWindowsParseDiskC(t *testing.T) {
	var w WindowsCommands

	got, err := w.ParseDiskC(wmicDiskOutput)
	if err != nil {
		t.Fatalf("ParseDiskC: %v", err)
	}
	want := (246290604032.0 - 53687091200.0) / 246290604032.0 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ParseDiskC = %v, want %v", got, want)
	}
}

const topOutput = `top - 09:30:01 up 41 days,  2:11,  1 user,  load average: 0.52, 0.58, 0.59
Tasks: 213 total,   1 running, 212 sleeping,   0 stopped,   0 zombie
%Cpu(s):  3.1 us,  1.0 sy,  0.0 ni, 95.4 id,  0.4 wa,  0.0 hi,  0.1 si,  0.0 st
MiB Mem :  15886.4 total,   1204.2 free,   8123.0 used,   6559.2 buff/cache
`

const freeOutput = `              total        used        free      shared  buff/cache   available
Mem:    16657154048  8518369280  1262485504   268435456  6876299264  7545942016
Swap:    2147479552           0  2147479552
`

const dfOutput = `Filesystem     1024-blocks      Used Available Capacity Mounted on
/dev/sda2        240234688 187383057  40581023      83% /
`

func TestLinuxParseCPU(t *testing.T) {
	var l LinuxCommands

	got, err := l.ParseCPU(topOutput)
	if err != nil {
		t.Fatalf("ParseCPU: %v", err)
	}
	if math.Abs(got-4.6) > 1e-6 {
		t.Errorf("ParseCPU = %v, want 4.6", got)
	}
}

func TestLinuxParseMemory(t *testing.T) {
	var l LinuxCommands

	got, err := l.ParseMemory(freeOutput)
	if err != nil {
		t.Fatalf("ParseMemory: %v", err)
	}
	want := 8518369280.0 / 16657154048.0 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ParseMemory = %v, want %v", got, want)
	}
}

func TestLinuxParseDiskC(t *testing.T) {
	var l LinuxCommands

	got, err := l.ParseDiskC(dfOutput)
	if err != nil {
		t.Fatalf("ParseDiskC: %v", err)
	}
	if got != 83 {
		t.Errorf("ParseDiskC = %v, want 83", got)
	}
}

func TestLinuxParseFailsClosed(t *testing.T) {
	var l LinuxCommands
	if _, err := l.ParseCPU("no cpu line here"); err == nil {
		t.Error("expected ParseCPU error")
	}
	if _, err := l.ParseMemory("Swap: 0 0 0"); err == nil {
		t.Error("expected ParseMemory error")
	}
	if _, err := l.ParseDiskC("Filesystem Used Available"); err == nil {
		t.Error("expected ParseDiskC error")
	}
}

func TestForFamily(t *testing.T) {
	if _, err := ForFamily("windows"); err != nil {
		t.Errorf("windows: %v", err)
	}
	if _, err := ForFamily("Linux"); err != nil {
		t.Errorf("linux: %v", err)
	}
	if _, err := ForFamily("plan9"); err == nil {
		t.Error("expected error for unsupported family")
	}
}

func TestParsePercentRange(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"42.5", 42.5, false},
		{"42,5", 42.5, false},
		{" 83% ", 83, false},
		{"0", 0, false},
		{"100", 100, false},
		{"100.01", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := parsePercent(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parsePercent(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePercent(%q): %v", tc.in, err)
			continue
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("parsePercent(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
