//go:build linux

package telemetry

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// readCPUTemp reads CPU temperature on Linux via sysfs thermal zone.
func readCPUTemp() int {
	data, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return 0
	}
	milliC, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return milliC / 1000
}

// hasBattery checks for battery presence on Linux via sysfs.
func hasBattery() bool {
	_, err := os.Stat("/sys/class/power_supply/BAT0")
	return err == nil
}

// batteryPercentage returns charge level on Linux, 0-100.
func batteryPercentage() int {
	data, err := os.ReadFile("/sys/class/power_supply/BAT0/capacity")
	if err != nil {
		return 0
	}
	pct, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return pct
}

// isBatteryCharging returns charging state on Linux.
func isBatteryCharging() bool {
	data, err := os.ReadFile("/sys/class/power_supply/BAT0/status")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "Charging"
}

// readRSSBytes reads the calling process's resident set size from
// /proc/self/statm (field 2, in pages).
func readRSSBytes() (uint64, bool) {
	f, err := os.Open("/proc/self/statm")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 {
		return 0, false
	}
	residentPages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, false
	}
	pageSize := uint64(os.Getpagesize())
	return residentPages * pageSize, true
}

// readAvailableBytes reads MemAvailable from /proc/meminfo, the kernel's own
// estimate of free + reclaimable memory (§4.5's "total free + inactive"
// fallback, already computed by the kernel on Linux).
func readAvailableBytes() (uint64, bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
