package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

const (
	DefaultDrainWindow = 20
	minDrainSamples    = 2
)

// BatteryDrainTracker computes drain rate in %/10-minutes via ordinary
// least-squares linear regression of battery_level against sample
// timestamp over the trailing window (§9 Open Question 3, resolved in
// favor of OLS over an endpoints-difference estimator since OLS is robust
// to a single noisy sample). Samples where battery_state = charging are
// excluded. Returns unknown until at least minDrainSamples remain after
// exclusion.
type BatteryDrainTracker struct {
	mu      sync.Mutex
	window  int
	samples []domain.TelemetrySample
}

func NewBatteryDrainTracker(window int) *BatteryDrainTracker {
	if window <= 0 {
		window = DefaultDrainWindow
	}
	return &BatteryDrainTracker{window: window, samples: make([]domain.TelemetrySample, 0, window)}
}

func (t *BatteryDrainTracker) Observe(s domain.TelemetrySample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, s)
	if len(t.samples) > t.window {
		t.samples = t.samples[len(t.samples)-t.window:]
	}
}

// DrainPer10Min returns the estimated drain rate and true, or (0, false)
// when unknown (no battery, still warming up, or all samples excluded).
func (t *BatteryDrainTracker) DrainPer10Min() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var xs, ys []float64
	for _, s := range t.samples {
		if s.BatteryState == domain.BatteryCharging {
			continue
		}
		if !s.HasBattery() {
			continue
		}
		xs = append(xs, float64(s.Timestamp.UnixNano()))
		ys = append(ys, s.BatteryLevel)
	}
	if len(xs) < minDrainSamples {
		return 0, false
	}

	slope, ok := olsSlope(xs, ys)
	if !ok {
		return 0, false
	}
	// slope is battery_level per nanosecond; convert to %/10min.
	const tenMinNanos = float64(10 * time.Minute)
	perTenMin := -slope * tenMinNanos * 100 // drain is positive when level falls
	if perTenMin < 0 {
		perTenMin = 0 // battery rising while not "charging" (noise) clamps to 0 drain
	}
	return perTenMin, true
}

// olsSlope fits y = a + b*x by ordinary least squares and returns b.
func olsSlope(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	if n < 2 {
		return 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 || math.IsNaN(denom) {
		return 0, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return slope, true
}
