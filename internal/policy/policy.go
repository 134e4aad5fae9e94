// Package policy implements the hysteresis state machine that maps
// telemetry pressure signals to an active QoSLevel and its concrete
// inference-parameter overrides (§4.7). The state-machine shape — an
// explicit current state, an injectable clock for deterministic tests, and
// cooldown-gated de-escalation — mirrors a circuit breaker: escalation
// ("trip") is instantaneous, recovery is gradual and time-gated.
package policy

import (
	"sync"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

// Overrides is the per-level override table (§4.7).
var Overrides = map[domain.QoSLevel]domain.QoSOverride{
	domain.QoSFull:    {VisionFPSCap: 2, VisionMaxSidePx: 640, MaxTokensCap: 100, TextGenAllowed: true},
	domain.QoSReduced: {VisionFPSCap: 1, VisionMaxSidePx: 480, MaxTokensCap: 75, TextGenAllowed: true},
	domain.QoSMinimal: {VisionFPSCap: 1, VisionMaxSidePx: 320, MaxTokensCap: 50, TextGenAllowed: true},
	domain.QoSPaused:  {VisionFPSCap: 0, VisionMaxSidePx: 0, MaxTokensCap: 0, TextGenAllowed: false},
}

const DefaultCooldown = 60 * time.Second

// Policy is the RuntimePolicy state machine.
type Policy struct {
	mu       sync.Mutex
	level    domain.QoSLevel
	cooldown time.Duration
	now      func() time.Time

	lastCandidate domain.QoSLevel
	candidateSince time.Time
	haveCandidate bool

	listeners map[int]chan domain.QoSChanged
	nextID    int
}

// Option configures a Policy at construction.
type Option func(*Policy)

// WithClock overrides the time source; used in tests to drive cooldown
// transitions deterministically.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

func WithCooldown(d time.Duration) Option {
	return func(p *Policy) { p.cooldown = d }
}

func New(opts ...Option) *Policy {
	p := &Policy{
		level:     domain.QoSFull,
		cooldown:  DefaultCooldown,
		now:       time.Now,
		listeners: make(map[int]chan domain.QoSChanged),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Level returns the currently active QoSLevel.
func (p *Policy) Level() domain.QoSLevel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Override returns the concrete inference-parameter caps for the current level.
func (p *Policy) Override() domain.QoSOverride {
	p.mu.Lock()
	level := p.level
	p.mu.Unlock()
	return Overrides[level]
}

// candidateLevel picks the highest matched level from the escalation
// trigger table (§4.7); "highest" meaning most restrictive. An
// AvailableBytes of 0 means the platform gave no memory reading, and a
// BatteryState of BatteryUnknown means no battery reading; the matching
// triggers are then skipped.
func candidateLevel(s domain.TelemetrySample) domain.QoSLevel {
	notCharging := s.BatteryState != domain.BatteryCharging
	batteryKnown := s.HasBattery() && s.BatteryState != domain.BatteryUnknown
	memKnown := s.AvailableBytes > 0

	if s.ThermalLevel == 3 || (memKnown && s.AvailableBytes < 50*1024*1024) {
		return domain.QoSPaused
	}
	if s.ThermalLevel == 2 ||
		(batteryKnown && notCharging && s.BatteryLevel < 0.05) ||
		(memKnown && s.AvailableBytes < 100*1024*1024) {
		return domain.QoSMinimal
	}
	if s.ThermalLevel == 1 ||
		(batteryKnown && notCharging && s.BatteryLevel < 0.15) ||
		(memKnown && s.AvailableBytes < 200*1024*1024) ||
		s.LowPower {
		return domain.QoSReduced
	}
	return domain.QoSFull
}

// Update feeds one telemetry sample through the hysteresis state machine,
// applying escalation immediately and de-escalation one step at a time once
// the lower candidate has been continuously satisfied for the cooldown
// window.
func (p *Policy) Update(s domain.TelemetrySample) {
	candidate := candidateLevel(s)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.haveCandidate || candidate != p.lastCandidate {
		p.lastCandidate = candidate
		p.candidateSince = now
		p.haveCandidate = true
	}

	switch {
	case candidate > p.level:
		p.transition(p.level, candidate, now)
		p.candidateSince = now
	case candidate < p.level:
		if now.Sub(p.candidateSince) >= p.cooldown {
			p.transition(p.level, p.level-1, now)
			p.candidateSince = now
		}
	}
}

// transition must be called with mu held.
func (p *Policy) transition(from, to domain.QoSLevel, at time.Time) {
	p.level = to
	ev := domain.QoSChanged{From: from, To: to, At: at}
	for _, ch := range p.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of QoSChanged events and an unsubscribe func.
// Unsubscribing closes the channel; calling it again is a no-op.
func (p *Policy) Subscribe() (<-chan domain.QoSChanged, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan domain.QoSChanged, 8)
	p.listeners[id] = ch
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.listeners[id]; ok {
			delete(p.listeners, id)
			close(c)
		}
	}
}
