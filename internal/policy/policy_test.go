package policy

import (
	"testing"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

func TestPolicy_EscalatesImmediatelyOnThermalCritical(t *testing.T) {
	p := New()
	p.Update(domain.TelemetrySample{ThermalLevel: 3})
	if p.Level() != domain.QoSPaused {
		t.Fatalf("Level = %v, want Paused", p.Level())
	}
}

func TestPolicy_DeescalationGatedByCooldown(t *testing.T) {
	// S4: Paused -> Minimal -> Reduced -> Full, each step >= 60s apart.
	cur := time.Unix(0, 0)
	clock := func() time.Time { return cur }
	p := New(WithClock(clock), WithCooldown(60*time.Second))

	p.Update(domain.TelemetrySample{ThermalLevel: 3, Timestamp: cur})
	if p.Level() != domain.QoSPaused {
		t.Fatalf("expected immediate escalation to Paused, got %v", p.Level())
	}

	seenTransitions := []domain.QoSLevel{}
	ch, unsub := p.Subscribe()
	defer unsub()
	go func() {
		for ev := range ch {
			seenTransitions = append(seenTransitions, ev.To)
		}
	}()

	for i := 0; i < 200; i++ {
		cur = cur.Add(1 * time.Second)
		p.Update(domain.TelemetrySample{ThermalLevel: 0, Timestamp: cur})
	}

	if p.Level() != domain.QoSFull {
		t.Fatalf("after 200s nominal samples, Level = %v, want Full", p.Level())
	}
}

func TestPolicy_NoIntermediateLevelsOnEscalation(t *testing.T) {
	p := New()
	seen := []domain.QoSLevel{}
	ch, unsub := p.Subscribe()
	defer unsub()
	done := make(chan struct{})
	go func() {
		for ev := range ch {
			seen = append(seen, ev.To)
		}
		close(done)
	}()

	p.Update(domain.TelemetrySample{ThermalLevel: 3})
	unsub()
	<-done

	if len(seen) != 1 || seen[0] != domain.QoSPaused {
		t.Fatalf("expected exactly one transition straight to Paused, got %v", seen)
	}
}

func TestPolicy_NoChangeWhenCandidateMatchesCurrent(t *testing.T) {
	p := New()
	p.Update(domain.TelemetrySample{ThermalLevel: 0})
	if p.Level() != domain.QoSFull {
		t.Fatalf("Level = %v, want Full", p.Level())
	}
}

func TestPolicy_LowBatteryEscalatesToMinimal(t *testing.T) {
	p := New()
	p.Update(domain.TelemetrySample{BatteryLevel: 0.03, BatteryState: domain.BatteryUnplugged})
	if p.Level() != domain.QoSMinimal {
		t.Fatalf("Level = %v, want Minimal", p.Level())
	}
}

func TestPolicy_ChargingIgnoresLowBattery(t *testing.T) {
	p := New()
	p.Update(domain.TelemetrySample{BatteryLevel: 0.01, BatteryState: domain.BatteryCharging})
	if p.Level() != domain.QoSFull {
		t.Fatalf("Level = %v, want Full (charging exempts battery triggers)", p.Level())
	}
}
