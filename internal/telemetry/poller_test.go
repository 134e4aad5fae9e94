package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestPoller_PollDoesNotPanic(t *testing.T) {
	p := New(10 * time.Millisecond)
	s := p.Poll()
	if s.ThermalLevel < 0 || s.ThermalLevel > 3 {
		t.Fatalf("ThermalLevel = %d, out of [0,3]", s.ThermalLevel)
	}
}

func TestPoller_SubscribeReceivesSamples(t *testing.T) {
	p := New(5 * time.Millisecond)
	ch, unsub := p.Subscribe()
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	select {
	case <-ch:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected at least one sample")
	}
}

func TestBucketThermalLevel(t *testing.T) {
	cases := []struct {
		celsius int
		want    int
	}{
		{0, 0}, {50, 0}, {72, 1}, {85, 2}, {95, 3},
	}
	for _, c := range cases {
		if got := bucketThermalLevel(c.celsius); got != c.want {
			t.Errorf("bucketThermalLevel(%d) = %d, want %d", c.celsius, got, c.want)
		}
	}
}
