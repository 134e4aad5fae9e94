package metrics

import "testing"

func TestNew_RegistersEveryCollector(t *testing.T) {
	r := New()

	r.InferenceLatency.WithLabelValues("text").Observe(1.5)
	r.InferenceTokens.WithLabelValues("text").Add(42)
	r.InferenceErrors.WithLabelValues("text", "generation").Inc()
	r.QoSLevel.Set(1)
	r.QoSTransitions.WithLabelValues("reduced").Inc()
	r.BudgetViolations.WithLabelValues("p95_latency", "true").Inc()
	r.FramesEnqueued.Inc()
	r.FramesDropped.Inc()
	r.SchedulerQueueDepth.WithLabelValues("vision").Set(1)
	r.ThermalLevel.Set(2)
	r.BatteryDrain.Set(1.2)
	r.RSSBytes.Set(256 << 20)
	r.AvailableBytes.Set(2 << 30)
	r.HealthCheckStatus.WithLabelValues("modelmanager").Set(1)

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"edgeveda_inference_latency_seconds",
		"edgeveda_inference_tokens_total",
		"edgeveda_inference_errors_total",
		"edgeveda_qos_level",
		"edgeveda_qos_transitions_total",
		"edgeveda_budget_violations_total",
		"edgeveda_frames_enqueued_total",
		"edgeveda_frames_dropped_total",
		"edgeveda_scheduler_workload_active",
		"edgeveda_thermal_level",
		"edgeveda_battery_drain_percent_per_10min",
		"edgeveda_process_rss_bytes",
		"edgeveda_system_available_bytes",
		"edgeveda_health_check_status",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestNew_IsolatedPerInstance(t *testing.T) {
	a := New()
	b := New()

	a.FramesDropped.Inc()

	familiesB, err := b.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, f := range familiesB {
		if f.GetName() == "edgeveda_frames_dropped_total" {
			for _, m := range f.GetMetric() {
				if m.GetCounter().GetValue() != 0 {
					t.Fatal("second Registry instance should not see the first instance's writes")
				}
			}
		}
	}
}
