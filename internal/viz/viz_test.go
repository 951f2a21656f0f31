package viz

import (
	"testing"
	"time"
)

type fakeLevels struct {
	level float64
	reads int
	limit int
}

func (f *fakeLevels) Level() (float64, bool) {
	f.reads++
	return f.level, f.reads <= f.limit
}

func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func TestSamplesClampedAndTerminatedWithZero(t *testing.T) {
	src := &fakeLevels{level: 5.0, limit: 20} // far above the valid range
	ch, cancel := Watch(src, time.Millisecond)
	defer cancel()

	samples := collect(ch)
	if len(samples) == 0 {
		t.Fatal("expected samples while playback is active")
	}
	for i, s := range samples {
		if s < 0 || s > 1 {
			t.Fatalf("sample %d out of range: %f", i, s)
		}
	}
	if samples[len(samples)-1] != 0 {
		t.Fatalf("sequence must end with 0, got %f", samples[len(samples)-1])
	}
}

func TestSmoothingRampsUp(t *testing.T) {
	src := &fakeLevels{level: 1.0, limit: 50}
	ch, cancel := Watch(src, time.Millisecond)
	defer cancel()

	samples := collect(ch)
	if len(samples) < 3 {
		t.Fatalf("expected several samples, got %d", len(samples))
	}
	// first sample is one smoothing step from zero
	if diff := samples[0] - 0.3; diff < -1e-9 || diff > 1e-9 {
		t.Fatalf("first sample should be 0.3, got %f", samples[0])
	}
	if samples[1] <= samples[0] {
		t.Fatal("smoothed level should rise toward a constant loud source")
	}
}

func TestNilSourceDegradesToSingleZero(t *testing.T) {
	ch, cancel := Watch(nil, time.Millisecond)
	defer cancel()

	samples := collect(ch)
	if len(samples) != 1 || samples[0] != 0 {
		t.Fatalf("degraded mode must emit a single 0, got %v", samples)
	}
}

func TestCancelStopsEmission(t *testing.T) {
	src := &fakeLevels{level: 0.5, limit: 1 << 30}
	ch, cancel := Watch(src, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	cancel()
	cancel() // safe to call twice

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed, no leaked ticker
			}
		case <-deadline:
			t.Fatal("channel did not close after cancel")
		}
	}
}
