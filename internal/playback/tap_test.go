package playback

import (
	"testing"
)

// toneStreamer emits a constant-amplitude signal for a fixed number of
// samples, then reports exhaustion like a finished track.
type toneStreamer struct {
	amp       float64
	remaining int
}

func (s *toneStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.remaining <= 0 {
		return 0, false
	}
	n := len(samples)
	if n > s.remaining {
		n = s.remaining
	}
	for i := 0; i < n; i++ {
		samples[i][0] = s.amp
		samples[i][1] = s.amp
	}
	s.remaining -= n
	return n, true
}

func (s *toneStreamer) Err() error { return nil }

func TestTapMeasuresLoudnessPassThrough(t *testing.T) {
	tap := NewTap()
	tapped := tap.Attach(&toneStreamer{amp: 0.5, remaining: 4096})

	buf := make([][2]float64, 512)
	n, ok := tapped.Stream(buf)
	if !ok || n != 512 {
		t.Fatalf("stream: n=%d ok=%v", n, ok)
	}

	// signal must be untouched
	for i := 0; i < n; i++ {
		if buf[i][0] != 0.5 || buf[i][1] != 0.5 {
			t.Fatalf("sample %d modified: %v", i, buf[i])
		}
	}

	level, active := tap.Level()
	if !active {
		t.Fatal("tap should report active playback")
	}
	// RMS of a constant 0.5 signal is 0.5
	if level < 0.49 || level > 0.51 {
		t.Fatalf("unexpected rms level: %f", level)
	}
}

func TestTapZeroesWhenSourceEnds(t *testing.T) {
	tap := NewTap()
	tapped := tap.Attach(&toneStreamer{amp: 0.5, remaining: 100})

	buf := make([][2]float64, 512)
	tapped.Stream(buf) // drains the source and hits the end
	if _, ok := tapped.Stream(buf); ok {
		t.Fatal("source should be exhausted")
	}

	level, active := tap.Level()
	if active {
		t.Fatal("tap must go inactive when playback ends")
	}
	if level != 0 {
		t.Fatalf("level must reset to 0, got %f", level)
	}
}

func TestTapReattachResets(t *testing.T) {
	tap := NewTap()
	tapped := tap.Attach(&toneStreamer{amp: 0.8, remaining: 512})
	tapped.Stream(make([][2]float64, 512))
	tapped.Stream(make([][2]float64, 512)) // exhaust

	tap.Attach(&toneStreamer{amp: 0.1, remaining: 512})
	level, active := tap.Level()
	if !active {
		t.Fatal("re-armed tap should be active")
	}
	if level != 0 {
		t.Fatalf("re-armed tap should start at 0, got %f", level)
	}
}

func TestUnattachedTapIsInert(t *testing.T) {
	tap := NewTap()
	if n, ok := tap.Stream(make([][2]float64, 16)); n != 0 || ok {
		t.Fatal("unattached tap must not produce samples")
	}
	if level, active := tap.Level(); level != 0 || active {
		t.Fatal("unattached tap must report silence")
	}
}
