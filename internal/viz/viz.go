// Package viz derives a smoothed mouth-openness signal from playback
// loudness. It is rendering-only and never affects pipeline correctness.
package viz

import (
	"sync"
	"time"
)

// LevelSource reports instantaneous loudness and whether playback is still
// active.
type LevelSource interface {
	Level() (float64, bool)
}

// DefaultInterval approximates a display refresh tick.
const DefaultInterval = 16 * time.Millisecond

// Smoothing keeps the mouth from jittering while staying responsive:
// new = 0.7*old + 0.3*current.
const (
	smoothOld = 0.7
	smoothNew = 0.3
)

// Watch emits one clamped, smoothed sample per tick until playback stops,
// then emits a final 0 and closes the channel. The cancel func tears down
// the ticker; it is safe to call more than once concurrently with channel
// consumption.
//
// A nil source is the degraded mode: a single 0 is emitted and the channel
// closes, so callers fall back to a static indication.
func Watch(src LevelSource, interval time.Duration) (<-chan float64, func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	out := make(chan float64, 8)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	if src == nil {
		out <- 0
		close(out)
		return out, cancel
	}

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var level float64
		for {
			select {
			case <-stop:
				emit(out, 0)
				return
			case <-ticker.C:
				cur, ok := src.Level()
				level = smoothOld*level + smoothNew*clamp01(cur)
				if !ok {
					emit(out, 0)
					return
				}
				select {
				case out <- level:
				case <-stop:
					emit(out, 0)
					return
				}
			}
		}
	}()

	return out, cancel
}

// emit delivers the terminal sample without hanging on a gone consumer.
func emit(out chan float64, v float64) {
	select {
	case out <- v:
	case <-time.After(50 * time.Millisecond):
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
