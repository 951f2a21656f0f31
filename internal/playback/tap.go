package playback

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/faiface/beep"
)

// Tap is a pass-through streamer that measures the loudness of samples on
// their way to the device. The signal itself is untouched.
type Tap struct {
	mu  sync.Mutex
	src beep.Streamer

	level  uint64 // float64 bits
	active atomic.Bool
}

func NewTap() *Tap { return &Tap{} }

// Attach binds the tap to a new source and resets its state. The returned
// streamer is handed to the speaker in place of src.
func (t *Tap) Attach(src beep.Streamer) beep.Streamer {
	t.mu.Lock()
	t.src = src
	t.mu.Unlock()

	t.setLevel(0)
	t.active.Store(true)
	return t
}

func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	t.mu.Lock()
	src := t.src
	t.mu.Unlock()

	if src == nil {
		return 0, false
	}

	n, ok := src.Stream(samples)
	if n > 0 {
		var sum float64
		for _, s := range samples[:n] {
			m := (s[0] + s[1]) / 2
			sum += m * m
		}
		t.setLevel(math.Sqrt(sum / float64(n)))
	}
	if !ok {
		t.setLevel(0)
		t.active.Store(false)
	}
	return n, ok
}

func (t *Tap) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.src == nil {
		return nil
	}
	return t.src.Err()
}

// Level returns the most recent RMS loudness and whether playback is still
// flowing through the tap.
func (t *Tap) Level() (float64, bool) {
	return math.Float64frombits(atomic.LoadUint64(&t.level)), t.active.Load()
}

func (t *Tap) setLevel(v float64) {
	atomic.StoreUint64(&t.level, math.Float64bits(v))
}
