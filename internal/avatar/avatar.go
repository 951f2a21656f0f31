// Package avatar renders a talking face in the terminal whose mouth tracks
// the visualizer's loudness samples.
package avatar

import (
	"fmt"
	"io"
	"sync"
)

var mouths = []string{"‿", "o", "O", "0"}

type Face struct {
	mu sync.Mutex
	w  io.Writer
}

func New(w io.Writer) *Face {
	return &Face{w: w}
}

// Animate consumes samples until the channel closes, then draws the resting
// face.
func (f *Face) Animate(samples <-chan float64) {
	for s := range samples {
		f.draw(mouthFor(s))
	}
	f.draw(mouths[0])
	f.mu.Lock()
	fmt.Fprintln(f.w)
	f.mu.Unlock()
}

// Static is the fallback when no loudness data is available: a fixed
// speaking face instead of an animated one.
func (f *Face) Static() {
	f.draw(mouths[2])
}

func (f *Face) draw(mouth string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.w, "\r  (  •_•  )  %s  ", mouth)
}

func mouthFor(level float64) string {
	switch {
	case level < 0.05:
		return mouths[0]
	case level < 0.2:
		return mouths[1]
	case level < 0.5:
		return mouths[2]
	default:
		return mouths[3]
	}
}
