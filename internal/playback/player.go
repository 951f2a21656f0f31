// Package playback decodes synthesized audio and plays it through the
// speaker with a loudness tap in the path.
package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

var ErrPlaying = errors.New("playback already active")

type Player struct {
	tap *Tap

	mu      sync.Mutex
	playing bool
	finish  func()
}

func NewPlayer() *Player {
	return &Player{tap: NewTap()}
}

// Tap exposes the player's loudness tap for visualization. There is one tap
// per player; it is re-armed on each Play.
func (p *Player) Tap() *Tap { return p.tap }

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Play decodes the payload, initializes the speaker for its format and plays
// it through the tap. The returned channel closes when playback finishes or
// is stopped.
func (p *Player) Play(data []byte) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return nil, ErrPlaying
	}

	streamer, format, err := decode(data)
	if err != nil {
		return nil, err
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		streamer.Close()
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	done := make(chan struct{})
	var once sync.Once
	finish := func() {
		once.Do(func() {
			streamer.Close()
			p.mu.Lock()
			p.playing = false
			p.finish = nil
			p.mu.Unlock()
			close(done)
		})
	}

	p.playing = true
	p.finish = finish
	speaker.Play(beep.Seq(p.tap.Attach(streamer), beep.Callback(finish)))

	return done, nil
}

// Stop halts in-flight playback, zeroes the tap and closes the done channel.
func (p *Player) Stop() {
	p.mu.Lock()
	finish := p.finish
	p.mu.Unlock()

	if finish == nil {
		return
	}
	speaker.Clear()
	p.tap.setLevel(0)
	p.tap.active.Store(false)
	finish()
}

func decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if len(data) < 4 {
		return nil, beep.Format{}, errors.New("audio payload too short")
	}

	rc := io.NopCloser(bytes.NewReader(data))
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return wav.Decode(rc)
	case bytes.HasPrefix(data, []byte("OggS")):
		return vorbis.Decode(rc)
	default:
		// the backend synthesizes mpeg audio
		return mp3.Decode(rc)
	}
}
