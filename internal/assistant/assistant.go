// Package assistant glues capture, pipeline, playback and the avatar into
// one tagged state machine: idle -> recording -> processing -> playing ->
// idle, returning to idle on every failure path.
package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	log "log/slog"

	"murmur/internal/audio"
	"murmur/internal/capture"
	"murmur/internal/pipeline"
	"murmur/internal/playback"
	"murmur/internal/viz"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Output is the playback side of the assistant. levels may be nil when the
// output cannot provide loudness data; callers then fall back to a static
// indication.
type Output interface {
	Play(data []byte) (done <-chan struct{}, levels viz.LevelSource, err error)
	Stop()
}

// Renderer receives the visualizer's samples. The terminal avatar implements
// it.
type Renderer interface {
	Animate(samples <-chan float64)
	Static()
}

type Assistant struct {
	cap    *capture.Controller
	pipe   *pipeline.Runner
	out    Output
	face   Renderer
	ducker *audio.Ducker
	chirp  func()

	timeout time.Duration

	mu          sync.Mutex
	state       State
	stopPending bool
}

type Option func(*Assistant)

func WithDucker(d *audio.Ducker) Option { return func(a *Assistant) { a.ducker = d } }

func WithChirp(f func()) Option { return func(a *Assistant) { a.chirp = f } }

func WithTimeout(d time.Duration) Option { return func(a *Assistant) { a.timeout = d } }

func New(cap *capture.Controller, pipe *pipeline.Runner, out Output, face Renderer, opts ...Option) *Assistant {
	a := &Assistant{
		cap:     cap,
		pipe:    pipe,
		out:     out,
		face:    face,
		timeout: 90 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) setState(s State) {
	a.mu.Lock()
	a.state = s
	if s == StateIdle {
		a.stopPending = false
	}
	a.mu.Unlock()
}

// Trigger is the user gesture: starts a recording when idle, finishes it
// when recording. Gestures arriving while processing or playing are ignored.
func (a *Assistant) Trigger() {
	a.mu.Lock()
	switch a.state {
	case StateIdle:
		if err := a.cap.Start(); err != nil {
			a.mu.Unlock()
			log.Error("Cannot start recording", "err", err)
			return
		}
		a.state = StateRecording
		a.mu.Unlock()
		log.Info("Listening")
		if a.chirp != nil {
			go a.chirp()
		}

	case StateRecording:
		a.state = StateProcessing
		a.mu.Unlock()
		go a.finish()

	default:
		st := a.state
		a.mu.Unlock()
		log.Warn("Gesture ignored", "state", st)
	}
}

// Stop aborts a recording or halts playback, returning to idle. A stop that
// lands while the reply is still being prepared is queued and cuts playback
// the moment it starts.
func (a *Assistant) Stop() {
	a.mu.Lock()
	st := a.state
	if st == StateProcessing {
		a.stopPending = true
	}
	a.mu.Unlock()

	switch st {
	case StateRecording:
		a.cap.Abort()
		a.setState(StateIdle)
		log.Info("Recording aborted")
	case StatePlaying:
		a.out.Stop()
	}
}

func (a *Assistant) finish() {
	art, err := a.cap.Stop()
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrTooShort):
			log.Warn("Recording too short, dropping it")
		default:
			log.Error("Failed to finalize recording", "err", err)
		}
		a.setState(StateIdle)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	res, err := a.pipe.Run(ctx, art)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoSpeech) {
			log.Info("No speech detected")
		} else {
			log.Error("Pipeline failed", "err", err)
		}
		a.setState(StateIdle)
		return
	}

	done, levels, err := a.out.Play(res.Speech)
	if err != nil {
		log.Error("Playback failed", "err", err)
		a.setState(StateIdle)
		return
	}

	a.mu.Lock()
	a.state = StatePlaying
	pending := a.stopPending
	a.stopPending = false
	a.mu.Unlock()
	if pending {
		a.out.Stop()
	}

	if a.ducker != nil {
		if err := a.ducker.Duck(ctx, 0.3, 200*time.Millisecond); err != nil {
			log.Debug("Ducking unavailable", "err", err)
		}
	}

	if levels == nil {
		// no loudness data: hold a static speaking face instead
		a.face.Static()
		<-done
	} else {
		samples, cancelViz := viz.Watch(levels, viz.DefaultInterval)
		animated := make(chan struct{})
		go func() {
			a.face.Animate(samples)
			close(animated)
		}()

		<-done
		cancelViz()
		<-animated
	}

	if a.ducker != nil {
		if err := a.ducker.Restore(context.Background(), 200*time.Millisecond); err != nil {
			log.Debug("Unducking failed", "err", err)
		}
	}

	a.setState(StateIdle)
}

// NewPlayerOutput adapts the speaker-backed player to the Output interface.
func NewPlayerOutput(p *playback.Player) Output { return playerOutput{p} }

type playerOutput struct {
	p *playback.Player
}

func (o playerOutput) Play(data []byte) (<-chan struct{}, viz.LevelSource, error) {
	done, err := o.p.Play(data)
	if err != nil {
		return nil, nil, err
	}
	return done, o.p.Tap(), nil
}

func (o playerOutput) Stop() { o.p.Stop() }
