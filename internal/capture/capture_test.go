package capture

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRegistry struct {
	supported map[Format]bool
}

func (r fakeRegistry) Supports(f Format) bool { return r.supported[f] }

func (r fakeRegistry) Encode(f Format, pcm []float32, sampleRate int) ([]byte, error) {
	return nil, errors.New("probe-only registry")
}

func TestProbeSelectsFirstSupported(t *testing.T) {
	reg := fakeRegistry{supported: map[Format]bool{
		FormatOggVorbis: true,
		FormatWAV:       true,
	}}
	if got := Probe(reg, DefaultPreference); got != FormatOggVorbis {
		t.Fatalf("expected ogg/vorbis, got %s", got)
	}
}

func TestProbeFallsBackToWAV(t *testing.T) {
	reg := fakeRegistry{supported: map[Format]bool{}}
	if got := Probe(reg, DefaultPreference); got != FormatWAV {
		t.Fatalf("expected wav fallback, got %s", got)
	}
}

func TestDefaultRegistrySupportsOnlyWAV(t *testing.T) {
	reg := DefaultRegistry()
	if !reg.Supports(FormatWAV) {
		t.Fatal("wav must always be supported")
	}
	if reg.Supports(FormatOggOpus) || reg.Supports(FormatMP3) {
		t.Fatal("compressed encoders are not linked in")
	}
}

// fakeSource delivers a constant-amplitude signal with a real frame cadence.
type fakeSource struct {
	openErr error
	stream  *fakeStream
}

func (s *fakeSource) Open(cfg Config, frameSize int) (Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.stream = &fakeStream{frameDelay: 5 * time.Millisecond}
	return s.stream, nil
}

type fakeStream struct {
	frameDelay time.Duration
	closed     atomic.Bool
	readErr    error
}

func (s *fakeStream) Read(dst []float32) (int, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}
	time.Sleep(s.frameDelay)
	for i := range dst {
		dst[i] = 0.25
	}
	return len(dst), nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

func newTestController(src Source, opts ...Option) *Controller {
	base := []Option{WithMinDuration(80 * time.Millisecond), WithMinBytes(100)}
	return NewController(DefaultConfig(), src, append(base, opts...)...)
}

func TestStopDefersUntilMinimumDuration(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src, WithMinDuration(150*time.Millisecond))

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	started := time.Now()

	time.Sleep(20 * time.Millisecond)
	art, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	if elapsed := time.Since(started); elapsed < 150*time.Millisecond {
		t.Fatalf("finalized at %v, before the minimum duration mark", elapsed)
	}
	if art.Duration < 150*time.Millisecond {
		t.Fatalf("artifact duration %v under the minimum", art.Duration)
	}
	if !bytes.HasPrefix(art.Data, []byte("RIFF")) {
		t.Fatal("deferred-stop artifact must still be a well-formed wav")
	}
	if !src.stream.closed.Load() {
		t.Fatal("device not released after stop")
	}
}

func TestStopAfterMinimumFinalizesImmediately(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	begun := time.Now()
	if _, err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if waited := time.Since(begun); waited > 60*time.Millisecond {
		t.Fatalf("stop after the minimum mark took %v", waited)
	}
}

func TestTooSmallArtifactRejected(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src, WithMinBytes(1<<30))

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := c.Stop()
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if !src.stream.closed.Load() {
		t.Fatal("device must be released even when the artifact is rejected")
	}
}

// mp3Registry claims mp3 support and encodes it itself, deferring wav to the
// built-in encoder.
type mp3Registry struct {
	payload []byte
}

func (r mp3Registry) Supports(f Format) bool { return f == FormatMP3 || f == FormatWAV }

func (r mp3Registry) Encode(f Format, pcm []float32, sampleRate int) ([]byte, error) {
	if f == FormatMP3 {
		return r.payload, nil
	}
	return DefaultRegistry().Encode(f, pcm, sampleRate)
}

func TestArtifactPayloadMatchesSelectedFormat(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 64)
	src := &fakeSource{}
	c := newTestController(src, WithRegistry(mp3Registry{payload: payload}))

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	art, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	if art.Format != FormatMP3 {
		t.Fatalf("probe should have selected mp3, got %s", art.Format)
	}
	if !bytes.Equal(art.Data, payload) {
		t.Fatal("artifact payload must come from the selected format's encoder")
	}
}

func TestOnlyOneActiveSession(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy on overlapping start, got %v", err)
	}
	c.Abort()

	if err := c.Start(); err != nil {
		t.Fatalf("start after abort: %v", err)
	}
	c.Abort()
}

func TestStopWithoutSession(t *testing.T) {
	c := newTestController(&fakeSource{})
	if _, err := c.Stop(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestDeviceOpenFailure(t *testing.T) {
	src := &fakeSource{openErr: errors.New("device busy")}
	c := newTestController(src)

	if err := c.Start(); err == nil {
		t.Fatal("expected start to fail")
	}
	if c.Active() {
		t.Fatal("no session may exist after a failed start")
	}
}
