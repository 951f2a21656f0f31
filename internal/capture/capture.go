package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "log/slog"

	"murmur/pkg/audioconv"
)

var (
	ErrBusy      = errors.New("capture session already active")
	ErrNoSession = errors.New("no active capture session")
	ErrTooShort  = errors.New("recording too short")
)

// Config carries the constraints requested for the input device. The DSP
// flags are honored where the source supports them and recorded on the
// session either way.
type Config struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Stream is an open input device delivering float32 PCM frames.
type Stream interface {
	Read(dst []float32) (int, error)
	Close() error
}

// Source opens input devices. frameSize is samples per Read.
type Source interface {
	Open(cfg Config, frameSize int) (Stream, error)
}

// Artifact is the finalized product of one capture session.
type Artifact struct {
	Data     []byte
	Format   Format
	Duration time.Duration
}

// Controller owns at most one capture session at a time. Fragments are
// append-only while recording and assembled only on Stop.
type Controller struct {
	cfg         Config
	src         Source
	reg         Registry
	prefs       []Format
	minDuration time.Duration
	minBytes    int

	mu   sync.Mutex
	sess *session
}

type session struct {
	format    Format
	startedAt time.Time
	fragments [][]byte
	stream    Stream
	stop      chan struct{}
	done      chan struct{}
	readErr   error
}

type Option func(*Controller)

func WithMinDuration(d time.Duration) Option { return func(c *Controller) { c.minDuration = d } }

func WithMinBytes(n int) Option { return func(c *Controller) { c.minBytes = n } }

func WithRegistry(r Registry) Option { return func(c *Controller) { c.reg = r } }

func WithPreference(p []Format) Option { return func(c *Controller) { c.prefs = p } }

func NewController(cfg Config, src Source, opts ...Option) *Controller {
	c := &Controller{
		cfg:         cfg,
		src:         src,
		reg:         DefaultRegistry(),
		prefs:       DefaultPreference,
		minDuration: 500 * time.Millisecond,
		minBytes:    1000,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Active reports whether a session is currently recording.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Start opens the device and begins buffering 100ms fragments. It fails
// without creating a session when the device cannot be opened.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		return ErrBusy
	}

	format := Probe(c.reg, c.prefs)

	frameSize := c.cfg.SampleRate / 10 // one fragment per 100ms
	stream, err := c.src.Open(c.cfg, frameSize)
	if err != nil {
		return fmt.Errorf("open input device: %w", err)
	}

	s := &session{
		format:    format,
		startedAt: time.Now(),
		stream:    stream,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.sess = s

	log.Debug("Capture started", "format", format, "rate", c.cfg.SampleRate)

	go c.record(s, frameSize)
	return nil
}

func (c *Controller) record(s *session, frameSize int) {
	defer close(s.done)

	buf := make([]float32, frameSize)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, err := s.stream.Read(buf)
		if err != nil {
			s.readErr = err
			return
		}
		s.fragments = append(s.fragments, audioconv.PCMToBytes(buf[:n]))
	}
}

// Stop finalizes the session. When called before the minimum duration has
// elapsed it keeps recording until the mark and only then finalizes. The
// device is released on every path. Artifacts under the byte threshold are
// rejected with ErrTooShort instead of being passed downstream.
func (c *Controller) Stop() (Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil {
		return Artifact{}, ErrNoSession
	}
	c.sess = nil

	if remaining := c.minDuration - time.Since(s.startedAt); remaining > 0 {
		log.Debug("Deferring stop until minimum duration", "remaining", remaining)
		time.Sleep(remaining)
	}

	close(s.stop)
	<-s.done
	closeErr := s.stream.Close()

	elapsed := time.Since(s.startedAt)

	if s.readErr != nil && len(s.fragments) == 0 {
		return Artifact{}, fmt.Errorf("capture failed: %w", s.readErr)
	}
	if closeErr != nil {
		log.Warn("Failed to release input device", "err", closeErr)
	}

	total := 0
	for _, f := range s.fragments {
		total += len(f)
	}
	raw := make([]byte, 0, total)
	for _, f := range s.fragments {
		raw = append(raw, f...)
	}

	data, err := c.reg.Encode(s.format, audioconv.BytesToPCM(raw), c.cfg.SampleRate)
	if err != nil {
		return Artifact{}, fmt.Errorf("assemble artifact: %w", err)
	}
	if len(data) < c.minBytes {
		return Artifact{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}

	log.Debug("Capture finalized", "bytes", len(data), "elapsed", elapsed)

	return Artifact{Data: data, Format: s.format, Duration: elapsed}, nil
}

// Abort tears down an active session without producing an artifact.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil {
		return
	}
	c.sess = nil

	close(s.stop)
	<-s.done
	if err := s.stream.Close(); err != nil {
		log.Warn("Failed to release input device", "err", err)
	}
}
