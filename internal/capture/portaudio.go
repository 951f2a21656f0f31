package capture

import (
	"github.com/gordonklaus/portaudio"
)

// Init must be called once before opening the default source.
func Init() error {
	return portaudio.Initialize()
}

func Terminate() {
	portaudio.Terminate()
}

// PortAudioSource opens the default system input device. The DSP constraint
// flags in Config are left to the platform; portaudio exposes no knobs for
// them.
type PortAudioSource struct{}

func NewPortAudioSource() PortAudioSource { return PortAudioSource{} }

func (PortAudioSource) Open(cfg Config, frameSize int) (Stream, error) {
	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}

	return &paStream{stream: stream, buf: buf}, nil
}

type paStream struct {
	stream *portaudio.Stream
	buf    []float32
}

func (p *paStream) Read(dst []float32) (int, error) {
	if err := p.stream.Read(); err != nil {
		return 0, err
	}
	return copy(dst, p.buf), nil
}

func (p *paStream) Close() error {
	p.stream.Stop()
	return p.stream.Close()
}
