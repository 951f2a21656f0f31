package capture

import (
	"fmt"

	"murmur/pkg/audioconv"
)

// Format names an encoded audio container produced by a capture session.
type Format string

const (
	FormatOggOpus   Format = "ogg/opus"
	FormatOggVorbis Format = "ogg/vorbis"
	FormatMP3       Format = "mp3"
	FormatWAV       Format = "wav"
)

func (f Format) MIME() string {
	switch f {
	case FormatOggOpus, FormatOggVorbis:
		return "audio/ogg"
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

func (f Format) Ext() string {
	switch f {
	case FormatOggOpus, FormatOggVorbis:
		return ".ogg"
	case FormatMP3:
		return ".mp3"
	default:
		return ".wav"
	}
}

// Registry reports which encodings the runtime can actually produce and
// performs the encoding when a session is finalized. A registry must be able
// to encode every format it claims to support.
type Registry interface {
	Supports(Format) bool
	Encode(f Format, pcm []float32, sampleRate int) ([]byte, error)
}

// DefaultPreference is probed in order; the first supported format wins.
var DefaultPreference = []Format{FormatOggOpus, FormatOggVorbis, FormatMP3, FormatWAV}

// Probe returns the first preferred format the registry supports, falling
// back to WAV when none report support.
func Probe(reg Registry, prefs []Format) Format {
	for _, f := range prefs {
		if reg.Supports(f) {
			return f
		}
	}
	return FormatWAV
}

// pcmRegistry is the built-in encoder set: only uncompressed WAV. Compressed
// encoders are not linked in, so probing lands on the fallback.
type pcmRegistry struct{}

func (pcmRegistry) Supports(f Format) bool { return f == FormatWAV }

func (pcmRegistry) Encode(f Format, pcm []float32, sampleRate int) ([]byte, error) {
	if f != FormatWAV {
		return nil, fmt.Errorf("no encoder for %s", f)
	}
	return audioconv.EncodeWAV(pcm, sampleRate)
}

// DefaultRegistry returns the built-in encoder registry.
func DefaultRegistry() Registry { return pcmRegistry{} }
