package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

type Options struct {
	MaxSamples int
}

// DecodePCM16k sniffs the container from the payload's magic bytes and
// decodes it to mono float32 PCM at 16 kHz.
func DecodePCM16k(data []byte, opt Options) ([]float32, error) {
	if len(data) < 4 {
		return nil, errors.New("payload too short to sniff")
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAVTo16k(bytes.NewReader(data), opt)
	case bytes.HasPrefix(data, []byte("OggS")):
		if s, err := decodeOggVorbisTo16k(bytes.NewReader(data), opt); err == nil {
			return s, nil
		}
		if s, err := decodeOggOpusTo16k(bytes.NewReader(data), opt); err == nil {
			return s, nil
		}
		return nil, fmt.Errorf("cannot decode Ogg container as Vorbis or Opus")
	case bytes.HasPrefix(data, []byte("ID3")) || (data[0] == 0xFF && data[1]&0xE0 == 0xE0):
		return decodeMP3To16k(bytes.NewReader(data), opt)
	default:
		return nil, fmt.Errorf("unsupported audio container (supported: wav/mp3/ogg-vorbis/ogg-opus)")
	}
}

// DecodeFilePCM16k is the file-path variant of DecodePCM16k.
func DecodeFilePCM16k(path string, opt Options) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodePCM16k(data, opt)
}

// EncodeWAV wraps mono float32 PCM in a 16-bit PCM WAV container.
func EncodeWAV(pcm []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}

	ints := make([]int, len(pcm))
	for i, v := range pcm {
		s := clamp(float64(v), -1.0, 1.0) * 32767.0
		ints[i] = int(math.Round(s))
	}

	var ws memWriteSeeker
	enc := wav.NewEncoder(&ws, sampleRate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Data:           ints,
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav finalize: %w", err)
	}

	return ws.data, nil
}

// BytesToPCM reinterprets little-endian int16 bytes as float32 samples.
func BytesToPCM(raw []byte) []float32 {
	ints := make([]int16, len(raw)/2)
	_ = binary.Read(bytes.NewReader(raw[:len(ints)*2]), binary.LittleEndian, &ints)
	return int16SliceToFloat32(ints)
}

// PCMToBytes serializes float32 samples as little-endian int16 bytes.
func PCMToBytes(pcm []float32) []byte {
	out := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		s := clamp(float64(v), -1.0, 1.0) * 32767.0
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(s))))
	}
	return out
}

func decodeWAVTo16k(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return nil, err
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intSliceToFloat32(pb.Data, bd)

	ch := 1
	sr := 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	if ch > 1 {
		x = downmixInterleaved(x, ch)
	}
	if sr != 16000 {
		x = resampleLinear(x, sr, 16000)
	}
	return capSamples(x, opt), nil
}

func decodeMP3To16k(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	x := int16SliceToFloat32(ints)
	x = downmixInterleaved(x, 2) // mp3 decoder outputs stereo

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	if sr != 16000 {
		x = resampleLinear(x, sr, 16000)
	}
	return capSamples(x, opt), nil
}

func decodeOggVorbisTo16k(r io.Reader, opt Options) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	x := pcm
	if format.Channels > 1 {
		x = downmixInterleaved(pcm, format.Channels)
	}
	if format.SampleRate != 16000 {
		x = resampleLinear(x, format.SampleRate, 16000)
	}
	return capSamples(x, opt), nil
}

func decodeOggOpusTo16k(rs io.ReadSeeker, opt Options) ([]float32, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// Opus always decodes at 48 kHz.
	var (
		pcm48 []float32
		buf   = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm48 = append(pcm48, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(pcm48) == 0 {
		return nil, errors.New("empty opus stream")
	}
	if ch > 1 {
		pcm48 = downmixInterleaved(pcm48, ch)
	}
	return capSamples(resampleLinear(pcm48, 48000, 16000), opt), nil
}

// memWriteSeeker satisfies io.WriteSeeker so the wav encoder can patch the
// RIFF header sizes in place.
type memWriteSeeker struct {
	data []byte
	pos  int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.data) {
		grown := make([]byte, need)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = int(abs)
	return abs, nil
}

// helpers

func capSamples(x []float32, opt Options) []float32 {
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		return x[:opt.MaxSamples]
	}
	return x
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
