package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag of the fmt chunk.
const wavFormatPCM = 1

// ErrInvalidWAV is returned when the input is not a readable PCM WAV stream.
var ErrInvalidWAV = errors.New("invalid WAV data")

// PCM is integer sample data as stored in a PCM WAV file. 8-bit samples are
// unsigned (silence is 128); wider samples are signed.
type PCM struct {
	Format Format
	Data   []int
}

// Floats returns the samples normalized to [-1, 1]. 32-bit samples keep only
// the 24 most significant bits in float32; use Slice for bit-exact edits.
func (p PCM) Floats() []float32 {
	out := make([]float32, len(p.Data))
	for i, v := range p.Data {
		out[i] = intToFloat(v, p.Format.BitDepth)
	}
	return out
}

// Slice returns a copy of samples [start, end).
func (p PCM) Slice(start, end int) PCM {
	data := make([]int, end-start)
	copy(data, p.Data[start:end])
	return PCM{Format: p.Format, Data: data}
}

// ReadPCM decodes a PCM WAV stream without converting the samples.
func ReadPCM(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, ErrInvalidWAV
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return PCM{}, fmt.Errorf("%w: WAV encoding %d is not PCM", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	format := Format{
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
		Channels:   int(dec.NumChans),
	}
	if err := format.Validate(); err != nil {
		return PCM{}, err
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("read PCM data: %w", err)
	}
	return PCM{Format: format, Data: buf.Data}, nil
}

// WritePCM encodes p as PCM WAV, sample values unchanged.
func WritePCM(w io.WriteSeeker, p PCM) error {
	if err := p.Format.Validate(); err != nil {
		return err
	}

	enc := wav.NewEncoder(w, p.Format.SampleRate, p.Format.BitDepth, p.Format.Channels, wavFormatPCM)
	ib := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: p.Format.Channels,
			SampleRate:  p.Format.SampleRate,
		},
		Data:           p.Data,
		SourceBitDepth: p.Format.BitDepth,
	}
	if err := enc.Write(ib); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write PCM data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize WAV header: %w", err)
	}
	return nil
}

// ReadWAV decodes a PCM WAV stream into normalized float samples.
func ReadWAV(r io.ReadSeeker) (Buffer, error) {
	p, err := ReadPCM(r)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Format: p.Format, Samples: p.Floats()}, nil
}

// WriteWAV encodes buf as PCM WAV at buf.Format.BitDepth. Samples outside
// [-1, 1] are clipped.
func WriteWAV(w io.WriteSeeker, buf Buffer) error {
	if err := buf.Format.Validate(); err != nil {
		return err
	}

	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = floatToInt(s, buf.Format.BitDepth)
	}
	return WritePCM(w, PCM{Format: buf.Format, Data: data})
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (Buffer, error) {
	f, err := os.Open(path) // #nosec G304 - callers pass scratch or dataset paths
	if err != nil {
		return Buffer{}, fmt.Errorf("open WAV file: %w", err)
	}
	defer f.Close()
	return ReadWAV(f)
}

// WriteWAVFile encodes buf to path, replacing any existing file.
func WriteWAVFile(path string, buf Buffer) error {
	return createAndWrite(path, func(w io.WriteSeeker) error { return WriteWAV(w, buf) })
}

func createAndWrite(path string, write func(io.WriteSeeker) error) error {
	f, err := os.Create(path) // #nosec G304
	if err != nil {
		return fmt.Errorf("create WAV file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close WAV file: %w", err)
	}
	return nil
}

// ReadPCMFile decodes the WAV file at path without converting samples.
func ReadPCMFile(path string) (PCM, error) {
	f, err := os.Open(path) // #nosec G304 - callers pass scratch or dataset paths
	if err != nil {
		return PCM{}, fmt.Errorf("open WAV file: %w", err)
	}
	defer f.Close()
	return ReadPCM(f)
}

// WritePCMFile encodes p to path, replacing any existing file.
func WritePCMFile(path string, p PCM) error {
	return createAndWrite(path, func(w io.WriteSeeker) error { return WritePCM(w, p) })
}

// fullScale returns the magnitude of the most negative value at bitDepth.
func fullScale(bitDepth int) float64 {
	return float64(int64(1) << (bitDepth - 1))
}

func intToFloat(v, bitDepth int) float32 {
	if bitDepth == 8 {
		return float32(float64(v-128) / 128)
	}
	return float32(float64(v) / fullScale(bitDepth))
}

func floatToInt(s float32, bitDepth int) int {
	f := float64(s)
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}

	if bitDepth == 8 {
		// Mirrors intToFloat so every 8-bit value round-trips.
		return min(int(math.Round(f*128))+128, 255)
	}

	scale := fullScale(bitDepth)
	v := math.Round(f * scale)
	if v > scale-1 {
		v = scale - 1
	}
	return int(v)
}
