// Package audio provides the sample buffer model, silence trimming, WAV
// encoding and ffmpeg-based transcoding used to build speech datasets.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for audio format validation.
var (
	// ErrUnsupportedFormat is returned when a format cannot be encoded as PCM WAV.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrFormatMismatch is returned when a buffer does not carry the expected format.
	ErrFormatMismatch = errors.New("audio format mismatch")
)

// Format describes how a sample buffer was recorded.
type Format struct {
	// SampleRate is the number of frames per second.
	SampleRate int `json:"sample_rate"`
	// BitDepth is the PCM bit depth used on disk (8, 16, 24 or 32).
	BitDepth int `json:"bit_depth"`
	// Channels is the number of interleaved channels.
	Channels int `json:"channels"`
}

// Validate checks that the format can be captured and written as PCM WAV.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: channels must be at least 1, got %d", ErrUnsupportedFormat, f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, f.BitDepth)
	}
	return nil
}

// String returns a compact representation like "22050Hz/16bit/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// Buffer is a fully materialized take: normalized samples in interleaved
// channel order plus the format they were recorded at.
type Buffer struct {
	Format  Format
	Samples []float32
}

// Frames returns the number of multi-channel frames in the buffer.
func (b Buffer) Frames() int {
	if b.Format.Channels <= 0 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}
