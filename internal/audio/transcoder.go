package audio

import "context"

// Transcoder converts arbitrary audio input into PCM WAV.
type Transcoder interface {
	// ToWAV converts the file at input into a PCM WAV file at output using
	// exactly the given format: sample rate, channel count and bit depth.
	// The output file is overwritten if it exists.
	ToWAV(ctx context.Context, input, output string, format Format) error
}
