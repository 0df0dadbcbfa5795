package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// FFmpegTranscoder implements Transcoder using the ffmpeg CLI.
type FFmpegTranscoder struct {
	ffmpegPath string
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegTranscoder(ffmpegPath string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath}
}

// ToWAV implements Transcoder.ToWAV.
func (t *FFmpegTranscoder) ToWAV(ctx context.Context, input, output string, format Format) error {
	if _, err := os.Stat(input); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", input)
	}

	args, err := toWAVArgs(input, output, format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	return t.run(ctx, args)
}

// toWAVArgs builds the ffmpeg argument list for a PCM WAV conversion.
func toWAVArgs(input, output string, format Format) ([]string, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	codec, err := pcmCodec(format.BitDepth)
	if err != nil {
		return nil, err
	}

	return []string{
		"-y",
		"-hide_banner",
		"-i", input,
		"-vn",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-c:a", codec,
		"-f", "wav",
		output,
	}, nil
}

// pcmCodec maps a bit depth to the matching ffmpeg PCM encoder.
func pcmCodec(bitDepth int) (string, error) {
	switch bitDepth {
	case 8:
		return "pcm_u8", nil
	case 16:
		return "pcm_s16le", nil
	case 24:
		return "pcm_s24le", nil
	case 32:
		return "pcm_s32le", nil
	default:
		return "", fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, bitDepth)
	}
}

// run executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (t *FFmpegTranscoder) run(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Verify interface implementation at compile time.
var _ Transcoder = (*FFmpegTranscoder)(nil)
