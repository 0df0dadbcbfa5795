// Package capture records takes from an input device through PortAudio.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/maauso/speech-dataset-maker/internal/audio"
)

// DefaultFramesPerBuffer is ~23ms at 44.1kHz.
const DefaultFramesPerBuffer = 1024

// Static errors for capture.
var (
	// ErrAlreadyRecording is returned by Start while a take is being captured.
	ErrAlreadyRecording = errors.New("capture: already recording")
	// ErrNotRecording is returned by Stop when nothing is being captured.
	ErrNotRecording = errors.New("capture: not recording")
	// ErrNoSuchDevice is returned for a device index that is not an input.
	ErrNoSuchDevice = errors.New("capture: no such input device")
)

// Initialize starts PortAudio. It must be called before Devices or Start,
// and balanced with Terminate.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate releases PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// inputStream is the part of *portaudio.Stream the recorder drives.
type inputStream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

type openFunc func(format audio.Format, device int, buf []float32) (inputStream, error)

// Recorder captures interleaved float samples from one input device.
type Recorder struct {
	format          audio.Format
	device          int
	framesPerBuffer int
	open            openFunc
	logger          *slog.Logger

	mu      sync.Mutex
	stream  inputStream
	samples *accumulator
	cancel  context.CancelFunc
	done    chan error
}

// NewRecorder creates a recorder for format. A negative device selects the
// host's default input device.
func NewRecorder(format audio.Format, device int, logger *slog.Logger) (*Recorder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		format:          format,
		device:          device,
		framesPerBuffer: DefaultFramesPerBuffer,
		open:            openPortAudio,
		logger:          logger,
	}, nil
}

// Format returns the format takes are captured at.
func (r *Recorder) Format() audio.Format {
	return r.format
}

// Recording reports whether a take is being captured.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Start opens the input stream and begins accumulating samples until Stop
// is called or ctx is cancelled.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		return ErrAlreadyRecording
	}

	buf := make([]float32, r.framesPerBuffer*r.format.Channels)
	stream, err := r.open(r.format, r.device, buf)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.stream = stream
	r.samples = &accumulator{}
	r.cancel = cancel
	r.done = make(chan error, 1)

	go r.readLoop(loopCtx, stream, buf, r.samples, r.done)

	r.logger.Debug("capture started",
		slog.String("format", r.format.String()),
		slog.Int("device", r.device),
	)
	return nil
}

func (r *Recorder) readLoop(ctx context.Context, stream inputStream, buf []float32, acc *accumulator, done chan<- error) {
	for {
		select {
		case <-ctx.Done():
			done <- nil
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				r.logger.Debug("input overflowed, samples dropped")
				continue
			}
			done <- fmt.Errorf("read input stream: %w", err)
			return
		}
		acc.append(buf)
	}
}

// Stop ends the capture and returns everything recorded since Start.
// Samples captured before a stream error are still returned with the error.
func (r *Recorder) Stop() (audio.Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream == nil {
		return audio.Buffer{}, ErrNotRecording
	}

	r.cancel()
	readErr := <-r.done

	stopErr := r.stream.Stop()
	closeErr := r.stream.Close()
	samples := r.samples.take()

	r.stream = nil
	r.samples = nil
	r.cancel = nil
	r.done = nil

	buf := audio.Buffer{Format: r.format, Samples: samples}
	r.logger.Debug("capture stopped",
		slog.Int("samples", len(samples)),
		slog.Duration("duration", buf.Duration()),
	)

	if err := errors.Join(readErr, stopErr, closeErr); err != nil {
		return buf, err
	}
	return buf, nil
}

// accumulator collects copies of the stream buffer.
type accumulator struct {
	mu      sync.Mutex
	samples []float32
}

func (a *accumulator) append(buf []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, buf...)
}

func (a *accumulator) take() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.samples
	a.samples = nil
	return out
}

func openPortAudio(format audio.Format, device int, buf []float32) (inputStream, error) {
	dev, err := inputDevice(device)
	if err != nil {
		return nil, err
	}
	if dev.MaxInputChannels < format.Channels {
		return nil, fmt.Errorf("%w: %s has %d input channels, need %d",
			ErrNoSuchDevice, dev.Name, dev.MaxInputChannels, format.Channels)
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = len(buf) / format.Channels

	return portaudio.OpenStream(params, buf)
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index >= len(devices) || devices[index].MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchDevice, index)
	}
	return devices[index], nil
}
