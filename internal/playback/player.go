// Package playback plays takes back through the default output device.
package playback

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
)

// resampleQuality is passed to beep.Resample when a take's rate differs from
// the speaker's.
const resampleQuality = 4

// sink is the output the player streams into.
type sink interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
}

type speakerSink struct{}

func (speakerSink) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}
func (speakerSink) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerSink) Clear()               { speaker.Clear() }

// Player plays WAV takes. The speaker is opened once, at the sample rate of
// the first take played; later takes are resampled to it.
type Player struct {
	out     sink
	latency time.Duration

	mu   sync.Mutex
	rate beep.SampleRate
}

// NewPlayer creates a Player on the system speaker.
func NewPlayer() *Player {
	return &Player{out: speakerSink{}, latency: 100 * time.Millisecond}
}

// PlayFile plays the WAV file at path and blocks until it ends or ctx is
// cancelled.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	f, err := os.Open(path) // #nosec G304 - take paths come from the dataset or scratch storage
	if err != nil {
		return fmt.Errorf("open take: %w", err)
	}
	defer f.Close()
	return p.Play(ctx, f)
}

// Play decodes a WAV stream fully and plays it, blocking until playback ends
// or ctx is cancelled. Cancelling stops the speaker.
func (p *Player) Play(ctx context.Context, r io.Reader) error {
	buf, err := Load(r)
	if err != nil {
		return err
	}

	rate, err := p.open(buf.Format().SampleRate)
	if err != nil {
		return err
	}

	var s beep.Streamer = buf.Streamer(0, buf.Len())
	if buf.Format().SampleRate != rate {
		s = beep.Resample(resampleQuality, buf.Format().SampleRate, rate, s)
	}

	done := make(chan struct{})
	p.out.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.out.Clear()
		return ctx.Err()
	}
}

func (p *Player) open(rate beep.SampleRate) (beep.SampleRate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate != 0 {
		return p.rate, nil
	}
	if err := p.out.Init(rate, rate.N(p.latency)); err != nil {
		return 0, fmt.Errorf("open speaker: %w", err)
	}
	p.rate = rate
	return rate, nil
}

// Load decodes a WAV stream into memory.
func Load(r io.Reader) (*beep.Buffer, error) {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode take: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("decode take: %w", err)
	}
	return buf, nil
}
