package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/maauso/speech-dataset-maker/internal/audio"
	"github.com/maauso/speech-dataset-maker/internal/dataset"
	"github.com/maauso/speech-dataset-maker/internal/take"
)

const noSentenceBanner = "----NO SENTENCE REMAINING----"

const help = "[r] record  [s] stop  [p] play  [w] write  [d] discard  [q] quit"

type takeRecorder interface {
	Start(ctx context.Context) error
	Stop() (audio.Buffer, error)
}

type takePlayer interface {
	Play(ctx context.Context, r io.Reader) error
}

// console drives one dataset from line-based keyboard commands.
type console struct {
	svc     *take.Service
	dataset string
	rec     takeRecorder
	player  takePlayer
	in      *bufio.Scanner
	out     io.Writer

	prompt    *take.Prompt
	pending   *take.Take
	recording bool
}

func newConsole(svc *take.Service, datasetName string, rec takeRecorder, player takePlayer, in io.Reader, out io.Writer) *console {
	return &console{
		svc:     svc,
		dataset: datasetName,
		rec:     rec,
		player:  player,
		in:      bufio.NewScanner(in),
		out:     out,
	}
}

func (c *console) run(ctx context.Context) error {
	if err := c.showCurrent(ctx); err != nil {
		return err
	}

	for c.in.Scan() {
		if err := ctx.Err(); err != nil {
			c.shutdown(ctx)
			return err
		}

		quit, err := c.handle(ctx, strings.ToLower(strings.TrimSpace(c.in.Text())))
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			c.shutdown(ctx)
			return nil
		}
	}
	c.shutdown(ctx)
	return c.in.Err()
}

func (c *console) handle(ctx context.Context, cmd string) (quit bool, err error) {
	switch cmd {
	case "":
		return false, nil
	case "q":
		return true, nil
	case "r":
		return false, c.record(ctx)
	case "s":
		return false, c.stop(ctx)
	case "p":
		return false, c.play(ctx)
	case "w":
		return false, c.write(ctx)
	case "d":
		return false, c.discard(ctx)
	default:
		fmt.Fprintln(c.out, help)
		return false, nil
	}
}

func (c *console) showCurrent(ctx context.Context) error {
	prompt, err := c.svc.NextSentence(ctx, c.dataset)
	if errors.Is(err, dataset.ErrNoSentences) {
		c.prompt = nil
		fmt.Fprintln(c.out, noSentenceBanner)
		return nil
	}
	if err != nil {
		return err
	}
	c.prompt = &prompt

	fmt.Fprintf(c.out, "\n[%s] (%d remaining)", prompt.Sentence.ID, prompt.Remaining)
	if prompt.TextDirection == dataset.DirectionRTL {
		fmt.Fprint(c.out, " (right-to-left)")
	}
	fmt.Fprintf(c.out, "\n%s\n%s\n", prompt.Sentence.Text, help)
	return nil
}

func (c *console) record(ctx context.Context) error {
	if c.prompt == nil {
		fmt.Fprintln(c.out, noSentenceBanner)
		return nil
	}
	if c.recording {
		return nil
	}
	if c.pending != nil {
		if err := c.discardPending(ctx); err != nil {
			return err
		}
	}
	if err := c.rec.Start(ctx); err != nil {
		return err
	}
	c.recording = true
	fmt.Fprintln(c.out, "recording... [s] to stop")
	return nil
}

func (c *console) stop(ctx context.Context) error {
	if !c.recording {
		return nil
	}
	c.recording = false

	buf, err := c.rec.Stop()
	if err != nil && len(buf.Samples) == 0 {
		return err
	}

	t, err := c.svc.RecordTake(ctx, c.dataset, c.prompt.Sentence.ID, buf)
	if err != nil {
		return err
	}
	c.pending = t
	fmt.Fprintf(c.out, "recorded %.1fs  [p] play  [w] write  [d] discard  [r] retake\n", buf.Duration().Seconds())
	return nil
}

func (c *console) play(ctx context.Context) error {
	if c.pending == nil || c.recording {
		return nil
	}
	rc, err := c.svc.OpenAudio(ctx, c.pending.ID)
	if err != nil {
		return err
	}
	defer rc.Close()
	return c.player.Play(ctx, rc)
}

func (c *console) write(ctx context.Context) error {
	if c.pending == nil || c.recording {
		return nil
	}
	saved, err := c.svc.SaveTake(ctx, c.pending.ID)
	if err != nil {
		return err
	}
	c.pending = nil

	note := ""
	if saved.Fallback {
		note = " (too short to trim, kept as recorded)"
	}
	fmt.Fprintf(c.out, "saved %s: %d -> %d samples%s\n", saved.OutputPath, saved.OriginalSamples, saved.TrimmedSamples, note)
	return c.showCurrent(ctx)
}

func (c *console) discard(ctx context.Context) error {
	if c.pending == nil || c.recording {
		return nil
	}
	if err := c.discardPending(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "discarded")
	return nil
}

func (c *console) discardPending(ctx context.Context) error {
	_, err := c.svc.DiscardTake(ctx, c.pending.ID)
	c.pending = nil
	return err
}

// shutdown stops a running capture and drops an unsaved take.
func (c *console) shutdown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if c.recording {
		_, _ = c.rec.Stop()
		c.recording = false
	}
	if c.pending != nil {
		_ = c.discardPending(ctx)
	}
}
