package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/speech-dataset-maker/internal/audio"
	"github.com/maauso/speech-dataset-maker/internal/dataset"
	"github.com/maauso/speech-dataset-maker/internal/storage"
	"github.com/maauso/speech-dataset-maker/internal/take"
)

var testFormat = audio.Format{SampleRate: 8000, BitDepth: 16, Channels: 1}

type fakeRecorder struct {
	starts  int
	stops   int
	samples []float32
}

func (r *fakeRecorder) Start(context.Context) error {
	r.starts++
	return nil
}

func (r *fakeRecorder) Stop() (audio.Buffer, error) {
	r.stops++
	if r.samples != nil {
		return audio.Buffer{Format: testFormat, Samples: r.samples}, nil
	}
	samples := make([]float32, 1000)
	for i := 400; i < 600; i++ {
		samples[i] = 0.3
	}
	return audio.Buffer{Format: testFormat, Samples: samples}, nil
}

type fakePlayer struct {
	played [][]byte
}

func (p *fakePlayer) Play(_ context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	p.played = append(p.played, data)
	return err
}

func newTestService(t *testing.T, rtl bool) (*take.Service, *dataset.Config) {
	t.Helper()
	root := t.TempDir()

	cfg := &dataset.Config{
		SentencesFile: filepath.Join(root, "sentences.tsv"),
		OutputDir:     filepath.Join(root, "out"),
		WavsDir:       filepath.Join(root, "out", "wavs"),
		SampleRate:    testFormat.SampleRate,
		BitDepth:      testFormat.BitDepth,
		Channels:      testFormat.Channels,
	}
	if rtl {
		cfg.TextDirection = dataset.DirectionRTL
	}
	require.NoError(t, os.WriteFile(cfg.SentencesFile, []byte("x1\tOne.\nx2\tTwo.\n"), 0644))

	catalogDir := filepath.Join(root, "datasets")
	require.NoError(t, os.MkdirAll(catalogDir, 0755))
	descriptor, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(catalogDir, "demo.json"), descriptor, 0644))

	store, err := storage.NewLocalStorage(filepath.Join(root, "scratch"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return take.NewService(take.NewMemoryRepository(), dataset.NewCatalog(catalogDir), nil, store, logger), cfg
}

func runConsole(t *testing.T, svc *take.Service, rec takeRecorder, player takePlayer, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := newConsole(svc, "demo", rec, player, strings.NewReader(input), &out)
	require.NoError(t, c.run(context.Background()))
	return out.String()
}

func TestConsole_RecordPlayWrite(t *testing.T) {
	svc, cfg := newTestService(t, false)
	rec := &fakeRecorder{}
	player := &fakePlayer{}

	out := runConsole(t, svc, rec, player, "r\ns\np\nw\nq\n")

	assert.Contains(t, out, "[x1] (2 remaining)")
	assert.Contains(t, out, "One.")
	assert.Contains(t, out, "saved "+filepath.Join(cfg.WavsDir, "x1.wav")+": 1000 -> 500 samples")
	assert.Contains(t, out, "[x2] (1 remaining)")

	require.Len(t, player.played, 1)
	buf, err := audio.ReadWAV(bytes.NewReader(player.played[0]))
	require.NoError(t, err)
	assert.Len(t, buf.Samples, 1000)

	ledger, err := os.ReadFile(cfg.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, "x1.wav|One.\n", string(ledger))
}

func TestConsole_WriteReportsUntrimmedTake(t *testing.T) {
	svc, _ := newTestService(t, false)
	rec := &fakeRecorder{samples: []float32{0.2}}

	out := runConsole(t, svc, rec, &fakePlayer{}, "r\ns\nw\nq\n")

	assert.Contains(t, out, ": 1 -> 1 samples (too short to trim, kept as recorded)")
}

func TestConsole_DiscardAndRetake(t *testing.T) {
	svc, cfg := newTestService(t, false)
	rec := &fakeRecorder{}

	out := runConsole(t, svc, rec, &fakePlayer{}, "r\ns\nd\nr\ns\nr\ns\nq\n")

	assert.Contains(t, out, "discarded")
	assert.Equal(t, 3, rec.starts)
	assert.Equal(t, 3, rec.stops)
	assert.NoFileExists(t, filepath.Join(cfg.WavsDir, "x1.wav"))

	takes, err := svc.ListTakes(context.Background())
	require.NoError(t, err)
	require.Len(t, takes, 3)
	for _, tk := range takes {
		assert.Equal(t, take.StatusDiscarded, tk.Status)
	}
}

func TestConsole_QuitWhileRecording(t *testing.T) {
	svc, _ := newTestService(t, false)
	rec := &fakeRecorder{}

	runConsole(t, svc, rec, &fakePlayer{}, "r\nq\n")

	assert.Equal(t, 1, rec.stops)
}

func TestConsole_Exhausted(t *testing.T) {
	svc, _ := newTestService(t, true)
	rec := &fakeRecorder{}

	out := runConsole(t, svc, rec, &fakePlayer{}, "r\ns\nw\nr\ns\nw\nr\nq\n")

	assert.Contains(t, out, "(right-to-left)")
	assert.Contains(t, out, noSentenceBanner)
	assert.Equal(t, 2, rec.starts)
}

func TestConsole_UnknownCommandPrintsHelp(t *testing.T) {
	svc, _ := newTestService(t, false)

	out := runConsole(t, svc, &fakeRecorder{}, &fakePlayer{}, "x\n")

	assert.Equal(t, 2, strings.Count(out, help))
}
