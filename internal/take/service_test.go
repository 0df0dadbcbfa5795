package take

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/speech-dataset-maker/internal/audio"
	"github.com/maauso/speech-dataset-maker/internal/dataset"
	"github.com/maauso/speech-dataset-maker/internal/metrics"
	"github.com/maauso/speech-dataset-maker/internal/storage"
)

var testFormat = audio.Format{SampleRate: 22050, BitDepth: 16, Channels: 1}

// mockTranscoder implements audio.Transcoder for testing.
type mockTranscoder struct {
	mock.Mock
}

func (m *mockTranscoder) ToWAV(ctx context.Context, input, output string, format audio.Format) error {
	args := m.Called(ctx, input, output, format)
	return args.Error(0)
}

// mirrorStorage is local scratch storage with a mocked mirror.
type mirrorStorage struct {
	*storage.LocalStorage
	mock.Mock
}

func (m *mirrorStorage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	body, _ := io.ReadAll(data)
	args := m.Called(ctx, key, string(body))
	return args.String(0), args.Error(1)
}

type fixture struct {
	svc     *Service
	cfg     *dataset.Config
	store   *storage.LocalStorage
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, transcoder audio.Transcoder, wrap func(*storage.LocalStorage) storage.Storage) *fixture {
	t.Helper()
	return newFormatFixture(t, testFormat, transcoder, wrap)
}

func newFormatFixture(t *testing.T, format audio.Format, transcoder audio.Transcoder, wrap func(*storage.LocalStorage) storage.Storage) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := &dataset.Config{
		LangCode:      "en",
		LangTitle:     "English",
		TextDirection: dataset.DirectionLTR,
		SentencesFile: filepath.Join(root, "sentences.tsv"),
		OutputDir:     filepath.Join(root, "out"),
		WavsDir:       filepath.Join(root, "out", "wavs"),
		SampleRate:    format.SampleRate,
		BitDepth:      format.BitDepth,
		Channels:      format.Channels,
	}
	require.NoError(t, os.WriteFile(cfg.SentencesFile, []byte("s001\tHello world.\ns002\tSecond one.\n"), 0644))

	catalogDir := filepath.Join(root, "datasets")
	require.NoError(t, os.MkdirAll(catalogDir, 0755))
	descriptor, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(catalogDir, "en.json"), descriptor, 0644))

	local, err := storage.NewLocalStorage(filepath.Join(root, "scratch"))
	require.NoError(t, err)

	var store storage.Storage = local
	if wrap != nil {
		store = wrap(local)
	}

	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(NewMemoryRepository(), dataset.NewCatalog(catalogDir), transcoder, store, nil, WithMetrics(m))
	return &fixture{svc: svc, cfg: cfg, store: local, metrics: m}
}

// voicedTake is 1000 silent samples, 500 loud ones and 1000 silent ones.
func voicedTake(format audio.Format) audio.Buffer {
	samples := make([]float32, 2500)
	for i := 1000; i < 1500; i++ {
		samples[i] = 0.5
	}
	return audio.Buffer{Format: format, Samples: samples}
}

func encodeWAV(t *testing.T, buf audio.Buffer) []byte {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload.wav")
	require.NoError(t, audio.WriteWAVFile(p, buf))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return data
}

func scratchFiles(t *testing.T, store *storage.LocalStorage) []string {
	t.Helper()
	entries, err := os.ReadDir(store.TempDir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(NewMemoryRepository(), dataset.NewCatalog(t.TempDir()), nil, nil, nil)

	assert.Equal(t, DefaultThreshold, svc.Threshold())
	assert.NotNil(t, svc.logger)

	svc = NewService(NewMemoryRepository(), dataset.NewCatalog(t.TempDir()), nil, nil, nil, WithThreshold(0.2))
	assert.Equal(t, float32(0.2), svc.Threshold())
}

func TestService_ListDatasets(t *testing.T) {
	f := newFixture(t, nil, nil)

	names, err := f.svc.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, names)
}

func TestService_NextSentence(t *testing.T) {
	f := newFixture(t, nil, nil)

	prompt, err := f.svc.NextSentence(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, "s001", prompt.Sentence.ID)
	assert.Equal(t, "Hello world.", prompt.Sentence.Text)
	assert.Equal(t, dataset.DirectionLTR, prompt.TextDirection)
	assert.Equal(t, 2, prompt.Remaining)

	_, err = f.svc.NextSentence(context.Background(), "fr")
	assert.ErrorIs(t, err, dataset.ErrDatasetNotFound)
}

func TestService_CreateTake_WAVInDatasetFormat(t *testing.T) {
	tr := &mockTranscoder{}
	f := newFixture(t, tr, nil)
	ctx := context.Background()

	tk, err := f.svc.CreateTake(ctx, "en", "s001", bytes.NewReader(encodeWAV(t, voicedTake(testFormat))))
	require.NoError(t, err)

	assert.Equal(t, StatusRecorded, tk.Status)
	assert.Equal(t, "Hello world.", tk.Text)
	assert.Equal(t, testFormat, tk.Format)
	assert.Equal(t, 2500, tk.OriginalSamples)
	assert.FileExists(t, tk.RawPath)
	assert.Len(t, scratchFiles(t, f.store), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TakesCreated))
	tr.AssertNotCalled(t, "ToWAV", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	rc, err := f.svc.OpenAudio(ctx, tk.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, encodeWAV(t, voicedTake(testFormat)), data)
}

func TestService_CreateTake_TranscodesOtherInput(t *testing.T) {
	tr := &mockTranscoder{}
	f := newFixture(t, tr, nil)
	want := voicedTake(testFormat)

	tr.On("ToWAV", mock.Anything, mock.Anything, mock.Anything, testFormat).
		Run(func(args mock.Arguments) {
			require.NoError(t, audio.WriteWAVFile(args.String(2), want))
		}).
		Return(nil).Once()

	tk, err := f.svc.CreateTake(context.Background(), "en", "s001", strings.NewReader("OggS not a wav"))
	require.NoError(t, err)

	assert.Equal(t, 2500, tk.OriginalSamples)
	assert.Equal(t, ".wav", filepath.Ext(tk.RawPath))
	assert.Equal(t, []string{filepath.Base(tk.RawPath)}, scratchFiles(t, f.store))
	tr.AssertExpectations(t)
}

func TestService_CreateTake_TranscodesFormatMismatch(t *testing.T) {
	tr := &mockTranscoder{}
	f := newFixture(t, tr, nil)
	other := audio.Format{SampleRate: 44100, BitDepth: 16, Channels: 2}

	tr.On("ToWAV", mock.Anything, mock.Anything, mock.Anything, testFormat).
		Run(func(args mock.Arguments) {
			require.NoError(t, audio.WriteWAVFile(args.String(2), voicedTake(testFormat)))
		}).
		Return(nil).Once()

	tk, err := f.svc.CreateTake(context.Background(), "en", "s001", bytes.NewReader(encodeWAV(t, voicedTake(other))))
	require.NoError(t, err)
	assert.Equal(t, testFormat, tk.Format)
	tr.AssertExpectations(t)
}

func TestService_CreateTake_Errors(t *testing.T) {
	t.Run("no transcoder for foreign input", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		_, err := f.svc.CreateTake(context.Background(), "en", "s001", strings.NewReader("garbage"))
		assert.ErrorIs(t, err, ErrUnsupportedAudio)
		assert.Empty(t, scratchFiles(t, f.store))
	})

	t.Run("no transcoder for wrong format", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		other := audio.Format{SampleRate: 16000, BitDepth: 16, Channels: 1}

		_, err := f.svc.CreateTake(context.Background(), "en", "s001", bytes.NewReader(encodeWAV(t, voicedTake(other))))
		assert.ErrorIs(t, err, ErrUnsupportedAudio)
		assert.ErrorIs(t, err, audio.ErrFormatMismatch)
	})

	t.Run("transcoder failure", func(t *testing.T) {
		tr := &mockTranscoder{}
		f := newFixture(t, tr, nil)
		tr.On("ToWAV", mock.Anything, mock.Anything, mock.Anything, testFormat).Return(errors.New("boom")).Once()

		_, err := f.svc.CreateTake(context.Background(), "en", "s001", strings.NewReader("garbage"))
		assert.ErrorIs(t, err, ErrUnsupportedAudio)
		assert.Empty(t, scratchFiles(t, f.store))
	})

	t.Run("unknown sentence", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		_, err := f.svc.CreateTake(context.Background(), "en", "s999", strings.NewReader(""))
		assert.ErrorIs(t, err, dataset.ErrSentenceNotFound)
	})
}

func TestService_RecordTake(t *testing.T) {
	f := newFixture(t, nil, nil)

	tk, err := f.svc.RecordTake(context.Background(), "en", "s002", voicedTake(testFormat))
	require.NoError(t, err)
	assert.Equal(t, "s002", tk.SentenceID)
	assert.FileExists(t, tk.RawPath)

	_, err = f.svc.RecordTake(context.Background(), "en", "s002", voicedTake(audio.Format{SampleRate: 8000, BitDepth: 16, Channels: 1}))
	assert.ErrorIs(t, err, audio.ErrFormatMismatch)
}

func TestService_SaveTake(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	tk, err := f.svc.RecordTake(ctx, "en", "s001", voicedTake(testFormat))
	require.NoError(t, err)

	saved, err := f.svc.SaveTake(ctx, tk.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSaved, saved.Status)
	assert.Equal(t, filepath.Join(f.cfg.WavsDir, "s001.wav"), saved.OutputPath)
	assert.Empty(t, saved.MirrorURL)
	assert.False(t, saved.Fallback)
	// First loud sample at 1000, last at 1499, padded by 150 on each side.
	assert.Equal(t, 800, saved.TrimmedSamples)

	out, err := audio.ReadWAVFile(saved.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, testFormat, out.Format)
	assert.Len(t, out.Samples, 800)

	ledger, err := os.ReadFile(f.cfg.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, "s001.wav|Hello world.\n", string(ledger))

	assert.Empty(t, scratchFiles(t, f.store))

	prompt, err := f.svc.NextSentence(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, "s002", prompt.Sentence.ID)
	assert.Equal(t, 1, prompt.Remaining)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TakesSaved))
	assert.Equal(t, 1700.0, testutil.ToFloat64(f.metrics.SamplesRemoved))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.TrimFallbacks))

	rc, err := f.svc.OpenAudio(ctx, tk.ID)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = f.svc.SaveTake(ctx, tk.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_SaveTake_SilentTakeTrimsToPadding(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	silent := audio.Buffer{Format: testFormat, Samples: make([]float32, 1200)}

	tk, err := f.svc.RecordTake(ctx, "en", "s001", silent)
	require.NoError(t, err)

	saved, err := f.svc.SaveTake(ctx, tk.ID)
	require.NoError(t, err)
	assert.False(t, saved.Fallback)
	assert.Equal(t, 1200, saved.TrimmedSamples)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.TrimFallbacks))
}

func TestService_SaveTake_SingleSampleCommitsRawFile(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	single := audio.Buffer{Format: testFormat, Samples: []float32{0.01}}

	tk, err := f.svc.RecordTake(ctx, "en", "s001", single)
	require.NoError(t, err)
	raw, err := os.ReadFile(tk.RawPath)
	require.NoError(t, err)

	saved, err := f.svc.SaveTake(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, saved.Fallback)
	assert.Equal(t, 1, saved.TrimmedSamples)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TrimFallbacks))

	committed, err := os.ReadFile(saved.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, raw, committed)
}

func TestService_SaveTake_UsesConfiguredThreshold(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.threshold = 0.6
	ctx := context.Background()

	tk, err := f.svc.RecordTake(ctx, "en", "s001", voicedTake(testFormat))
	require.NoError(t, err)

	saved, err := f.svc.SaveTake(ctx, tk.ID)
	require.NoError(t, err)
	assert.False(t, saved.Fallback)
	assert.Equal(t, 2500, saved.TrimmedSamples)
}

func TestService_SaveTake_KeepsSamplesBitExact(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		quiet int
		loud  []int
	}{
		{"8-bit", 8, 128, []int{0, 255, 1, 254}},
		{"32-bit", 32, 0, []int{123456789, -2147483648, 2147483642, -123456789}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := audio.Format{SampleRate: 16000, BitDepth: tt.depth, Channels: 1}
			f := newFormatFixture(t, format, nil, nil)
			ctx := context.Background()

			data := make([]int, 2500)
			for i := range data {
				data[i] = tt.quiet
			}
			for i := 1000; i < 1500; i++ {
				data[i] = tt.loud[i%len(tt.loud)]
			}
			upload := filepath.Join(t.TempDir(), "take.wav")
			require.NoError(t, audio.WritePCMFile(upload, audio.PCM{Format: format, Data: data}))
			body, err := os.ReadFile(upload)
			require.NoError(t, err)

			tk, err := f.svc.CreateTake(ctx, "en", "s001", bytes.NewReader(body))
			require.NoError(t, err)
			saved, err := f.svc.SaveTake(ctx, tk.ID)
			require.NoError(t, err)

			got, err := audio.ReadPCMFile(saved.OutputPath)
			require.NoError(t, err)
			assert.Equal(t, format, got.Format)
			assert.Equal(t, data[850:1650], got.Data)
		})
	}
}

func TestService_SaveTake_DiscardsOtherTakesOfSentence(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	first, err := f.svc.RecordTake(ctx, "en", "s001", voicedTake(testFormat))
	require.NoError(t, err)
	second, err := f.svc.RecordTake(ctx, "en", "s001", voicedTake(testFormat))
	require.NoError(t, err)
	other, err := f.svc.RecordTake(ctx, "en", "s002", voicedTake(testFormat))
	require.NoError(t, err)

	_, err = f.svc.SaveTake(ctx, second.ID)
	require.NoError(t, err)

	got, err := f.svc.GetTake(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDiscarded, got.Status)
	assert.NoFileExists(t, first.RawPath)

	got, err = f.svc.GetTake(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, got.Status)
	assert.FileExists(t, other.RawPath)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TakesDiscarded))
}

func TestService_SaveTake_Mirror(t *testing.T) {
	var mirror *mirrorStorage
	f := newFixture(t, nil, func(l *storage.LocalStorage) storage.Storage {
		mirror = &mirrorStorage{LocalStorage: l}
		return mirror
	})
	ctx := context.Background()

	mirror.On("Publish", mock.Anything, "en/wavs/s001.wav", mock.Anything).
		Return("https://bucket/en/wavs/s001.wav", nil).Once()
	mirror.On("Publish", mock.Anything, "en/Metadata.csv", "s001.wav|Hello world.\n").
		Return("https://bucket/en/Metadata.csv", nil).Once()

	tk, err := f.svc.RecordTake(ctx, "en", "s001", voicedTake(testFormat))
	require.NoError(t, err)

	saved, err := f.svc.SaveTake(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket/en/wavs/s001.wav", saved.MirrorURL)
	mirror.AssertExpectations(t)
}

func TestService_SaveTake_MirrorFailureKeepsTake(t *testing.T) {
	var mirror *mirrorStorage
	f := newFixture(t, nil, func(l *storage.LocalStorage) storage.Storage {
		mirror = &mirrorStorage{LocalStorage: l}
		return mirror
	})
	ctx := context.Background()

	mirror.On("Publish", mock.Anything, "en/wavs/s001.wav", mock.Anything).
		Return("", errors.New("s3 down")).Once()

	tk, err := f.svc.RecordTake(ctx, "en", "s001", voicedTake(testFormat))
	require.NoError(t, err)

	saved, err := f.svc.SaveTake(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, saved.Status)
	assert.Empty(t, saved.MirrorURL)
	assert.FileExists(t, saved.OutputPath)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PublishFailures))
	mirror.AssertExpectations(t)
}

func TestService_SaveTake_NotFound(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.SaveTake(context.Background(), "take-missing")
	assert.ErrorIs(t, err, ErrTakeNotFound)
}

func TestService_DiscardTake(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	tk, err := f.svc.RecordTake(ctx, "en", "s001", voicedTake(testFormat))
	require.NoError(t, err)

	discarded, err := f.svc.DiscardTake(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDiscarded, discarded.Status)
	assert.NoFileExists(t, tk.RawPath)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TakesDiscarded))

	_, err = f.svc.OpenAudio(ctx, tk.ID)
	assert.ErrorIs(t, err, ErrAudioUnavailable)

	_, err = f.svc.DiscardTake(ctx, tk.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.SaveTake(ctx, tk.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	prompt, err := f.svc.NextSentence(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, "s001", prompt.Sentence.ID)
}

func TestService_DatasetExhausted(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for _, id := range []string{"s001", "s002"} {
		tk, err := f.svc.RecordTake(ctx, "en", id, voicedTake(testFormat))
		require.NoError(t, err)
		_, err = f.svc.SaveTake(ctx, tk.ID)
		require.NoError(t, err)
	}

	_, err := f.svc.NextSentence(ctx, "en")
	assert.ErrorIs(t, err, dataset.ErrNoSentences)

	takes, err := f.svc.ListTakes(ctx)
	require.NoError(t, err)
	assert.Len(t, takes, 2)
}
