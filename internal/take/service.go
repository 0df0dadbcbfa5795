package take

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/maauso/speech-dataset-maker/internal/audio"
	"github.com/maauso/speech-dataset-maker/internal/dataset"
	"github.com/maauso/speech-dataset-maker/internal/metrics"
	"github.com/maauso/speech-dataset-maker/internal/storage"
)

// DefaultThreshold is the silence threshold used when none is configured.
const DefaultThreshold float32 = 0.05

// Static errors for the take service.
var (
	// ErrUnsupportedAudio is returned when an upload is not a WAV in the
	// dataset format and no transcoder is available to convert it.
	ErrUnsupportedAudio = errors.New("unsupported audio input")
	// ErrAudioUnavailable is returned when a discarded take's audio is requested.
	ErrAudioUnavailable = errors.New("take audio is no longer available")
)

// Prompt is the next sentence a speaker should read.
type Prompt struct {
	Sentence      dataset.Sentence
	TextDirection string
	Remaining     int
}

// Service records takes against dataset sentences and commits the trimmed
// audio into the dataset.
type Service struct {
	repo       Repository
	catalog    *dataset.Catalog
	transcoder audio.Transcoder
	store      storage.Storage
	logger     *slog.Logger
	metrics    *metrics.Metrics
	threshold  float32

	sessionsMu sync.Mutex
	sessions   map[string]*dataset.Session

	// opMu serializes save and discard so a take is committed at most once.
	opMu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithThreshold sets the silence threshold used when saving takes.
func WithThreshold(threshold float32) ServiceOption {
	return func(s *Service) {
		s.threshold = threshold
	}
}

// WithMetrics sets the collectors the service reports to.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service. transcoder may be nil, in which case only
// WAV uploads already in the dataset format are accepted.
func NewService(
	repo Repository,
	catalog *dataset.Catalog,
	transcoder audio.Transcoder,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:       repo,
		catalog:    catalog,
		transcoder: transcoder,
		store:      store,
		logger:     logger,
		threshold:  DefaultThreshold,
		sessions:   make(map[string]*dataset.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the silence threshold in use.
func (s *Service) Threshold() float32 {
	return s.threshold
}

// ListDatasets returns the names of all datasets in the catalog.
func (s *Service) ListDatasets(_ context.Context) ([]string, error) {
	return s.catalog.List()
}

// Session returns the recording session of a dataset, opening it on first use.
func (s *Service) Session(name string) (*dataset.Session, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if sess, ok := s.sessions[name]; ok {
		return sess, nil
	}

	cfg, err := s.catalog.Load(name)
	if err != nil {
		return nil, err
	}
	sess, err := dataset.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open dataset %q: %w", name, err)
	}

	s.logger.Info("dataset opened",
		slog.String("dataset", name),
		slog.String("format", cfg.Format().String()),
		slog.Int("remaining", sess.Remaining()),
		slog.Int("recorded", sess.Recorded()),
	)
	s.sessions[name] = sess
	return sess, nil
}

// NextSentence returns the sentence to record next.
// Returns dataset.ErrNoSentences when the dataset is complete.
func (s *Service) NextSentence(_ context.Context, name string) (Prompt, error) {
	sess, err := s.Session(name)
	if err != nil {
		return Prompt{}, err
	}
	sentence, err := sess.Current()
	if err != nil {
		return Prompt{}, err
	}

	direction := dataset.DirectionLTR
	if sess.Config().RTL() {
		direction = dataset.DirectionRTL
	}
	return Prompt{
		Sentence:      sentence,
		TextDirection: direction,
		Remaining:     sess.Remaining(),
	}, nil
}

// CreateTake stores an uploaded recording of a sentence as a new take.
// WAV input already in the dataset format is kept as is; anything else is
// converted with the transcoder.
func (s *Service) CreateTake(ctx context.Context, name, sentenceID string, input io.Reader) (*Take, error) {
	sess, sentence, err := s.sentence(name, sentenceID)
	if err != nil {
		return nil, err
	}
	format := sess.Config().Format()
	t := New(name, sentence.ID, sentence.Text)

	uploadPath, err := s.store.SaveTemp(ctx, t.ID+".upload", input)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	rawPath, buf, err := s.normalize(ctx, t.ID, uploadPath, format)
	if err != nil {
		_ = s.store.CleanupTemp(ctx, []string{uploadPath})
		return nil, err
	}
	if rawPath != uploadPath {
		_ = s.store.CleanupTemp(ctx, []string{uploadPath})
	}

	return s.register(ctx, t, rawPath, buf)
}

// RecordTake stores captured samples as a new take of a sentence.
// buf must already be in the dataset format.
func (s *Service) RecordTake(ctx context.Context, name, sentenceID string, buf audio.Buffer) (*Take, error) {
	sess, sentence, err := s.sentence(name, sentenceID)
	if err != nil {
		return nil, err
	}
	if want := sess.Config().Format(); buf.Format != want {
		return nil, fmt.Errorf("%w: got %s, dataset records %s", audio.ErrFormatMismatch, buf.Format, want)
	}
	t := New(name, sentence.ID, sentence.Text)

	rawPath, err := s.writeScratch(ctx, t.ID+".wav", func(p string) error {
		return audio.WriteWAVFile(p, buf)
	})
	if err != nil {
		return nil, err
	}
	return s.register(ctx, t, rawPath, buf)
}

func (s *Service) register(ctx context.Context, t *Take, rawPath string, buf audio.Buffer) (*Take, error) {
	t.SetRaw(rawPath, buf.Format, len(buf.Samples))
	if err := s.repo.Save(ctx, t); err != nil {
		_ = s.store.CleanupTemp(ctx, []string{rawPath})
		return nil, fmt.Errorf("save take: %w", err)
	}
	if s.metrics != nil {
		s.metrics.TakesCreated.Inc()
	}

	s.logger.Info("take recorded",
		slog.String("take_id", t.ID),
		slog.String("dataset", t.Dataset),
		slog.String("sentence_id", t.SentenceID),
		slog.Duration("duration", buf.Duration()),
	)
	return t.Clone(), nil
}

func (s *Service) sentence(name, sentenceID string) (*dataset.Session, dataset.Sentence, error) {
	sess, err := s.Session(name)
	if err != nil {
		return nil, dataset.Sentence{}, err
	}
	sentence, err := sess.Sentence(sentenceID)
	if err != nil {
		return nil, dataset.Sentence{}, err
	}
	return sess, sentence, nil
}

// normalize returns a scratch WAV path holding the upload in format.
func (s *Service) normalize(ctx context.Context, takeID, uploadPath string, format audio.Format) (string, audio.Buffer, error) {
	buf, err := s.loadWAV(ctx, uploadPath)
	if err == nil && buf.Format == format {
		return uploadPath, buf, nil
	}
	if s.transcoder == nil {
		if err == nil {
			err = fmt.Errorf("%w: got %s, dataset records %s", audio.ErrFormatMismatch, buf.Format, format)
		}
		return "", audio.Buffer{}, fmt.Errorf("%w: %w", ErrUnsupportedAudio, err)
	}

	s.logger.Debug("transcoding upload",
		slog.String("take_id", takeID),
		slog.String("format", format.String()),
	)

	rawPath, err := s.store.SaveTemp(ctx, takeID+".wav", bytes.NewReader(nil))
	if err != nil {
		return "", audio.Buffer{}, fmt.Errorf("reserve scratch file: %w", err)
	}
	if err := s.transcoder.ToWAV(ctx, uploadPath, rawPath, format); err != nil {
		_ = s.store.CleanupTemp(ctx, []string{rawPath})
		return "", audio.Buffer{}, fmt.Errorf("%w: %w", ErrUnsupportedAudio, err)
	}

	buf, err = s.loadWAV(ctx, rawPath)
	if err != nil {
		_ = s.store.CleanupTemp(ctx, []string{rawPath})
		return "", audio.Buffer{}, fmt.Errorf("read transcoded take: %w", err)
	}
	return rawPath, buf, nil
}

func (s *Service) loadWAV(ctx context.Context, p string) (audio.Buffer, error) {
	pcm, err := s.loadPCM(ctx, p)
	if err != nil {
		return audio.Buffer{}, err
	}
	return audio.Buffer{Format: pcm.Format, Samples: pcm.Floats()}, nil
}

func (s *Service) loadPCM(ctx context.Context, p string) (audio.PCM, error) {
	rc, err := s.store.LoadTemp(ctx, p)
	if err != nil {
		return audio.PCM{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return audio.PCM{}, fmt.Errorf("read scratch file: %w", err)
	}
	return audio.ReadPCM(bytes.NewReader(data))
}

// writeScratch reserves a scratch file and fills it with write.
func (s *Service) writeScratch(ctx context.Context, name string, write func(path string) error) (string, error) {
	p, err := s.store.SaveTemp(ctx, name, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("reserve scratch file: %w", err)
	}
	if err := write(p); err != nil {
		_ = s.store.CleanupTemp(ctx, []string{p})
		return "", err
	}
	return p, nil
}

// SaveTake trims the take, writes it into its dataset as <sentence>.wav,
// appends the metadata line and mirrors both files when a mirror is
// configured. Mirror failures are logged; the take stays saved locally.
func (s *Service) SaveTake(ctx context.Context, takeID string) (*Take, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	t, err := s.repo.FindByID(ctx, takeID)
	if err != nil {
		return nil, err
	}
	if t.IsTerminal() {
		return nil, fmt.Errorf("%w: take is %s", ErrInvalidTransition, t.GetStatus())
	}

	sess, err := s.Session(t.Dataset)
	if err != nil {
		return nil, err
	}

	raw, err := s.loadPCM(ctx, t.RawPath)
	if err != nil {
		return nil, fmt.Errorf("load take audio: %w", err)
	}

	// Detection runs on normalized samples; the kept range is cut from the
	// integer PCM so saved samples are bit-identical to the recording.
	// Untrimmed takes are committed as the raw file itself.
	start, end, trimmed := audio.TrimBounds(raw.Floats(), s.threshold)
	commitPath := t.RawPath
	kept := len(raw.Data)
	if trimmed {
		out := raw.Slice(start, end+1)
		trimmedPath, err := s.writeScratch(ctx, t.ID+".trimmed.wav", func(p string) error {
			return audio.WritePCMFile(p, out)
		})
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = s.store.CleanupTemp(context.WithoutCancel(ctx), []string{trimmedPath})
		}()
		commitPath = trimmedPath
		kept = len(out.Data)
	}

	outputPath, err := s.commit(ctx, sess, t.SentenceID, commitPath)
	if err != nil {
		return nil, fmt.Errorf("commit take: %w", err)
	}

	mirrorURL := s.publish(ctx, t, outputPath, sess.Ledger().Path())

	if err := t.MarkSaved(outputPath, mirrorURL, kept, !trimmed); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save take: %w", err)
	}
	if err := s.store.CleanupTemp(ctx, []string{t.RawPath}); err != nil {
		s.logger.Warn("failed to clean up raw take",
			slog.String("take_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
	s.retireSiblings(ctx, t)

	if s.metrics != nil {
		s.metrics.TakesSaved.Inc()
		s.metrics.RecordTrim(len(raw.Data), kept, !trimmed)
	}
	s.logger.Info("take saved",
		slog.String("take_id", t.ID),
		slog.String("dataset", t.Dataset),
		slog.String("sentence_id", t.SentenceID),
		slog.String("output", outputPath),
		slog.Int("original_samples", len(raw.Data)),
		slog.Int("trimmed_samples", kept),
		slog.Bool("fallback", !trimmed),
	)
	return t.Clone(), nil
}

func (s *Service) commit(ctx context.Context, sess *dataset.Session, sentenceID, p string) (string, error) {
	rc, err := s.store.LoadTemp(ctx, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return sess.Commit(sentenceID, rc)
}

// retireSiblings discards the other takes still awaiting review for the
// sentence saved just committed.
func (s *Service) retireSiblings(ctx context.Context, saved *Take) {
	takes, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list takes", slog.String("error", err.Error()))
		return
	}
	for _, other := range takes {
		if other.ID == saved.ID || other.Dataset != saved.Dataset ||
			other.SentenceID != saved.SentenceID || other.GetStatus() != StatusRecorded {
			continue
		}
		if _, err := s.discard(ctx, other); err != nil {
			s.logger.Warn("failed to discard superseded take",
				slog.String("take_id", other.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// publish mirrors the take and the dataset ledger and returns the take's
// remote URL, or "" when nothing was mirrored.
func (s *Service) publish(ctx context.Context, t *Take, outputPath, ledgerPath string) string {
	wavURL, err := s.publishFile(ctx, path.Join(t.Dataset, "wavs", t.SentenceID+".wav"), outputPath)
	if errors.Is(err, storage.ErrMirrorNotConfigured) {
		return ""
	}
	if err != nil {
		s.publishFailed(t, outputPath, err)
		return ""
	}
	if _, err := s.publishFile(ctx, path.Join(t.Dataset, dataset.MetadataFile), ledgerPath); err != nil {
		s.publishFailed(t, ledgerPath, err)
	}
	return wavURL
}

func (s *Service) publishFile(ctx context.Context, key, p string) (string, error) {
	f, err := os.Open(p) // #nosec G304 - dataset file committed by this service
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.store.Publish(ctx, key, f)
}

func (s *Service) publishFailed(t *Take, p string, err error) {
	if s.metrics != nil {
		s.metrics.PublishFailures.Inc()
	}
	s.logger.Warn("failed to mirror dataset file",
		slog.String("take_id", t.ID),
		slog.String("file", p),
		slog.String("error", err.Error()),
	)
}

// DiscardTake throws a take away and removes its scratch audio.
func (s *Service) DiscardTake(ctx context.Context, takeID string) (*Take, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	t, err := s.repo.FindByID(ctx, takeID)
	if err != nil {
		return nil, err
	}
	return s.discard(ctx, t)
}

// discard expects opMu to be held.
func (s *Service) discard(ctx context.Context, t *Take) (*Take, error) {
	if err := t.Discard(); err != nil {
		return nil, fmt.Errorf("%w: take is %s", err, t.GetStatus())
	}
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save take: %w", err)
	}
	if err := s.store.CleanupTemp(ctx, []string{t.RawPath}); err != nil {
		s.logger.Warn("failed to clean up discarded take",
			slog.String("take_id", t.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.metrics != nil {
		s.metrics.TakesDiscarded.Inc()
	}
	s.logger.Info("take discarded",
		slog.String("take_id", t.ID),
		slog.String("sentence_id", t.SentenceID),
	)
	return t.Clone(), nil
}

// GetTake retrieves a take by ID.
func (s *Service) GetTake(ctx context.Context, takeID string) (*Take, error) {
	return s.repo.FindByID(ctx, takeID)
}

// ListTakes returns all known takes, oldest first.
func (s *Service) ListTakes(ctx context.Context) ([]*Take, error) {
	return s.repo.List(ctx)
}

// OpenAudio opens the take's WAV for playback: the raw take while it awaits
// review, the trimmed file once saved.
// The caller is responsible for closing the returned ReadCloser.
func (s *Service) OpenAudio(ctx context.Context, takeID string) (io.ReadCloser, error) {
	t, err := s.repo.FindByID(ctx, takeID)
	if err != nil {
		return nil, err
	}

	switch t.GetStatus() {
	case StatusRecorded:
		return s.store.LoadTemp(ctx, t.RawPath)
	case StatusSaved:
		f, err := os.Open(t.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("open saved take: %w", err)
		}
		return f, nil
	default:
		return nil, ErrAudioUnavailable
	}
}
