// Package take provides the Take aggregate: one spoken rendition of a dataset
// sentence, from the moment it is captured until it is written into the
// dataset or thrown away.
package take

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/speech-dataset-maker/internal/audio"
	"github.com/maauso/speech-dataset-maker/internal/take/id"
)

// Status represents the current state of a Take.
type Status string

const (
	// StatusRecorded indicates the take is held in scratch storage awaiting review.
	StatusRecorded Status = "RECORDED"
	// StatusSaved indicates the take was trimmed and committed to its dataset.
	StatusSaved Status = "SAVED"
	// StatusDiscarded indicates the speaker rejected the take.
	StatusDiscarded Status = "DISCARDED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusRecorded:  {StatusSaved, StatusDiscarded},
	StatusSaved:     {},
	StatusDiscarded: {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Take is a single recording of a sentence.
type Take struct {
	mu sync.RWMutex

	// ID is the unique identifier for this take.
	ID string
	// Dataset is the name of the dataset the sentence belongs to.
	Dataset string
	// SentenceID identifies the sentence that was read.
	SentenceID string
	// Text is the sentence text at the time of recording.
	Text string
	// Status is the current take state.
	Status Status
	// Format is the dataset format the raw audio was stored in.
	Format audio.Format
	// RawPath is the scratch WAV holding the untrimmed take.
	RawPath string
	// OutputPath is where the trimmed take was written in the dataset.
	OutputPath string
	// MirrorURL is the remote copy of the trimmed take, if mirrored.
	MirrorURL string
	// OriginalSamples is the sample count before trimming.
	OriginalSamples int
	// TrimmedSamples is the sample count after trimming.
	TrimmedSamples int
	// Fallback is set when the take was too short to form a kept region and
	// was committed exactly as recorded.
	Fallback bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// New creates a RECORDED take with a generated ID.
func New(dataset, sentenceID, text string) *Take {
	return NewWithID(id.Generate(), dataset, sentenceID, text)
}

// NewWithID creates a RECORDED take with the given ID.
func NewWithID(takeID, dataset, sentenceID, text string) *Take {
	now := time.Now()
	return &Take{
		ID:         takeID,
		Dataset:    dataset,
		SentenceID: sentenceID,
		Text:       text,
		Status:     StatusRecorded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the take status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (t *Take) TransitionTo(status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(status)
}

func (t *Take) transitionLocked(status Status) error {
	if !canTransition(t.Status, status) {
		return ErrInvalidTransition
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	t.CompletedAt = t.UpdatedAt
	return nil
}

// SetRaw records the scratch file and format of the untrimmed take.
func (t *Take) SetRaw(path string, format audio.Format, samples int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.RawPath = path
	t.Format = format
	t.OriginalSamples = samples
	t.UpdatedAt = time.Now()
}

// MarkSaved moves the take to SAVED and stores the trim outcome.
func (t *Take) MarkSaved(outputPath, mirrorURL string, trimmedSamples int, fallback bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(StatusSaved); err != nil {
		return err
	}
	t.OutputPath = outputPath
	t.MirrorURL = mirrorURL
	t.TrimmedSamples = trimmedSamples
	t.Fallback = fallback
	return nil
}

// Discard moves the take to DISCARDED.
func (t *Take) Discard() error {
	return t.TransitionTo(StatusDiscarded)
}

// GetStatus returns the current take status (thread-safe).
func (t *Take) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// IsTerminal returns true once the take was saved or discarded.
func (t *Take) IsTerminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status == StatusSaved || t.Status == StatusDiscarded
}

// Clone creates a copy of the take for safe reads.
func (t *Take) Clone() *Take {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Take{
		ID:              t.ID,
		Dataset:         t.Dataset,
		SentenceID:      t.SentenceID,
		Text:            t.Text,
		Status:          t.Status,
		Format:          t.Format,
		RawPath:         t.RawPath,
		OutputPath:      t.OutputPath,
		MirrorURL:       t.MirrorURL,
		OriginalSamples: t.OriginalSamples,
		TrimmedSamples:  t.TrimmedSamples,
		Fallback:        t.Fallback,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
	}
}
