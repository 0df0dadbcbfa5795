package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Static errors for recording sessions.
var (
	// ErrNoSentences is returned when every sentence of a dataset is recorded.
	ErrNoSentences = errors.New("no sentence remaining")
	// ErrSentenceNotFound is returned for IDs that are unknown or already recorded.
	ErrSentenceNotFound = errors.New("sentence not found")
)

// Session tracks which sentences of a dataset are still to be recorded and
// commits finished takes into the dataset directory.
type Session struct {
	mu        sync.RWMutex
	cfg       *Config
	remaining *Sentences
	recorded  map[string]bool
	ledger    *Ledger
}

// Open prepares the dataset directories, scans the wavs directory for takes
// already recorded, loads the sentences still to do and ensures the metadata
// ledger exists.
func Open(cfg *Config) (*Session, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil { // #nosec G301
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.MkdirAll(cfg.WavsDir, 0755); err != nil { // #nosec G301
		return nil, fmt.Errorf("create wavs directory: %w", err)
	}

	recorded, err := scanRecorded(cfg.WavsDir)
	if err != nil {
		return nil, err
	}

	remaining := NewSentences()
	f, err := os.Open(cfg.SentencesFile)
	switch {
	case err == nil:
		remaining, err = ParseSentences(f, func(id string) bool { return recorded[id] })
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("open sentences file: %w", err)
	}

	ledger, err := OpenLedger(cfg.MetadataPath())
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:       cfg,
		remaining: remaining,
		recorded:  recorded,
		ledger:    ledger,
	}, nil
}

// scanRecorded returns the IDs of all *.wav files in dir.
func scanRecorded(dir string) (map[string]bool, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return nil, fmt.Errorf("scan wavs directory: %w", err)
	}
	recorded := make(map[string]bool, len(matches))
	for _, m := range matches {
		recorded[strings.TrimSuffix(filepath.Base(m), ".wav")] = true
	}
	return recorded, nil
}

// Config returns the dataset descriptor.
func (s *Session) Config() *Config {
	return s.cfg
}

// Ledger returns the dataset's metadata ledger.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// Current returns the next sentence to record.
func (s *Session) Current() (Sentence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sentence, ok := s.remaining.First()
	if !ok {
		return Sentence{}, ErrNoSentences
	}
	return sentence, nil
}

// Sentence returns a sentence that is still to be recorded.
func (s *Session) Sentence(id string) (Sentence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sentence, ok := s.remaining.Get(id)
	if !ok {
		return Sentence{}, fmt.Errorf("%w: %q", ErrSentenceNotFound, id)
	}
	return sentence, nil
}

// Remaining returns how many sentences are left.
func (s *Session) Remaining() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remaining.Len()
}

// Recorded returns how many takes exist in the wavs directory.
func (s *Session) Recorded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recorded)
}

// WavPath returns where the take for a sentence ID is stored.
func (s *Session) WavPath(id string) string {
	return filepath.Join(s.cfg.WavsDir, id+".wav")
}

// Commit stores wav as the take for sentence id, appends the ledger line and
// removes the sentence from the remaining set. An existing file for the same
// ID is replaced.
func (s *Session) Commit(id string, wav io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sentence, ok := s.remaining.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSentenceNotFound, id)
	}

	dst := s.WavPath(id)
	if err := writeFileAtomic(dst, wav); err != nil {
		return "", err
	}

	if err := s.ledger.Append(filepath.Base(dst), sentence.Text); err != nil {
		return "", err
	}

	s.remaining.Remove(id)
	s.recorded[id] = true
	return dst, nil
}

// writeFileAtomic writes r to a temp file next to dst and renames it in place.
func writeFileAtomic(dst string, r io.Reader) error {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"_*")
	if err != nil {
		return fmt.Errorf("create take file: %w", err)
	}
	tmp := f.Name()

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write take file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close take file: %w", err)
	}
	if err := os.Chmod(tmp, 0644); err != nil { // #nosec G302
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod take file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move take file: %w", err)
	}
	return nil
}
