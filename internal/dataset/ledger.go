package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// MetadataFile is the name of the ledger inside a dataset's output directory.
const MetadataFile = "Metadata.csv"

// LedgerEntry is one line of the metadata ledger.
type LedgerEntry struct {
	File string
	Text string
}

// Ledger is the append-only metadata file mapping saved audio files to the
// sentence text they voice. Lines look like "<file>|<text>".
type Ledger struct {
	mu   sync.Mutex
	path string
}

// OpenLedger returns the ledger at path, creating an empty file if missing.
func OpenLedger(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644) // #nosec G302 G304 - dataset output is meant to be shared
	if err != nil {
		return nil, fmt.Errorf("create metadata ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close metadata ledger: %w", err)
	}
	return &Ledger{path: path}, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append writes one entry at the end of the ledger.
func (l *Ledger) Append(file, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec G302 G304
	if err != nil {
		return fmt.Errorf("open metadata ledger: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%s|%s\n", file, text); err != nil {
		_ = f.Close()
		return fmt.Errorf("append metadata ledger: %w", err)
	}
	return f.Close()
}

// Entries reads back every entry in the ledger.
func (l *Ledger) Entries() ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open metadata ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []LedgerEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		file, text, _ := strings.Cut(line, "|")
		entries = append(entries, LedgerEntry{File: file, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metadata ledger: %w", err)
	}
	return entries, nil
}
