package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Sentence is one line of text a speaker is asked to read.
type Sentence struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Sentences is a set of sentences keyed by ID that iterates in insertion
// order. It is not safe for concurrent use; Session guards it.
type Sentences struct {
	order []string
	text  map[string]string
}

// NewSentences creates an empty sentence set.
func NewSentences() *Sentences {
	return &Sentences{text: make(map[string]string)}
}

// Add inserts a sentence. It returns false and leaves the set unchanged when
// the ID is already present.
func (s *Sentences) Add(id, text string) bool {
	if _, ok := s.text[id]; ok {
		return false
	}
	s.text[id] = text
	s.order = append(s.order, id)
	return true
}

// Get returns the text of the sentence with the given ID.
func (s *Sentences) Get(id string) (Sentence, bool) {
	text, ok := s.text[id]
	if !ok {
		return Sentence{}, false
	}
	return Sentence{ID: id, Text: text}, true
}

// Remove deletes the sentence with the given ID.
func (s *Sentences) Remove(id string) bool {
	if _, ok := s.text[id]; !ok {
		return false
	}
	delete(s.text, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// First returns the earliest inserted sentence still in the set.
func (s *Sentences) First() (Sentence, bool) {
	if len(s.order) == 0 {
		return Sentence{}, false
	}
	id := s.order[0]
	return Sentence{ID: id, Text: s.text[id]}, true
}

// Len returns the number of sentences in the set.
func (s *Sentences) Len() int {
	return len(s.order)
}

// All returns the sentences in insertion order.
func (s *Sentences) All() []Sentence {
	out := make([]Sentence, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Sentence{ID: id, Text: s.text[id]})
	}
	return out
}

// ParseSentences reads a tab-separated sentence list: "<id>\t<text>" per
// line. Lines with fewer than two fields are ignored, the first occurrence of
// an ID wins, and IDs for which skip returns true are left out.
func ParseSentences(r io.Reader, skip func(id string) bool) (*Sentences, error) {
	s := NewSentences()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		id := parts[0]
		if skip != nil && skip(id) {
			continue
		}
		s.Add(id, parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sentences: %w", err)
	}

	return s, nil
}
