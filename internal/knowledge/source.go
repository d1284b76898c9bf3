// Package knowledge serves static answers to common guest questions from a
// YAML file.
package knowledge

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"hostel-agent/internal/domain"
)

// ErrUnknownTopic is returned for topics with no answer.
var ErrUnknownTopic = errors.New("knowledge: unknown topic")

// Topic is one answerable subject.
type Topic struct {
	ID       string       `yaml:"id"`
	Keywords []string     `yaml:"keywords,omitempty"`
	Answer   domain.Texts `yaml:"answer"`
}

type document struct {
	Topics []Topic `yaml:"topics"`
}

// Source answers by topic id.
type Source struct {
	topics map[string]Topic
	order  []string
}

// New builds a Source from topics.
func New(topics []Topic) (*Source, error) {
	s := &Source{topics: make(map[string]Topic, len(topics))}
	for _, t := range topics {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, errors.New("knowledge: topic id is required")
		}
		if _, dup := s.topics[id]; dup {
			return nil, fmt.Errorf("knowledge: duplicate topic %q", id)
		}
		if t.Answer.Pick(domain.DefaultLanguage) == "" {
			return nil, fmt.Errorf("knowledge: topic %q has no answer", id)
		}
		t.ID = id
		s.topics[id] = t
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)
	return s, nil
}

// LoadFile reads a knowledge YAML document.
func LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a knowledge YAML document.
func Parse(data []byte) (*Source, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("knowledge: parse yaml: %w", err)
	}
	return New(doc.Topics)
}

// Answer returns the answer for topic in lang.
func (s *Source) Answer(topic string, lang domain.Language) (string, error) {
	t, ok := s.topics[strings.TrimSpace(strings.ToLower(topic))]
	if !ok {
		t, ok = s.topics[strings.TrimSpace(topic)]
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	return t.Answer.Pick(lang), nil
}

// Match returns the first topic (by id) with a keyword contained in text.
func (s *Source) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, id := range s.order {
		for _, kw := range s.topics[id].Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
				return id, true
			}
		}
	}
	return "", false
}

// Topics returns the topic ids, sorted.
func (s *Source) Topics() []string {
	return append([]string(nil), s.order...)
}
