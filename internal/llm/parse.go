package llm

import (
	"encoding/json"
	"strings"
)

// NeutralConfidence is assigned when the model gave no usable confidence.
const NeutralConfidence = 0.5

// ParseStage names the pipeline stage that produced a Structured value.
type ParseStage string

const (
	StageStrict    ParseStage = "strict"
	StageBraceScan ParseStage = "brace_scan"
	StagePlainText ParseStage = "plain_text"
	StageEmpty     ParseStage = "empty"
)

// Structured is the classification a model returns for a guest message.
type Structured struct {
	Intent     string     `json:"intent"`
	Action     string     `json:"action"`
	Response   string     `json:"response"`
	Confidence float64    `json:"confidence"`
	Topic      string     `json:"topic,omitempty"`
	Workflow   string     `json:"workflow,omitempty"`
	Stage      ParseStage `json:"-"`
}

// Usable reports whether the value carries anything the caller can act on.
func (s Structured) Usable() bool {
	return s.Stage != StageEmpty
}

type wireStructured struct {
	Intent     string   `json:"intent"`
	Action     string   `json:"action"`
	Response   string   `json:"response"`
	Confidence *float64 `json:"confidence"`
	Topic      string   `json:"topic"`
	Workflow   string   `json:"workflow"`
}

// ParseStructured runs strict parsing, brace-scan recovery, plain-text
// fallback and finally the empty sentinel.
func ParseStructured(raw string) Structured {
	if s, ok := ParseStrict(raw); ok {
		return s
	}
	if s, ok := ScanBraces(raw); ok {
		return s
	}
	if s, ok := PlainText(raw); ok {
		return s
	}
	return Empty()
}

// ParseStrict accepts raw only if the whole trimmed text is one JSON object.
func ParseStrict(raw string) (Structured, bool) {
	s, ok := decodeObject(strings.TrimSpace(raw))
	if !ok {
		return Structured{}, false
	}
	s.Stage = StageStrict
	return s, true
}

// ScanBraces recovers the last complete JSON object embedded in noisy text,
// such as prose around the object or a markdown code fence.
func ScanBraces(raw string) (Structured, bool) {
	for end := strings.LastIndexByte(raw, '}'); end >= 0; end = strings.LastIndexByte(raw[:end], '}') {
		for start := strings.IndexByte(raw, '{'); start >= 0 && start < end; {
			if s, ok := decodeObject(raw[start : end+1]); ok {
				s.Stage = StageBraceScan
				return s, true
			}
			next := strings.IndexByte(raw[start+1:], '{')
			if next < 0 {
				break
			}
			start += next + 1
		}
	}
	return Structured{}, false
}

// PlainText treats non-JSON prose as the response itself.
func PlainText(raw string) (Structured, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || strings.ContainsAny(text, "{}") {
		return Structured{}, false
	}
	return Structured{Response: text, Confidence: NeutralConfidence, Stage: StagePlainText}, true
}

// Empty is the sentinel returned when nothing could be recovered.
func Empty() Structured {
	return Structured{Confidence: NeutralConfidence, Stage: StageEmpty}
}

func decodeObject(text string) (Structured, bool) {
	if !strings.HasPrefix(text, "{") {
		return Structured{}, false
	}
	var w wireStructured
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return Structured{}, false
	}
	conf := NeutralConfidence
	if w.Confidence != nil {
		conf = clamp01(*w.Confidence)
	}
	return Structured{
		Intent:     strings.TrimSpace(w.Intent),
		Action:     strings.TrimSpace(w.Action),
		Response:   w.Response,
		Confidence: conf,
		Topic:      strings.TrimSpace(w.Topic),
		Workflow:   strings.TrimSpace(w.Workflow),
	}, true
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
