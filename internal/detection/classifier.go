package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
)

// Verdict is the validated output of the classification engine.
type Verdict struct {
	IsIncident    bool     `json:"is_incident"`
	Confidence    float64  `json:"confidence"`
	SeverityLevel int      `json:"severity_level"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Keywords      []string `json:"keywords"`
}

// SafeDefaultVerdict is used whenever the engine fails or answers with
// something that does not validate. It never creates an incident.
func SafeDefaultVerdict() Verdict {
	return Verdict{
		IsIncident:    false,
		Confidence:    0,
		SeverityLevel: 1,
		Title:         "Detection Error",
		Description:   "Failed to analyze the messages",
		Keywords:      []string{},
	}
}

// ConfidenceBand renders a confidence score as a human-readable band.
func ConfidenceBand(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "explicit report"
	case confidence >= 0.7:
		return "likely"
	case confidence >= 0.5:
		return "possible"
	default:
		return "unlikely"
	}
}

// Completer sends a prompt to the classification engine and returns its raw
// text answer.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Classifier turns an aggregated thread into a verdict. Implementations never
// fail; they degrade to SafeDefaultVerdict.
type Classifier interface {
	Classify(ctx context.Context, thread []ThreadMessage) Verdict
}

const classifierSystemPrompt = "You are an expert in operating production systems. Analyze the given information accurately and answer strictly in the requested JSON format."

const classifierPromptTemplate = `Analyze the following chat thread and decide whether it discusses a system incident.

Criteria:
- keywords such as error, down, outage, failure, bug
- problem reports from users
- reports of abnormal system behaviour
- reports of degraded performance

Conversation:
%s

Answer with a single JSON object of this exact shape:
{
  "is_incident": boolean,
  "confidence": number between 0.0 and 1.0,
  "severity_level": integer 1-4,
  "title": "short title",
  "description": "summary of the incident",
  "keywords": ["detected keywords"]
}

Severity levels:
1: low - minor issue, a single user affected
2: medium - partial feature problem, several users affected
3: high - major feature problem, many users affected
4: critical - system-wide outage, all users affected`

// BuildPrompt renders the thread as "[ts] author: text" lines inside the
// fixed classification prompt.
func BuildPrompt(thread []ThreadMessage) string {
	var b strings.Builder
	for i, m := range thread {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := m.DisplayName
		if name == "" {
			name = m.AuthorID
		}
		fmt.Fprintf(&b, "[%s] %s: %s", m.TS, name, m.Text)
	}
	return fmt.Sprintf(classifierPromptTemplate, b.String())
}

// Gateway is the Classifier backed by a Completer.
type Gateway struct {
	engine Completer
}

// NewGateway creates a classifier gateway.
func NewGateway(engine Completer) *Gateway {
	return &Gateway{engine: engine}
}

// Classify submits the thread once. Transport errors and invalid answers are
// not retried.
func (g *Gateway) Classify(ctx context.Context, thread []ThreadMessage) Verdict {
	raw, err := g.engine.Complete(ctx, classifierSystemPrompt, BuildPrompt(thread))
	if err != nil {
		slog.Warn("classification call failed, using safe default", "messages", len(thread), "error", err)
		return SafeDefaultVerdict()
	}

	v, err := ParseVerdict(raw)
	if err != nil {
		slog.Warn("classification response rejected, using safe default", "error", err)
		return SafeDefaultVerdict()
	}
	return v
}

var errVerdict = errors.New("invalid verdict")

var verdictFields = []string{"is_incident", "confidence", "severity_level", "title", "description", "keywords"}

// ParseVerdict decodes and validates a raw engine answer. Every field is
// required and must have its declared JSON type; no coercion is attempted.
// Keys outside the verdict shape are rejected.
func ParseVerdict(raw string) (Verdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return Verdict{}, fmt.Errorf("%w: not a JSON object: %v", errVerdict, err)
	}
	for name := range fields {
		if !slices.Contains(verdictFields, name) {
			return Verdict{}, fmt.Errorf("%w: unexpected field %q", errVerdict, name)
		}
	}
	for _, name := range verdictFields {
		value, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return Verdict{}, fmt.Errorf("%w: missing field %q", errVerdict, name)
		}
	}

	var (
		v        Verdict
		severity float64
	)
	decoders := []struct {
		name string
		dst  any
	}{
		{"is_incident", &v.IsIncident},
		{"confidence", &v.Confidence},
		{"severity_level", &severity},
		{"title", &v.Title},
		{"description", &v.Description},
		{"keywords", &v.Keywords},
	}
	for _, d := range decoders {
		if err := json.Unmarshal(fields[d.name], d.dst); err != nil {
			return Verdict{}, fmt.Errorf("%w: field %q: %v", errVerdict, d.name, err)
		}
	}

	if math.IsNaN(v.Confidence) || v.Confidence < 0 || v.Confidence > 1 {
		return Verdict{}, fmt.Errorf("%w: confidence %v outside [0,1]", errVerdict, v.Confidence)
	}
	if severity != math.Trunc(severity) || severity < 1 || severity > 4 {
		return Verdict{}, fmt.Errorf("%w: severity_level %v not in {1,2,3,4}", errVerdict, severity)
	}
	v.SeverityLevel = int(severity)

	v.Title = strings.TrimSpace(v.Title)
	v.Description = strings.TrimSpace(v.Description)
	if v.IsIncident && v.Title == "" {
		return Verdict{}, fmt.Errorf("%w: incident verdict without a title", errVerdict)
	}
	v.Keywords = dedupeKeywords(v.Keywords)
	return v, nil
}

func dedupeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Map returns the verdict as a generic map for storage as an opaque blob.
func (v Verdict) Map() map[string]interface{} {
	keywords := make([]interface{}, len(v.Keywords))
	for i, k := range v.Keywords {
		keywords[i] = k
	}
	return map[string]interface{}{
		"is_incident":    v.IsIncident,
		"confidence":     v.Confidence,
		"severity_level": v.SeverityLevel,
		"title":          v.Title,
		"description":    v.Description,
		"keywords":       keywords,
	}
}
