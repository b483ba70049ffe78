package classify

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

const (
	defaultReason     = "No reason provided"
	defaultConfidence = 0.5
)

// ParseError reports a model response that does not hold a usable
// classification.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse AI response: %s: %v", e.Reason, e.Err)
	}
	return "failed to parse AI response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseResponse extracts a classification from free model text. The payload
// is the first fenced block tagged yaml, yml or json, else the first fenced
// block opening a line, else the whole text. It must be a mapping with a category.
func ParseResponse(text string) (models.ClassificationResult, error) {
	payload := extractPayload(text)

	var doc any
	if err := yaml.Unmarshal([]byte(payload), &doc); err != nil {
		return models.ClassificationResult{}, &ParseError{Reason: "invalid YAML", Err: err}
	}
	fields, ok := doc.(map[string]any)
	if !ok {
		return models.ClassificationResult{}, &ParseError{Reason: "response is not a mapping"}
	}

	raw, ok := fields["category"]
	if !ok || raw == nil {
		return models.ClassificationResult{}, &ParseError{Reason: "missing 'category' field"}
	}
	category := strings.TrimSpace(fmt.Sprint(raw))
	if category == "" {
		return models.ClassificationResult{}, &ParseError{Reason: "empty 'category' field"}
	}

	result := models.ClassificationResult{
		Category:   category,
		Reason:     defaultReason,
		Confidence: defaultConfidence,
	}
	if r, ok := fields["reason"]; ok && r != nil {
		result.Reason = fmt.Sprint(r)
	}
	if c, ok := fields["confidence"]; ok && c != nil {
		conf, err := toFloat(c)
		if err != nil {
			return models.ClassificationResult{}, &ParseError{Reason: "invalid 'confidence' field", Err: err}
		}
		result.Confidence = clamp(conf)
	}
	return result, nil
}

func extractPayload(text string) string {
	if body, ok := taggedBlock(text); ok {
		return body
	}
	if body, ok := firstBlock(text); ok {
		return body
	}
	return strings.TrimSpace(text)
}

var dataTags = []string{"yaml", "yml", "json"}

// taggedBlock finds the first fence opened with a yaml, yml or json tag.
// Bare fences before it are ignored, and the body may begin on the tag line.
func taggedBlock(text string) (string, bool) {
	for i := 0; ; {
		j := strings.Index(text[i:], "```")
		if j == -1 {
			return "", false
		}
		start := i + j + 3
		for _, tag := range dataTags {
			end := start + len(tag)
			if end <= len(text) && strings.EqualFold(text[start:end], tag) && tagEnds(text, end) {
				return blockBody(text[end:]), true
			}
		}
		i = start
	}
}

func tagEnds(s string, i int) bool {
	if i == len(s) {
		return true
	}
	switch s[i] {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

// firstBlock returns the first fence that opens at the start of a line,
// dropping its info string. Inline fences in prose never open a block.
func firstBlock(text string) (string, bool) {
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "```") {
			rest := text[offset+len(line)-len(trimmed)+3:]
			if nl := strings.IndexByte(rest, '\n'); nl != -1 && !strings.ContainsAny(rest[:nl], " :{[`") {
				rest = rest[nl+1:]
			}
			return blockBody(rest), true
		}
		offset += len(line)
	}
	return "", false
}

// blockBody is s up to the closing fence, or all of s when unterminated.
func blockBody(s string) string {
	if end := strings.Index(s, "```"); end != -1 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
