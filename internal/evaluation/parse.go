package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/radquest/radquest/internal/domain"
)

// ErrMalformedVerdict is returned when no usable verdict is found in a reply
var ErrMalformedVerdict = errors.New("malformed verdict")

var (
	thinkBlock   = regexp.MustCompile(`(?is)<think>.*?</think>`)
	fencedBlock  = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")
	scoreOutOf10 = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*(?:/\s*10)?\s*$`)
)

// Field aliases seen in judge replies
var (
	scoreKeys    = []string{"score", "evaluation", "quality_score"}
	summaryKeys  = []string{"summary", "feedback"}
	strengthKeys = []string{"strengths", "good"}
	weakKeys     = []string{"weaknesses", "bad", "suggestions", "verbesserungen"}
)

// ParseVerdict extracts a verdict from a judge reply. Reasoning blocks are
// dropped, a fenced json block wins over bare text, and otherwise the first
// balanced object is used. Replies without a valid 0-10 score are rejected.
func ParseVerdict(text string) (*domain.Verdict, error) {
	text = thinkBlock.ReplaceAllString(text, "")

	raw, ok := extractObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedVerdict)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	fields = lowerKeys(fields)

	scoreRaw, ok := lookup(fields, scoreKeys)
	if !ok {
		return nil, fmt.Errorf("%w: missing score", ErrMalformedVerdict)
	}
	score, err := parseScore(scoreRaw)
	if err != nil {
		return nil, err
	}

	v := &domain.Verdict{Score: score}
	if s, ok := lookup(fields, summaryKeys); ok {
		v.Summary = parseText(s)
	}
	for _, key := range strengthKeys {
		v.Strengths = append(v.Strengths, parseList(fields[key])...)
	}
	for _, key := range weakKeys {
		v.Weaknesses = append(v.Weaknesses, parseList(fields[key])...)
	}

	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	return v, nil
}

func extractObject(text string) (string, bool) {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if obj, ok := firstBalanced(m[1]); ok {
			return obj, true
		}
	}
	return firstBalanced(text)
}

// firstBalanced returns the first {...} span that is valid JSON
func firstBalanced(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		if obj, ok := balancedAt(text, start); ok && json.Valid([]byte(obj)) {
			return obj, true
		}
	}
	return "", false
}

// balancedAt returns the span from start to its matching closing brace,
// ignoring braces inside JSON strings
func balancedAt(text string, start int) (string, bool) {
	depth, inString, escaped := 0, false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func lowerKeys(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func lookup(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func parseScore(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: score is not a number", ErrMalformedVerdict)
		}
		m := scoreOutOf10.FindStringSubmatch(s)
		if m == nil {
			return 0, fmt.Errorf("%w: score %q is not a number", ErrMalformedVerdict, s)
		}
		f, err = strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: score %q is not a number", ErrMalformedVerdict, s)
		}
	}
	if math.IsNaN(f) || f < domain.MinVerdictScore || f > domain.MaxVerdictScore {
		return 0, fmt.Errorf("%w: score %v outside 0-10", ErrMalformedVerdict, f)
	}
	return int(math.Round(f)), nil
}

func parseText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(parseList(raw), " ")
}

// parseList accepts a list of strings or a single string
func parseList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return []string{strings.TrimSpace(s)}
	}
	return nil
}
