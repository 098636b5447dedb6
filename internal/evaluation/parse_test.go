package evaluation

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		score      int
		summary    string
		strengths  []string
		weaknesses []string
	}{
		{
			name:       "plain object",
			text:       `{"score": 8, "summary": "Solid.", "strengths": ["mentions shielding"], "weaknesses": ["no numbers"]}`,
			score:      8,
			summary:    "Solid.",
			strengths:  []string{"mentions shielding"},
			weaknesses: []string{"no numbers"},
		},
		{
			name:    "think block before answer",
			text:    "<think>The student says {score: 2}... hmm</think>\n{\"score\": 6, \"summary\": \"ok\"}",
			score:   6,
			summary: "ok",
		},
		{
			name:    "fenced json wins over prose object",
			text:    "Here is a {draft}.\n```json\n{\"score\": 9, \"feedback\": \"great\"}\n```",
			score:   9,
			summary: "great",
		},
		{
			name:       "object embedded in prose",
			text:       `Sure! {"evaluation": 4, "bad": "too vague"} Hope this helps.`,
			score:      4,
			weaknesses: []string{"too vague"},
		},
		{
			name:       "german aliases",
			text:       `{"quality_score": 7, "feedback": "Gut", "good": ["Kernkraft"], "verbesserungen": ["Coulombkraft fehlt"]}`,
			score:      7,
			summary:    "Gut",
			strengths:  []string{"Kernkraft"},
			weaknesses: []string{"Coulombkraft fehlt"},
		},
		{
			name:  "string score out of ten",
			text:  `{"score": "7/10"}`,
			score: 7,
		},
		{
			name:  "fractional score rounds",
			text:  `{"score": 6.5}`,
			score: 7,
		},
		{
			name:    "braces inside strings",
			text:    `{"score": 3, "summary": "uses {curly} words"}`,
			score:   3,
			summary: "uses {curly} words",
		},
		{
			name:    "upper case keys",
			text:    `{"Score": 5, "Summary": "fine"}`,
			score:   5,
			summary: "fine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.text)
			if err != nil {
				t.Fatalf("ParseVerdict() error = %v", err)
			}
			if v.Score != tt.score {
				t.Errorf("Score = %d; want %d", v.Score, tt.score)
			}
			if v.Summary != tt.summary {
				t.Errorf("Summary = %q; want %q", v.Summary, tt.summary)
			}
			if len(tt.strengths) > 0 && !reflect.DeepEqual(v.Strengths, tt.strengths) {
				t.Errorf("Strengths = %v; want %v", v.Strengths, tt.strengths)
			}
			if len(tt.weaknesses) > 0 && !reflect.DeepEqual(v.Weaknesses, tt.weaknesses) {
				t.Errorf("Weaknesses = %v; want %v", v.Weaknesses, tt.weaknesses)
			}
		})
	}
}

func TestParseVerdict_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"prose only", "The student did well, I'd give 8 out of 10."},
		{"think only", "<think>{\"score\": 5}</think>"},
		{"missing score", `{"summary": "no score here"}`},
		{"null score", `{"score": null}`},
		{"score too high", `{"score": 11}`},
		{"score negative", `{"score": -1}`},
		{"score not numeric", `{"score": "excellent"}`},
		{"score is object", `{"score": {"value": 5}}`},
		{"truncated", `{"score": 5, "summary": "cut off`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.text)
			if !errors.Is(err, ErrMalformedVerdict) {
				t.Fatalf("ParseVerdict() error = %v; want ErrMalformedVerdict", err)
			}
			if v != nil {
				t.Errorf("ParseVerdict() = %+v; want nil", v)
			}
		})
	}
}
