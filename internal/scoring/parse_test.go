package scoring

import (
	"errors"
	"strings"
	"testing"
)

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantScore float64
		wantName  string
		wantErr   bool
	}{
		{
			name:      "plain json",
			raw:       `{"CandidateName": "Jane Doe", "MatchScore": 90, "Reasoning": "Strong PE operator"}`,
			wantScore: 90,
			wantName:  "Jane Doe",
		},
		{
			name:      "fenced json",
			raw:       "```json\n{\"CandidateName\": \"Jane\", \"MatchScore\": 42.5}\n```",
			wantScore: 42.5,
			wantName:  "Jane",
		},
		{
			name:      "bare fence",
			raw:       "```\n{\"MatchScore\": 7}\n```",
			wantScore: 7,
			wantName:  "Unknown",
		},
		{
			name:      "numeric string score",
			raw:       `{"CandidateName": "Bob", "MatchScore": " 85 "}`,
			wantScore: 85,
			wantName:  "Bob",
		},
		{
			name:      "numeric name",
			raw:       `{"CandidateName": 12, "MatchScore": 1}`,
			wantScore: 1,
			wantName:  "12",
		},
		{name: "missing score", raw: `{"CandidateName": "Bob"}`, wantErr: true},
		{name: "null score", raw: `{"MatchScore": null}`, wantErr: true},
		{name: "empty score", raw: `{"MatchScore": ""}`, wantErr: true},
		{name: "word score", raw: `{"MatchScore": "high"}`, wantErr: true},
		{name: "bool score", raw: `{"MatchScore": true}`, wantErr: true},
		{name: "nan score", raw: `{"MatchScore": "NaN"}`, wantErr: true},
		{name: "infinite score", raw: `{"MatchScore": "Inf"}`, wantErr: true},
		{name: "not json", raw: `I think this candidate is great`, wantErr: true},
		{name: "json array", raw: `[{"MatchScore": 1}]`, wantErr: true},
		{name: "json null", raw: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			score, err := ParseResponse(tt.raw)
			if tt.wantErr {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected ParseError, got %v", err)
				}
				if parseErr.Raw != tt.raw {
					t.Fatalf("expected raw answer to be kept, got %q", parseErr.Raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if score.MatchScore != tt.wantScore {
				t.Fatalf("expected score %v, got %v", tt.wantScore, score.MatchScore)
			}
			if score.CandidateName != tt.wantName {
				t.Fatalf("expected name %q, got %q", tt.wantName, score.CandidateName)
			}
		})
	}
}

func TestParseResponseBooleanText(t *testing.T) {
	t.Parallel()

	score, err := ParseResponse(`{"MatchScore": 80, "IndustryExperience": true, "Reasoning": false, "CandidateName": false, "currentCompany": true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if score.IndustryExperience != "true" || score.Reasoning != "false" {
		t.Fatalf("expected booleans as words, got industry=%q reasoning=%q", score.IndustryExperience, score.Reasoning)
	}
	if score.CandidateName != "Unknown" || score.CurrentCompany != "Unknown" {
		t.Fatalf("expected boolean identity fields to fall back, got name=%q company=%q", score.CandidateName, score.CurrentCompany)
	}
}

func TestParseResponseDefaults(t *testing.T) {
	t.Parallel()

	score, err := ParseResponse(`{"MatchScore": 55, "CurrentTitle": "  ", "IndustryExperience": {"answer": "Yes"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if score.CurrentTitle != "Unknown" || score.CurrentCompany != "Unknown" {
		t.Fatalf("expected Unknown defaults, got title=%q company=%q", score.CurrentTitle, score.CurrentCompany)
	}
	if score.Reasoning != "" || score.TenureStability != "" {
		t.Fatalf("expected empty criteria defaults, got %+v", score)
	}
	if !strings.Contains(score.IndustryExperience, `"answer":"Yes"`) {
		t.Fatalf("expected structured criterion to be rendered as json, got %q", score.IndustryExperience)
	}
	if len(score.Criteria()) != 7 {
		t.Fatalf("expected seven criteria, got %d", len(score.Criteria()))
	}
}
