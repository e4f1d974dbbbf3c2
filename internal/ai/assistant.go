package ai

import "context"

// CandidateScore is the structured fit assessment the LLM returns for one
// candidate. Field names follow the JSON keys requested in the prompt.
type CandidateScore struct {
	CandidateName           string  `json:"CandidateName" mapstructure:"CandidateName"`
	CurrentTitle            string  `json:"CurrentTitle" mapstructure:"CurrentTitle"`
	CurrentCompany          string  `json:"CurrentCompany" mapstructure:"CurrentCompany"`
	IndustryExperience      string  `json:"IndustryExperience" mapstructure:"IndustryExperience"`
	LeadershipExperience    string  `json:"LeadershipExperience" mapstructure:"LeadershipExperience"`
	TrackRecordOfSuccess    string  `json:"TrackRecordOfSuccess" mapstructure:"TrackRecordOfSuccess"`
	PrivateEquityExperience string  `json:"PrivateEquityExperience" mapstructure:"PrivateEquityExperience"`
	FunctionalExpertise     string  `json:"FunctionalExpertise" mapstructure:"FunctionalExpertise"`
	CompanySizeExperience   string  `json:"CompanySizeExperience" mapstructure:"CompanySizeExperience"`
	TenureStability         string  `json:"TenureStability" mapstructure:"TenureStability"`
	MatchScore              float64 `json:"MatchScore" mapstructure:"MatchScore"`
	Reasoning               string  `json:"Reasoning" mapstructure:"Reasoning"`
}

// Criterion is one yes/no-with-reason line of a CandidateScore.
type Criterion struct {
	Name   string
	Answer string
}

// Criteria lists the seven evaluation criteria in prompt order.
func (c *CandidateScore) Criteria() []Criterion {
	return []Criterion{
		{Name: "Industry Experience", Answer: c.IndustryExperience},
		{Name: "Leadership Experience", Answer: c.LeadershipExperience},
		{Name: "Track Record of Success", Answer: c.TrackRecordOfSuccess},
		{Name: "Private Equity Experience", Answer: c.PrivateEquityExperience},
		{Name: "Functional Expertise", Answer: c.FunctionalExpertise},
		{Name: "Company Size Experience", Answer: c.CompanySizeExperience},
		{Name: "Tenure & Stability", Answer: c.TenureStability},
	}
}

// ScoreRequest pairs a hiring query with one flattened candidate resume.
type ScoreRequest struct {
	Query         string
	CandidateText string
}

// Scorer produces a CandidateScore for a single candidate.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*CandidateScore, error)
}

// Generator sends a prompt to a language model and returns its text output.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
