// Package scoring asks a language model to grade one candidate against a
// hiring query and parses the structured answer.
package scoring

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/operator-finder/internal/ai"
	"github.com/spigell/operator-finder/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	DefaultScoreScale   = 100
	defaultMaxLogLength = 200
)

// Config tunes prompt rendering and log verbosity.
type Config struct {
	// ScoreScale is the upper bound of MatchScore requested from the model.
	ScoreScale   int
	MaxLogLength int
}

// Scorer implements ai.Scorer on top of a Generator.
type Scorer struct {
	generator ai.Generator
	logger    *zap.Logger
	scale     int
	maxLogLen int
}

func New(generator ai.Generator, logger *zap.Logger, cfg Config) (*Scorer, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scale := cfg.ScoreScale
	if scale <= 0 {
		scale = DefaultScoreScale
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Scorer{generator: generator, logger: logger, scale: scale, maxLogLen: maxLogLen}, nil
}

// Score grades a single candidate. Generator failures are returned as
// *TransportError, unusable answers as *ParseError.
func (s *Scorer) Score(ctx context.Context, req ai.ScoreRequest) (*ai.CandidateScore, error) {
	prompt := BuildPrompt(req.Query, req.CandidateText, s.scale)
	candidate := candidateLabel(req.CandidateText)

	s.logger.Debug("scoring request",
		zap.String("candidate", candidate),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, &TransportError{Model: s.generator.Model(), Err: err}
	}

	s.logger.Debug("scoring response",
		zap.String("candidate", candidate),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	return ParseResponse(raw)
}

// BuildPrompt renders the scoring prompt with the query and the candidate text verbatim.
func BuildPrompt(query, candidateText string, scale int) string {
	replacer := strings.NewReplacer(
		"{{QUERY}}", query,
		"{{RESUME_TEXT}}", candidateText,
		"{{SCORE_MAX}}", strconv.Itoa(scale),
	)
	return replacer.Replace(promptTemplate)
}

func candidateLabel(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	return utils.TruncateForLog(first, 80)
}
