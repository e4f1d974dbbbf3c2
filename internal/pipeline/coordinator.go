// Package pipeline runs the query-time flow: retrieve candidates, score them
// concurrently and rank the survivors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/operator-finder/internal/ai"
	"github.com/spigell/operator-finder/internal/scoring"
	"github.com/spigell/operator-finder/internal/utils"
)

const (
	DefaultRetrieveK = 20
	DefaultTopN      = 5
	DefaultWorkers   = 8

	DropParse     = "parse"
	DropTransport = "transport"
	DropOther     = "other"
)

var ErrEmptyQuery = errors.New("query must not be empty")

var errScorerPanic = errors.New("scorer panicked")

type Config struct {
	RetrieveK int
	TopN      int
	Workers   int
	// Timeout bounds the whole run. Zero means no limit.
	Timeout time.Duration
}

// Drop records a retrieved candidate that could not be scored.
type Drop struct {
	// Position is the candidate's rank in the retrieval results.
	Position  int
	Candidate string
	Kind      string
	Err       error
}

// Stats counts candidates through each stage of a run.
type Stats struct {
	Retrieved int
	Scored    int
	Dropped   int
	Returned  int
	Elapsed   time.Duration
}

// RankedResultSet is the outcome of one query.
type RankedResultSet struct {
	Query      string
	Candidates []ai.CandidateScore
	Dropped    []Drop
	Stats      Stats
}

// Empty reports whether no candidate survived.
func (r *RankedResultSet) Empty() bool {
	return r == nil || len(r.Candidates) == 0
}

type Coordinator struct {
	retriever Retriever
	scorer    ai.Scorer
	logger    *zap.Logger
	cfg       Config
}

func NewCoordinator(retriever Retriever, scorer ai.Scorer, logger *zap.Logger, cfg Config) (*Coordinator, error) {
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = DefaultRetrieveK
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	return &Coordinator{retriever: retriever, scorer: scorer, logger: logger, cfg: cfg}, nil
}

func (c *Coordinator) Config() Config { return c.cfg }

type outcome struct {
	position int
	text     string
	score    *ai.CandidateScore
	err      error
}

// Run retrieves candidates for query, scores each one with at most
// cfg.Workers calls in flight and returns the TopN best. Scoring failures
// are reported in Dropped and never fail the run.
func (c *Coordinator) Run(ctx context.Context, query string) (*RankedResultSet, error) {
	started := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	texts, err := c.retriever.Retrieve(ctx, query, c.cfg.RetrieveK)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	result := &RankedResultSet{Query: query, Stats: Stats{Retrieved: len(texts)}}

	c.logger.Info("retrieved candidates",
		zap.Int("retrieved", len(texts)),
		zap.Int("retrieve_k", c.cfg.RetrieveK),
	)

	if len(texts) == 0 {
		result.Stats.Elapsed = time.Since(started)
		return result, nil
	}

	outcomes := make(chan outcome, len(texts))

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)

	for i, text := range texts {
		g.Go(func() error {
			outcomes <- c.score(ctx, query, i, text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	close(outcomes)

	type ranked struct {
		position int
		score    ai.CandidateScore
	}
	var scored []ranked

	for o := range outcomes {
		if o.err == nil && o.score == nil {
			o.err = errors.New("scorer returned no score")
		}
		if o.err != nil {
			drop := Drop{Position: o.position, Candidate: candidateLabel(o.text), Kind: dropKind(o.err), Err: o.err}
			result.Dropped = append(result.Dropped, drop)
			c.logger.Warn("dropping candidate",
				zap.Int("position", drop.Position),
				zap.String("candidate", drop.Candidate),
				zap.String("kind", drop.Kind),
				zap.Error(o.err),
			)
			continue
		}
		scored = append(scored, ranked{position: o.position, score: *o.score})
	}

	// Ties keep retrieval order so results do not depend on completion order.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score.MatchScore != scored[j].score.MatchScore {
			return scored[i].score.MatchScore > scored[j].score.MatchScore
		}
		return scored[i].position < scored[j].position
	})
	sort.Slice(result.Dropped, func(i, j int) bool { return result.Dropped[i].Position < result.Dropped[j].Position })

	if len(scored) > c.cfg.TopN {
		scored = scored[:c.cfg.TopN]
	}

	result.Candidates = make([]ai.CandidateScore, 0, len(scored))
	for _, r := range scored {
		result.Candidates = append(result.Candidates, r.score)
	}

	result.Stats.Scored = result.Stats.Retrieved - len(result.Dropped)
	result.Stats.Dropped = len(result.Dropped)
	result.Stats.Returned = len(result.Candidates)
	result.Stats.Elapsed = time.Since(started)

	c.logger.Info("ranking complete",
		zap.Int("scored", result.Stats.Scored),
		zap.Int("dropped", result.Stats.Dropped),
		zap.Int("returned", result.Stats.Returned),
		zap.Duration("elapsed", result.Stats.Elapsed),
	)

	return result, nil
}

// score runs one scoring call. A panic is reported as that candidate's error.
func (c *Coordinator) score(ctx context.Context, query string, position int, text string) (o outcome) {
	o = outcome{position: position, text: text}

	defer func() {
		if r := recover(); r != nil {
			o.score = nil
			o.err = fmt.Errorf("%w: %v", errScorerPanic, r)
		}
	}()

	o.score, o.err = c.scorer.Score(ctx, ai.ScoreRequest{Query: query, CandidateText: text})
	return o
}

func dropKind(err error) string {
	var parseErr *scoring.ParseError
	if errors.As(err, &parseErr) {
		return DropParse
	}
	var transportErr *scoring.TransportError
	if errors.As(err, &transportErr) {
		return DropTransport
	}
	return DropOther
}

func candidateLabel(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	return utils.TruncateForLog(first, 80)
}
