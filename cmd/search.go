package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/operator-finder/internal/pipeline"
)

const (
	outputText = "text"
	outputJSON = "json"

	noCandidatesMsg = "No candidates found."
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Rank indexed candidates against a hiring query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		search(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	addPipelineFlags(searchCmd)
	searchCmd.Flags().StringP("output", "o", outputText, "output format: text or json")
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("top-n", "n", 0, "number of candidates to show (default from config)")
	cmd.Flags().IntP("retrieve-k", "k", 0, "number of candidates to retrieve before scoring (default from config)")
	cmd.Flags().IntP("workers", "w", 0, "concurrent scoring calls (default from config)")
}

func search(cmd *cobra.Command, query string) {
	ctx := context.Background()
	logger, config := setup(cmd)

	output, _ := cmd.Flags().GetString("output")
	if output != outputText && output != outputJSON {
		logger.Fatal("invalid output format", zap.String("output", output))
	}

	logger.Info("starting the search", zap.String("version", version), zap.String("query", query))

	coordinator, err := newCoordinator(ctx, config, logger.With(indexFields(config.Index)...))
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	result, err := coordinator.Run(ctx, query)
	if err != nil {
		logger.Fatal("running the search", zap.Error(err))
	}

	switch output {
	case outputJSON:
		err = writeJSON(cmd.OutOrStdout(), result)
	default:
		err = writeText(cmd.OutOrStdout(), result)
	}
	if err != nil {
		logger.Fatal("writing results", zap.Error(err))
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func writeText(w io.Writer, result *pipeline.RankedResultSet) error {
	if result.Empty() {
		_, err := fmt.Fprintln(w, noCandidatesMsg)
		return err
	}

	var b strings.Builder
	for i, c := range result.Candidates {
		fmt.Fprintf(&b, "%d. %s / %s / %s / score %s\n", i+1, c.CandidateName, c.CurrentTitle, c.CurrentCompany, formatScore(c.MatchScore))
		if c.Reasoning != "" {
			fmt.Fprintf(&b, "   %s\n", c.Reasoning)
		}
	}
	if n := len(result.Dropped); n > 0 {
		fmt.Fprintf(&b, "\n%d of %d retrieved candidates could not be scored.\n", n, result.Stats.Retrieved)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type jsonDrop struct {
	Position  int    `json:"position"`
	Candidate string `json:"candidate"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

type jsonStats struct {
	Retrieved int     `json:"retrieved"`
	Scored    int     `json:"scored"`
	Dropped   int     `json:"dropped"`
	Returned  int     `json:"returned"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

func writeJSON(w io.Writer, result *pipeline.RankedResultSet) error {
	drops := make([]jsonDrop, 0, len(result.Dropped))
	for _, d := range result.Dropped {
		drops = append(drops, jsonDrop{Position: d.Position, Candidate: d.Candidate, Kind: d.Kind, Error: d.Err.Error()})
	}

	payload := struct {
		Query      string     `json:"query"`
		Candidates any        `json:"candidates"`
		Dropped    []jsonDrop `json:"dropped"`
		Stats      jsonStats  `json:"stats"`
	}{
		Query:      result.Query,
		Candidates: result.Candidates,
		Dropped:    drops,
		Stats: jsonStats{
			Retrieved: result.Stats.Retrieved,
			Scored:    result.Stats.Scored,
			Dropped:   result.Stats.Dropped,
			Returned:  result.Stats.Returned,
			ElapsedMS: float64(result.Stats.Elapsed.Microseconds()) / 1000,
		},
	}
	if result.Empty() {
		payload.Candidates = []any{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
