package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/operator-finder/internal/ai"
	"github.com/spigell/operator-finder/internal/pipeline"
)

const (
	PromptNewSearch = "New search"
	PromptExit      = "Exit"
	PromptBack      = "back"
)

var errExit = errors.New("exit requested")

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Search candidates in an interactive session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		interactive(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)

	addPipelineFlags(interactiveCmd)
}

func interactive(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup(cmd)

	logger.Info("starting the interactive session", zap.String("version", version))

	coordinator, err := newCoordinator(ctx, config, logger.With(indexFields(config.Index)...))
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	out := cmd.OutOrStdout()
	for {
		if err := searchOnce(ctx, coordinator, out, logger); err != nil {
			if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				logger.Info("exiting", zap.String("reason", "requested by user"))
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func searchOnce(ctx context.Context, coordinator *pipeline.Coordinator, out io.Writer, logger *zap.Logger) error {
	queryPrompt := promptui.Prompt{
		Label: "Describe the executive you are looking for",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return pipeline.ErrEmptyQuery
			}
			return nil
		},
	}

	query, err := queryPrompt.Run()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Retrieving and scoring candidates...")

	result, err := coordinator.Run(ctx, query)
	if err != nil {
		// A failed search should not end the session.
		logger.Error("search failed", zap.Error(err))
		return nil
	}

	if result.Empty() {
		fmt.Fprintln(out, noCandidatesMsg)
		return nextAction()
	}

	return browse(result, out)
}

func browse(result *pipeline.RankedResultSet, out io.Writer) error {
	for {
		items := candidateItems(result.Candidates)

		candidatePrompt := promptui.Select{
			Label: fmt.Sprintf("Top %d candidates: choose one for details", len(result.Candidates)),
			Items: append(items, PromptNewSearch, PromptExit),
			Size:  len(items) + 2,
		}

		idx, selected, err := candidatePrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptNewSearch:
			return nil
		case PromptExit:
			return errExit
		default:
			if err := writeDetails(out, &result.Candidates[idx]); err != nil {
				return err
			}

			backPrompt := promptui.Select{Label: "Continue", Items: []string{PromptBack, PromptNewSearch, PromptExit}}
			_, action, err := backPrompt.Run()
			if err != nil {
				return err
			}
			switch action {
			case PromptNewSearch:
				return nil
			case PromptExit:
				return errExit
			}
		}
	}
}

func nextAction() error {
	prompt := promptui.Select{Label: "What next?", Items: []string{PromptNewSearch, PromptExit}}
	_, action, err := prompt.Run()
	if err != nil {
		return err
	}
	if action == PromptExit {
		return errExit
	}
	return nil
}

func candidateItems(candidates []ai.CandidateScore) []string {
	items := make([]string, 0, len(candidates))
	for i, c := range candidates {
		items = append(items, fmt.Sprintf("%d. %s / %s / %s (score %s)",
			i+1, c.CandidateName, c.CurrentTitle, c.CurrentCompany, formatScore(c.MatchScore)))
	}
	return items
}

func writeDetails(w io.Writer, c *ai.CandidateScore) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n", c.CandidateName)
	fmt.Fprintf(&b, "%s at %s\n", c.CurrentTitle, c.CurrentCompany)
	fmt.Fprintf(&b, "Match score: %s\n\n", formatScore(c.MatchScore))

	for _, criterion := range c.Criteria() {
		answer := criterion.Answer
		if answer == "" {
			answer = "-"
		}
		fmt.Fprintf(&b, "  %-26s %s\n", criterion.Name+":", answer)
	}

	if c.Reasoning != "" {
		fmt.Fprintf(&b, "\nReasoning: %s\n", c.Reasoning)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
