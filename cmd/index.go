package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/operator-finder/internal/indexer"
	"github.com/spigell/operator-finder/internal/logger"
)

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Flatten and embed resume records and rebuild the vector index",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		buildIndex(cmd)
	},
}

func init() {
	rootCmd.AddCommand(buildIndexCmd)

	buildIndexCmd.Flags().String("data-dir", "", "directory with resume records (.json, .yaml)")
	buildIndexCmd.Flags().String("index-path", "", "directory for the local index artifacts")
}

// setup builds the logger and the effective configuration for a command.
func setup(cmd *cobra.Command) (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil || config.AI == nil || config.Index == nil || config.Pipeline == nil {
		logger.Fatal("config is required")
	}

	applyFlags(cmd, config)

	logger.Debug("starting with config",
		zap.String("config_file", viper.ConfigFileUsed()),
		zap.String("provider", config.AI.Provider),
		zap.String("index_backend", config.Index.Backend),
		zap.Any("pipeline", config.Pipeline),
	)

	return logger, config
}

// applyFlags overrides configuration with flags set explicitly on cmd.
func applyFlags(cmd *cobra.Command, config *Config) {
	flags := cmd.Flags()

	if flags.Changed("data-dir") {
		config.Index.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("index-path") {
		config.Index.Path, _ = flags.GetString("index-path")
	}
	if flags.Changed("top-n") {
		config.Pipeline.TopN, _ = flags.GetInt("top-n")
	}
	if flags.Changed("retrieve-k") {
		config.Pipeline.RetrieveK, _ = flags.GetInt("retrieve-k")
	}
	if flags.Changed("workers") {
		config.Pipeline.Workers, _ = flags.GetInt("workers")
	}
}

func buildIndex(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup(cmd)

	logger.Info("starting the index build",
		zap.String("version", version),
		zap.String("data_dir", config.Index.DataDir),
	)

	m, err := newModels(ctx, config.AI)
	if err != nil {
		logger.Fatal("building ai clients", zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY / OPENAI_API_KEY or ai.api-key-file in the configuration file"),
		)
	}

	writer, err := newIndexWriter(config.Index)
	if err != nil {
		logger.Fatal("preparing the index", zap.Error(err))
	}

	buildLog := logger.With(indexFields(config.Index)...)

	builder, err := indexer.New(m.embedder, writer, buildLog, indexer.Config{BatchSize: config.Index.BatchSize})
	if err != nil {
		logger.Fatal("preparing the index builder", zap.Error(err))
	}

	report, err := builder.Build(ctx, config.Index.DataDir)
	if err != nil {
		logger.Fatal("building the index", zap.Error(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d resumes from %d files (%d duplicates) into %s\n",
		report.Documents, report.Files, report.Duplicates, indexLocation(config.Index))
}
