package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "operator-finder"
)

type Config struct {
	AI       *AIConfig       `mapstructure:"ai"`
	Index    *IndexConfig    `mapstructure:"index"`
	Pipeline *PipelineConfig `mapstructure:"pipeline"`
}

type AIConfig struct {
	Provider       string                `mapstructure:"provider"`
	APIKey         string                `mapstructure:"api-key"`
	APIKeyFile     string                `mapstructure:"api-key-file"`
	Temperature    float32               `mapstructure:"temperature"`
	ScoreScale     int                   `mapstructure:"score-scale"`
	MaxRetries     int                   `mapstructure:"max-retries"`
	MaxLogLength   int                   `mapstructure:"max-log-length"`
	Gemini         *GeminiConfig         `mapstructure:"gemini"`
	OpenAI         *OpenAIConfig         `mapstructure:"openai"`
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit-breaker"`
	RateLimit      *RateLimitConfig      `mapstructure:"rate-limit"`
}

type GeminiConfig struct {
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
}

type OpenAIConfig struct {
	BaseURL        string `mapstructure:"base-url"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max-requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MinRequests      uint32        `mapstructure:"min-requests"`
	FailureThreshold float64       `mapstructure:"failure-threshold"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
	Burst             int     `mapstructure:"burst"`
}

type IndexConfig struct {
	Backend       string               `mapstructure:"backend"`
	Path          string               `mapstructure:"path"`
	DataDir       string               `mapstructure:"data-dir"`
	BatchSize     int                  `mapstructure:"batch-size"`
	Elasticsearch *ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	IndexName string   `mapstructure:"index-name"`
}

type PipelineConfig struct {
	RetrieveK int           `mapstructure:"retrieve-k"`
	TopN      int           `mapstructure:"top-n"`
	Workers   int           `mapstructure:"workers"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]any{
	"ai.provider":                          providerGemini,
	"ai.api-key":                           "",
	"ai.api-key-file":                      "",
	"ai.temperature":                       0,
	"ai.score-scale":                       100,
	"ai.max-retries":                       1,
	"ai.max-log-length":                    200,
	"ai.gemini.model":                      "gemini-2.5-flash",
	"ai.gemini.embedding-model":            "text-embedding-004",
	"ai.openai.base-url":                   "https://api.openai.com/v1",
	"ai.openai.model":                      "gpt-4o-mini",
	"ai.openai.embedding-model":            "text-embedding-3-small",
	"ai.circuit-breaker.enabled":           false,
	"ai.circuit-breaker.max-requests":      3,
	"ai.circuit-breaker.interval":          "60s",
	"ai.circuit-breaker.timeout":           "30s",
	"ai.circuit-breaker.min-requests":      5,
	"ai.circuit-breaker.failure-threshold": 0.6,
	"ai.rate-limit.requests-per-second":    0,
	"ai.rate-limit.burst":                  1,
	"index.backend":                        backendLocal,
	"index.path":                           "./vectorstore",
	"index.data-dir":                       "./resumes",
	"index.batch-size":                     32,
	"index.elasticsearch.addresses":        []string{"http://localhost:9200"},
	"index.elasticsearch.username":         "",
	"index.elasticsearch.password":         "",
	"index.elasticsearch.index-name":       "resumes",
	"pipeline.retrieve-k":                  20,
	"pipeline.top-n":                       5,
	"pipeline.workers":                     8,
	"pipeline.timeout":                     "0s",
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "operator-finder finds executive candidates for a hiring query with vector search and LLM scoring",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	viper.SetEnvPrefix("OPERATOR_FINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is operator-finder.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config the file is optional and defaults apply.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
