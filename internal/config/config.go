// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/security"
)

// Config holds all application configuration.
type Config struct {
	// Training corpus
	Corpus CorpusConfig `yaml:"corpus" toml:"corpus"`

	// Training loop
	Train TrainConfig `yaml:"train" toml:"train"`

	// Bag-of-words classifier hyperparameters
	Model ModelConfig `yaml:"model" toml:"model"`

	// Artifact persistence
	Artifact ArtifactConfig `yaml:"artifact" toml:"artifact"`

	// Batch inference over survey tables
	Inference InferenceConfig `yaml:"inference" toml:"inference"`

	// Accuracy audit
	Audit AuditConfig `yaml:"audit" toml:"audit"`

	// Logging configuration
	Log LogConfig `yaml:"log" toml:"log"`

	// Event bus configuration
	Bus BusConfig `yaml:"bus" toml:"bus"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`

	// Run ledger configuration
	History HistoryConfig `yaml:"history" toml:"history"`
}

// CorpusConfig describes the labeled review corpus.
type CorpusConfig struct {
	Dir        string  `envconfig:"SENTIMENT_CORPUS_DIR" yaml:"dir" toml:"dir"`
	SplitRatio float64 `envconfig:"SENTIMENT_SPLIT_RATIO" yaml:"split_ratio" toml:"split_ratio"`
	Limit      int     `envconfig:"SENTIMENT_CORPUS_LIMIT" yaml:"limit" toml:"limit"` // 0 = no limit
	Seed       uint64  `envconfig:"SENTIMENT_CORPUS_SEED" yaml:"seed" toml:"seed"`
}

// TrainConfig holds training loop settings.
type TrainConfig struct {
	Iterations    int     `envconfig:"SENTIMENT_ITERATIONS" yaml:"iterations" toml:"iterations"`
	Dropout       float64 `envconfig:"SENTIMENT_DROPOUT" yaml:"dropout" toml:"dropout"`
	BatchStart    float64 `envconfig:"SENTIMENT_BATCH_START" yaml:"batch_start" toml:"batch_start"`
	BatchStop     float64 `envconfig:"SENTIMENT_BATCH_STOP" yaml:"batch_stop" toml:"batch_stop"`
	BatchCompound float64 `envconfig:"SENTIMENT_BATCH_COMPOUND" yaml:"batch_compound" toml:"batch_compound"`
}

// ModelConfig holds classifier hyperparameters.
type ModelConfig struct {
	Buckets      int     `envconfig:"SENTIMENT_MODEL_BUCKETS" yaml:"buckets" toml:"buckets"`
	LearnRate    float64 `envconfig:"SENTIMENT_LEARN_RATE" yaml:"learn_rate" toml:"learn_rate"`
	L2           float64 `envconfig:"SENTIMENT_L2" yaml:"l2" toml:"l2"`
	Bigrams      bool    `envconfig:"SENTIMENT_BIGRAMS" yaml:"bigrams" toml:"bigrams"`
	DropoutSeed  uint64  `envconfig:"SENTIMENT_DROPOUT_SEED" yaml:"dropout_seed" toml:"dropout_seed"`
	MaxTokenSize int     `envconfig:"SENTIMENT_MAX_TOKEN_SIZE" yaml:"max_token_size" toml:"max_token_size"`
}

// ArtifactConfig selects where the trained classifier is persisted.
type ArtifactConfig struct {
	Backend string   `envconfig:"SENTIMENT_ARTIFACT_BACKEND" yaml:"backend" toml:"backend"` // file, s3, mirror
	Name    string   `envconfig:"SENTIMENT_ARTIFACT_NAME" yaml:"name" toml:"name"`
	Dir     string   `envconfig:"SENTIMENT_ARTIFACT_DIR" yaml:"dir" toml:"dir"`
	S3      S3Config `yaml:"s3" toml:"s3"`
}

// S3Config holds S3 (or MinIO) connection settings.
type S3Config struct {
	Endpoint     string `envconfig:"SENTIMENT_S3_ENDPOINT" yaml:"endpoint" toml:"endpoint"`
	Region       string `envconfig:"SENTIMENT_S3_REGION" yaml:"region" toml:"region"`
	Bucket       string `envconfig:"SENTIMENT_S3_BUCKET" yaml:"bucket" toml:"bucket"`
	Prefix       string `envconfig:"SENTIMENT_S3_PREFIX" yaml:"prefix" toml:"prefix"`
	AccessKey    string `envconfig:"SENTIMENT_S3_ACCESS_KEY" yaml:"access_key" toml:"access_key"`
	SecretKey    string `envconfig:"SENTIMENT_S3_SECRET_KEY" yaml:"secret_key" toml:"secret_key"`
	UsePathStyle bool   `envconfig:"SENTIMENT_S3_PATH_STYLE" yaml:"use_path_style" toml:"use_path_style"`
}

// QuestionConfig names a free-text question column and its output columns.
type QuestionConfig struct {
	Column       string `yaml:"column" toml:"column"`
	ResultColumn string `yaml:"result_column" toml:"result_column"`
	ScoreColumn  string `yaml:"score_column" toml:"score_column"`
	TruthColumn  string `yaml:"truth_column" toml:"truth_column"`
}

// InferenceConfig holds batch inference settings.
type InferenceConfig struct {
	Input     string           `envconfig:"SENTIMENT_INFER_INPUT" yaml:"input" toml:"input"`
	Output    string           `envconfig:"SENTIMENT_INFER_OUTPUT" yaml:"output" toml:"output"`
	Questions []QuestionConfig `ignored:"true" yaml:"questions" toml:"questions"`
}

// AuditConfig holds accuracy audit settings.
type AuditConfig struct {
	Input         string `envconfig:"SENTIMENT_AUDIT_INPUT" yaml:"input" toml:"input"`
	NotApplicable string `envconfig:"SENTIMENT_AUDIT_NA" yaml:"not_applicable" toml:"not_applicable"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SENTIMENT_LOG_LEVEL" yaml:"level" toml:"level"`
	Format string `envconfig:"SENTIMENT_LOG_FORMAT" yaml:"format" toml:"format"`
	File   string `envconfig:"SENTIMENT_LOG_FILE" yaml:"file" toml:"file"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SENTIMENT_BUS_TYPE" yaml:"type" toml:"type"`
	KafkaBrokers string `envconfig:"SENTIMENT_KAFKA_BROKERS" yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"SENTIMENT_KAFKA_GROUP" yaml:"kafka_group" toml:"kafka_group"`
	EventLog     string `envconfig:"SENTIMENT_BUS_EVENT_LOG" yaml:"event_log" toml:"event_log"` // JSONL journal, empty = off
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Persistence string `envconfig:"SENTIMENT_METRICS_PERSISTENCE" yaml:"persistence" toml:"persistence"` // memory, redis
	RedisURL    string `envconfig:"SENTIMENT_REDIS_URL" yaml:"redis_url" toml:"redis_url"`
	ExportPath  string `envconfig:"SENTIMENT_METRICS_EXPORT" yaml:"export_path" toml:"export_path"`
}

// HistoryConfig holds run ledger settings.
type HistoryConfig struct {
	Enabled bool   `envconfig:"SENTIMENT_HISTORY_ENABLED" yaml:"enabled" toml:"enabled"`
	Path    string `envconfig:"SENTIMENT_HISTORY_PATH" yaml:"path" toml:"path"`
}

// Load loads configuration from environment variables and optional config file.
// Files ending in .toml are decoded as TOML, anything else as YAML.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Default returns the default configuration without consulting files or env.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// DefaultQuestions returns the two survey questions scored by default.
func DefaultQuestions() []QuestionConfig {
	return []QuestionConfig{
		{
			Column:       "What is your opinion on expanding federally implemented universal health care?",
			ResultColumn: "Question 1 Result",
			ScoreColumn:  "Question 1 Score",
			TruthColumn:  "Question 1 Evaluation",
		},
		{
			Column:       "What are your thoughts on pineapple on pizza? ",
			ResultColumn: "Question 2 Result",
			ScoreColumn:  "Question 2 Score",
			TruthColumn:  "Question 2 Evaluation",
		},
	}
}

func setDefaults(cfg *Config) {
	cfg.Corpus = CorpusConfig{
		Dir:        "aclImdb/train",
		SplitRatio: 0.8,
		Limit:      10000,
		Seed:       0,
	}

	cfg.Train = TrainConfig{
		Iterations:    20,
		Dropout:       0.35,
		BatchStart:    4.0,
		BatchStop:     32.0,
		BatchCompound: 1.001,
	}

	cfg.Model = ModelConfig{
		Buckets:      1 << 18,
		LearnRate:    0.05,
		L2:           0,
		Bigrams:      true,
		DropoutSeed:  1,
		MaxTokenSize: 64,
	}

	cfg.Artifact = ArtifactConfig{
		Backend: "file",
		Name:    "model_artifacts",
		Dir:     ".",
		S3: S3Config{
			Region:       "us-east-1",
			Prefix:       "sentiment/",
			UsePathStyle: true,
		},
	}

	cfg.Inference = InferenceConfig{
		Input:     "Opinion Form.csv",
		Output:    "testoutput.csv",
		Questions: DefaultQuestions(),
	}

	cfg.Audit = AuditConfig{
		Input:         "testoutputwithEvaluations.csv",
		NotApplicable: "N/A",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Metrics = MetricsConfig{
		Persistence: "memory",
		RedisURL:    "redis://localhost:6379",
	}

	cfg.History = HistoryConfig{
		Enabled: true,
		Path:    "./data/history.db",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Corpus validation
	if c.Corpus.SplitRatio <= 0 || c.Corpus.SplitRatio > 1 {
		errs = append(errs, "split_ratio must be in (0, 1]")
	}
	if c.Corpus.Limit < 0 {
		errs = append(errs, "corpus limit must not be negative")
	}

	// Training validation
	if c.Train.Iterations < 1 {
		errs = append(errs, "iterations must be positive")
	}
	if c.Train.Dropout < 0 || c.Train.Dropout >= 1 {
		errs = append(errs, "dropout must be in [0, 1)")
	}
	if c.Train.BatchStart <= 0 {
		errs = append(errs, "batch_start must be positive")
	}
	if c.Train.BatchStop < c.Train.BatchStart {
		errs = append(errs, "batch_stop must not be less than batch_start")
	}
	if c.Train.BatchCompound < 1 {
		errs = append(errs, "batch_compound must be at least 1")
	}

	// Model validation
	if c.Model.Buckets < 2 {
		errs = append(errs, "model buckets must be at least 2")
	}
	if c.Model.LearnRate <= 0 {
		errs = append(errs, "learn_rate must be positive")
	}
	if c.Model.L2 < 0 {
		errs = append(errs, "l2 must not be negative")
	}

	// Artifact validation
	validBackends := map[string]bool{"file": true, "s3": true, "mirror": true}
	if !validBackends[c.Artifact.Backend] {
		errs = append(errs, fmt.Sprintf("invalid artifact backend: %s (must be file, s3, or mirror)", c.Artifact.Backend))
	}
	if err := security.ValidateArtifactName(c.Artifact.Name); err != nil {
		errs = append(errs, err.Error())
	}
	if (c.Artifact.Backend == "s3" || c.Artifact.Backend == "mirror") && c.Artifact.S3.Bucket == "" {
		errs = append(errs, "s3 bucket is required for the s3 and mirror backends")
	}

	// Inference validation
	for i, q := range c.Inference.Questions {
		if q.Column == "" || q.ResultColumn == "" || q.ScoreColumn == "" {
			errs = append(errs, fmt.Sprintf("question %d must name column, result_column and score_column", i+1))
		}
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	// Metrics validation
	validPersistence := map[string]bool{"memory": true, "redis": true}
	if !validPersistence[c.Metrics.Persistence] {
		errs = append(errs, fmt.Sprintf("invalid metrics persistence: %s (must be memory or redis)", c.Metrics.Persistence))
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ArtifactPath returns the filesystem location of the artifact for the file backend.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.Artifact.Dir, c.Artifact.Name)
}
