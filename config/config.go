package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend selects where the external training and inference routines run
type Backend string

const (
	BackendProcess Backend = "process" // local Python worker scripts
	BackendNode    Backend = "node"    // remote ML node over HTTP
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// Run tracking, disabled when empty
	DatabaseURL string `env:"DATABASE_URL"`

	// Runtime declaration, built-in when empty
	AppSpecPath string `env:"APP_SPEC_PATH"`

	// Training inputs
	BaseModel     string `env:"BASE_MODEL" envDefault:"decapoda-research/llama-7b-hf"`
	Dataset       string `env:"DATASET" envDefault:"sahil2801/CodeAlpaca-20k"`
	DatasetSplit  string `env:"DATASET_SPLIT" envDefault:"train[:20%]"`
	DatasetConfig string `env:"DATASET_CONFIG" envDefault:"default"`
	HubURL        string `env:"HF_DATASETS_SERVER_URL" envDefault:"https://datasets-server.huggingface.co"`
	HubToken      string `env:"HF_TOKEN"`

	// ML backend
	Backend          Backend `env:"ML_BACKEND" envDefault:"process"`
	PythonExecutable string  `env:"PYTHON_EXECUTABLE" envDefault:"python3"`
	TrainScript      string  `env:"TRAIN_SCRIPT" envDefault:"train.py"`
	InferenceScript  string  `env:"INFERENCE_SCRIPT" envDefault:"inference.py"`
	WorkDir          string  `env:"WORK_DIR"`
	NodeURL          string  `env:"ML_NODE_URL"`

	// AWS runtime planning
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSPlanEnabled bool   `env:"AWS_PLAN_ENABLED" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables, seeding them from a
// .env file when one exists
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, continuing with environment variables", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}

	switch cfg.Backend {
	case BackendProcess:
	case BackendNode:
		if cfg.NodeURL == "" {
			return nil, fmt.Errorf("ML_NODE_URL is required when ML_BACKEND=%s", BackendNode)
		}
	default:
		return nil, fmt.Errorf("unsupported ML_BACKEND %q", cfg.Backend)
	}

	return &cfg, nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
