package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	InstanceID  string `env:"INSTANCE_ID"`
	UserID      string `env:"USER_ID" envDefault:"demo_user"`
	Language    string `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	DefaultName string `env:"DEFAULT_CUSTOMER_NAME" envDefault:"Ajay"`

	// Dialog playback
	DialogPath        string `env:"DIALOG_PATH" envDefault:"data/dialog_tree.json"`
	StepIntervalMS    int64  `env:"STEP_INTERVAL_MS" envDefault:"4000"`
	CompletionDelayMS int64  `env:"COMPLETION_DELAY_MS" envDefault:"2000"`

	// External assistant
	AssistantMode    string `env:"ASSISTANT_MODE" envDefault:"mock"`
	AssistantBaseURL string `env:"ASSISTANT_BASE_URL" envDefault:"http://localhost:5000"`
	AssistantTimeout int64  `env:"ASSISTANT_TIMEOUT_MS" envDefault:"15000"`
	LLMAPIKey        string `env:"LLM_API_KEY"`
	LLMBaseURL       string `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LLMModel         string `env:"LLM_MODEL" envDefault:"llama3-70b-8192"`

	// Optional event fan-out; empty disables Redis
	RedisURL        string `env:"REDIS_URL"`
	EventsChannel   string `env:"EVENTS_CHANNEL" envDefault:"veena:events"`
	EventsStream    string `env:"EVENTS_STREAM" envDefault:"veena:events:log"`
	EventsStreamLen int64  `env:"EVENTS_STREAM_MAXLEN" envDefault:"1000"`

	// Cron schedule for session summary logs; empty disables
	ReportSchedule string `env:"REPORT_SCHEDULE" envDefault:"@every 1m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = generateInstanceID()
	}
	return cfg, nil
}

func (c *Config) StepInterval() time.Duration {
	return time.Duration(c.StepIntervalMS) * time.Millisecond
}

func (c *Config) CompletionDelay() time.Duration {
	return time.Duration(c.CompletionDelayMS) * time.Millisecond
}

func (c *Config) AssistantRequestTimeout() time.Duration {
	return time.Duration(c.AssistantTimeout) * time.Millisecond
}

func generateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.New().String()
	}
	return hostname + "-" + uuid.New().String()[:8]
}
