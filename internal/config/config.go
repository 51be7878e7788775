package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
)

var (
	ErrMissingToken    = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrMissingAPIKey   = errors.New("API key for the selected provider is required")
	ErrInvalidProvider = errors.New("invalid LLM provider")
	ErrNoExtensions    = errors.New("at least one supported extension is required")
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderMock       = "mock"
)

// Config собирается из значений по умолчанию, yaml файла (QA_CONFIG_FILE)
// и переменных окружения, окружение главнее.
type Config struct {
	Telegram    TelegramConfig   `yaml:"telegram"`
	Database    DatabaseConfig   `yaml:"database"`
	LLM         LLMConfig        `yaml:"llm"`
	Quality     QualityConfig    `yaml:"quality"`
	Attachments AttachmentConfig `yaml:"attachments"`
	Log         LogConfig        `yaml:"log"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Session     SessionConfig    `yaml:"session"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

// DatabaseConfig - журнал прогонов, опционально
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type LLMConfig struct {
	Provider   string           `yaml:"provider"`
	TimeoutSec int              `yaml:"timeout_sec"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
}

type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	ModelPro   string `yaml:"model_pro"`
	ModelFlash string `yaml:"model_flash"`
	BaseURL    string `yaml:"base_url"`
}

type OpenRouterConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	FastModel string `yaml:"fast_model"`
	BaseURL   string `yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	FastModel string `yaml:"fast_model"`
	BaseURL   string `yaml:"base_url"`
}

type QualityConfig struct {
	MaxRefinements     int     `yaml:"max_refinements"`
	Tolerance          float64 `yaml:"word_count_tolerance"`
	GradeMode          string  `yaml:"grade_mode"`
	AllowCodeExecution bool    `yaml:"allow_code_execution"`
}

type AttachmentConfig struct {
	Extensions []string `yaml:"extensions"`
	MaxBytes   int64    `yaml:"max_bytes"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format - json или console, пусто значит по уровню
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type SessionConfig struct {
	TTLSec int `yaml:"ttl_sec"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:   ProviderGemini,
			TimeoutSec: 180,
			Gemini: GeminiConfig{
				ModelPro:   "gemini-2.5-pro",
				ModelFlash: "gemini-2.5-flash",
			},
			OpenRouter: OpenRouterConfig{
				Model:     "google/gemini-2.5-pro",
				FastModel: "google/gemini-2.5-flash",
				BaseURL:   "https://openrouter.ai/api/v1",
			},
			Anthropic: AnthropicConfig{
				Model:     "claude-sonnet-4-5",
				FastModel: "claude-haiku-4-5",
			},
		},
		Quality: QualityConfig{
			MaxRefinements:     domain.DefaultMaxRefinements,
			Tolerance:          0.10,
			GradeMode:          string(domain.GradeStructured),
			AllowCodeExecution: true,
		},
		Attachments: AttachmentConfig{
			Extensions: []string{"txt", "pdf", "md", "py", "json", "csv", "m"},
			MaxBytes:   20 << 20,
		},
		Log: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 10,
		},
		Session: SessionConfig{
			TTLSec: 3600,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load читает конфиг и проверяет общие поля. Токен бота проверяет ValidateBot,
// CLI без него обходится.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("QA_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Telegram.Token = getEnvOrDefault("TELEGRAM_BOT_TOKEN", c.Telegram.Token)
	c.Database.URL = getEnvOrDefault("DATABASE_URL", c.Database.URL)

	c.LLM.Provider = strings.ToLower(getEnvOrDefault("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.TimeoutSec = getEnvIntOrDefault("LLM_TIMEOUT_SEC", c.LLM.TimeoutSec)

	c.LLM.Gemini.APIKey = getEnvOrDefault("GOOGLE_API_KEY", getEnvOrDefault("GEMINI_API_KEY", c.LLM.Gemini.APIKey))
	c.LLM.Gemini.ModelPro = getEnvOrDefault("GEMINI_MODEL_PRO", c.LLM.Gemini.ModelPro)
	c.LLM.Gemini.ModelFlash = getEnvOrDefault("GEMINI_MODEL_FLASH", c.LLM.Gemini.ModelFlash)
	c.LLM.Gemini.BaseURL = getEnvOrDefault("GEMINI_BASE_URL", c.LLM.Gemini.BaseURL)

	c.LLM.OpenRouter.APIKey = getEnvOrDefault("OPENROUTER_API_KEY", c.LLM.OpenRouter.APIKey)
	c.LLM.OpenRouter.Model = getEnvOrDefault("OPENROUTER_MODEL", c.LLM.OpenRouter.Model)
	c.LLM.OpenRouter.FastModel = getEnvOrDefault("OPENROUTER_FAST_MODEL", c.LLM.OpenRouter.FastModel)
	c.LLM.OpenRouter.BaseURL = getEnvOrDefault("OPENROUTER_BASE_URL", c.LLM.OpenRouter.BaseURL)

	c.LLM.Anthropic.APIKey = getEnvOrDefault("ANTHROPIC_API_KEY", c.LLM.Anthropic.APIKey)
	c.LLM.Anthropic.Model = getEnvOrDefault("ANTHROPIC_MODEL", c.LLM.Anthropic.Model)
	c.LLM.Anthropic.FastModel = getEnvOrDefault("ANTHROPIC_FAST_MODEL", c.LLM.Anthropic.FastModel)
	c.LLM.Anthropic.BaseURL = getEnvOrDefault("ANTHROPIC_BASE_URL", c.LLM.Anthropic.BaseURL)

	c.Quality.MaxRefinements = getEnvIntOrDefault("QA_MAX_REFINEMENTS", c.Quality.MaxRefinements)
	c.Quality.Tolerance = getEnvFloatOrDefault("QA_WORD_COUNT_TOLERANCE", c.Quality.Tolerance)
	c.Quality.GradeMode = strings.ToLower(getEnvOrDefault("QA_GRADE_MODE", c.Quality.GradeMode))
	c.Quality.AllowCodeExecution = getEnvBoolOrDefault("QA_ALLOW_CODE_EXECUTION", c.Quality.AllowCodeExecution)

	c.Attachments.Extensions = getEnvListOrDefault("QA_SUPPORTED_EXTENSIONS", c.Attachments.Extensions)
	c.Attachments.MaxBytes = int64(getEnvIntOrDefault("QA_MAX_ATTACHMENT_BYTES", int(c.Attachments.MaxBytes)))

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
	c.RateLimit.RequestsPerMinute = getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", c.RateLimit.RequestsPerMinute)
	c.Session.TTLSec = getEnvIntOrDefault("SESSION_TTL_SEC", c.Session.TTLSec)
	c.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", c.Metrics.Addr)
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.Gemini.APIKey == "" {
			return fmt.Errorf("%w: set GOOGLE_API_KEY or GEMINI_API_KEY", ErrMissingAPIKey)
		}
	case ProviderOpenRouter:
		if c.LLM.OpenRouter.APIKey == "" {
			return fmt.Errorf("%w: set OPENROUTER_API_KEY", ErrMissingAPIKey)
		}
	case ProviderAnthropic:
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrMissingAPIKey)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.LLM.Provider)
	}

	if c.Quality.MaxRefinements < domain.MinRefinements || c.Quality.MaxRefinements > domain.MaxRefinements {
		return domain.ErrInvalidRefinements
	}
	if c.Quality.Tolerance < 0 || c.Quality.Tolerance > 1 {
		return domain.ErrInvalidTolerance
	}
	if !domain.GradeMode(c.Quality.GradeMode).IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidGradeMode, c.Quality.GradeMode)
	}
	if len(c.Attachments.Extensions) == 0 {
		return ErrNoExtensions
	}
	return nil
}

// ValidateBot - дополнительные проверки для режима telegram бота
func (c *Config) ValidateBot() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// Models возвращает сильную и быструю модели выбранного провайдера.
func (c *Config) Models() (capable, fast string) {
	switch c.LLM.Provider {
	case ProviderOpenRouter:
		return c.LLM.OpenRouter.Model, c.LLM.OpenRouter.FastModel
	case ProviderAnthropic:
		return c.LLM.Anthropic.Model, c.LLM.Anthropic.FastModel
	default:
		return c.LLM.Gemini.ModelPro, c.LLM.Gemini.ModelFlash
	}
}

// CodeExecutionBlocked - выполнять код умеет только gemini (и mock для тестов)
func (c *Config) CodeExecutionBlocked() bool {
	if !c.Quality.AllowCodeExecution {
		return true
	}
	return c.LLM.Provider != ProviderGemini && c.LLM.Provider != ProviderMock
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSec) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvListOrDefault - список через запятую, пустые элементы выкидываются
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(item), "."))
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
