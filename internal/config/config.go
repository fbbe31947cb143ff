package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Document  DocumentConfig  `yaml:"document" mapstructure:"document"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Citation  CitationConfig  `yaml:"citation" mapstructure:"citation"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Prompts   PromptsConfig   `yaml:"prompts" mapstructure:"prompts"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ProviderConfig selects the language model backend and how calls to it are guarded.
type ProviderConfig struct {
	Name              string        `yaml:"name" mapstructure:"name"`
	MaxTokens         int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Retry             RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit           CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures retries of transient provider errors.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// DocumentConfig bounds what is accepted and sent upstream per document.
type DocumentConfig struct {
	MaxChars    int    `yaml:"max_chars" mapstructure:"max_chars"`
	UploadDir   string `yaml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	MaxFiles    int    `yaml:"max_files" mapstructure:"max_files"`
	// LocalRoot confines server-side paths accepted over HTTP. Empty
	// disables path submission.
	LocalRoot string `yaml:"local_root" mapstructure:"local_root"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CitationConfig configures identifier link normalization.
type CitationConfig struct {
	ResolverBaseURL string `yaml:"resolver_base_url" mapstructure:"resolver_base_url"`
	Label           string `yaml:"label" mapstructure:"label"`
}

// QueueConfig configures the evaluation queue.
type QueueConfig struct {
	PollIntervalMs   int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	AwaitTimeoutSecs int `yaml:"await_timeout_secs" mapstructure:"await_timeout_secs"`
	RetentionMins    int `yaml:"retention_mins" mapstructure:"retention_mins"`
}

// PollInterval returns the Await polling interval.
func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

// AwaitTimeout returns the Await ceiling.
func (q QueueConfig) AwaitTimeout() time.Duration {
	return time.Duration(q.AwaitTimeoutSecs) * time.Second
}

// Retention returns how long unfetched terminal batches are kept.
func (q QueueConfig) Retention() time.Duration {
	return time.Duration(q.RetentionMins) * time.Minute
}

// PromptsConfig points at optional prompt and guideline overrides.
// Empty paths use the embedded defaults.
type PromptsConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	GuidelinesPath string `yaml:"guidelines_path" mapstructure:"guidelines_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.max_tokens", 4096)
	v.SetDefault("provider.requests_per_minute", 50)
	v.SetDefault("provider.retry.max_attempts", 3)
	v.SetDefault("provider.retry.initial_backoff_ms", 500)
	v.SetDefault("provider.retry.max_backoff_ms", 30000)
	v.SetDefault("provider.circuit.failure_threshold", 5)
	v.SetDefault("provider.circuit.reset_timeout_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("document.max_chars", 120000)
	v.SetDefault("document.upload_dir", "uploads")
	v.SetDefault("document.max_upload_mb", 25)
	v.SetDefault("document.max_files", 5)
	v.SetDefault("document.local_root", "")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.max_pages", 0)
	v.SetDefault("ocr.timeout_secs", 120)
	v.SetDefault("citation.resolver_base_url", "https://doi.org/")
	v.SetDefault("citation.label", "doi")
	v.SetDefault("queue.poll_interval_ms", 1000)
	v.SetDefault("queue.await_timeout_secs", 300)
	v.SetDefault("queue.retention_mins", 60)
	v.SetDefault("prompts.path", "")
	v.SetDefault("prompts.guidelines_path", "")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the selected provider is known and has credentials.
func (c *Config) Validate() error {
	var key string
	switch c.Provider.Name {
	case "anthropic":
		key = c.Anthropic.Key
	case "openai":
		key = c.OpenAI.Key
	case "gemini":
		key = c.Gemini.Key
	default:
		return eris.Errorf("config: unknown provider %q", c.Provider.Name)
	}
	if key == "" {
		return eris.Errorf("config: provider %s requires an api key (EVIDENCE_%s_KEY)",
			c.Provider.Name, strings.ToUpper(c.Provider.Name))
	}
	if c.Citation.ResolverBaseURL == "" {
		return eris.New("config: citation.resolver_base_url is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
