package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Shopify   ShopifyConfig   `yaml:"shopify" mapstructure:"shopify"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Recommend RecommendConfig `yaml:"recommend" mapstructure:"recommend"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Temporal  TemporalConfig  `yaml:"temporal" mapstructure:"temporal"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the period-record database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ShopCredential pairs a shop domain with its Admin API access token.
type ShopCredential struct {
	Domain      string `yaml:"domain" mapstructure:"domain"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
}

// ShopifyConfig holds Admin API settings.
type ShopifyConfig struct {
	ShopDomain     string           `yaml:"shop_domain" mapstructure:"shop_domain"`
	AccessToken    string           `yaml:"access_token" mapstructure:"access_token"`
	Shops          []ShopCredential `yaml:"shops" mapstructure:"shops"`
	APIVersion     string           `yaml:"api_version" mapstructure:"api_version"`
	APISecret      string           `yaml:"api_secret" mapstructure:"api_secret"`
	RequestsPerSec float64          `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxRetries     int              `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs    int              `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OpenAIConfig holds settings for the OpenAI-compatible chat completions API.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// FetchConfig configures the paginated order export.
type FetchConfig struct {
	PageSize     int `yaml:"page_size" mapstructure:"page_size"`
	BatchDelayMs int `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
}

// ScheduleConfig configures the period scheduler.
type ScheduleConfig struct {
	WindowDays         int `yaml:"window_days" mapstructure:"window_days"`
	LeaseMinutes       int `yaml:"lease_minutes" mapstructure:"lease_minutes"`
	TickMinutes        int `yaml:"tick_minutes" mapstructure:"tick_minutes"`
	MaxConcurrentShops int `yaml:"max_concurrent_shops" mapstructure:"max_concurrent_shops"`
}

// RecommendConfig configures prompt construction and output validation.
type RecommendConfig struct {
	TopN         int     `yaml:"top_n" mapstructure:"top_n"`
	MinFrequency int     `yaml:"min_frequency" mapstructure:"min_frequency"`
	MinUpsells   int     `yaml:"min_upsells" mapstructure:"min_upsells"`
	MaxTokens    int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotifyConfig configures run notifications.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	OnSuccess  bool   `yaml:"on_success" mapstructure:"on_success"`
}

// TemporalConfig configures the optional Temporal schedule worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
	Cron      string `yaml:"cron" mapstructure:"cron"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	WebhookSecret  string   `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("UPSELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "upsell.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("shopify.api_version", "2025-07")
	v.SetDefault("shopify.requests_per_sec", 2.0)
	v.SetDefault("shopify.max_retries", 3)
	v.SetDefault("shopify.timeout_secs", 60)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("fetch.page_size", 250)
	v.SetDefault("fetch.batch_delay_ms", 100)
	v.SetDefault("schedule.window_days", 3)
	v.SetDefault("schedule.lease_minutes", 30)
	v.SetDefault("schedule.tick_minutes", 60)
	v.SetDefault("schedule.max_concurrent_shops", 4)
	v.SetDefault("recommend.top_n", 10)
	v.SetDefault("recommend.min_frequency", 3)
	v.SetDefault("recommend.min_upsells", 2)
	v.SetDefault("recommend.max_tokens", 2000)
	v.SetDefault("recommend.temperature", 0.3)
	v.SetDefault("recommend.timeout_secs", 60)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "upsell-periods")
	v.SetDefault("temporal.cron", "0 6 * * *")

	// Keys without a default are still registered so env-only values unmarshal.
	for _, key := range []string{
		"shopify.shop_domain",
		"shopify.access_token",
		"shopify.api_secret",
		"openai.key",
		"anthropic.key",
		"notify.webhook_url",
		"server.webhook_secret",
	} {
		v.SetDefault(key, "")
	}

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

// Credentials returns every configured shop. The single shop_domain/access_token
// pair is listed first when set.
func (c *Config) Credentials() []ShopCredential {
	var out []ShopCredential
	seen := make(map[string]bool)
	if c.Shopify.ShopDomain != "" {
		out = append(out, ShopCredential{Domain: c.Shopify.ShopDomain, AccessToken: c.Shopify.AccessToken})
		seen[c.Shopify.ShopDomain] = true
	}
	for _, s := range c.Shopify.Shops {
		if s.Domain == "" || seen[s.Domain] {
			continue
		}
		seen[s.Domain] = true
		out = append(out, s)
	}
	return out
}

// AccessToken returns the access token for shop, or "" when the shop is unknown.
func (c *Config) AccessToken(shop string) string {
	for _, s := range c.Credentials() {
		if s.Domain == shop {
			return s.AccessToken
		}
	}
	return ""
}

// Validate checks the settings required by a command mode.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "process", "serve", "worker":
		if len(c.Credentials()) == 0 {
			missing = append(missing, "shopify.shop_domain (or shopify.shops) is required")
		}
		for _, s := range c.Credentials() {
			if s.AccessToken == "" {
				missing = append(missing, "shopify access token is required for "+s.Domain)
			}
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		missing = append(missing, "server.port must be between 1 and 65535")
	}
	if mode == "worker" && c.Temporal.HostPort == "" {
		missing = append(missing, "temporal.host_port is required")
	}
	if c.Fetch.PageSize > 250 {
		missing = append(missing, "fetch.page_size must be at most 250")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
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
