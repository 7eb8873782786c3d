package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/outreach-cli/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Serp      SerpConfig      `yaml:"serp" mapstructure:"serp"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gmail     GmailConfig     `yaml:"gmail" mapstructure:"gmail"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Campaign  CampaignConfig  `yaml:"campaign" mapstructure:"campaign"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SerpConfig holds business directory search API settings.
type SerpConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Engine         string `yaml:"engine" mapstructure:"engine"`
	MaxPages       int    `yaml:"max_pages" mapstructure:"max_pages"`
	RequestsPerSec int    `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GmailConfig holds mailbox OAuth client settings.
type GmailConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RedirectURL  string `yaml:"redirect_url" mapstructure:"redirect_url"`
}

// ScrapeConfig configures discovery and website extraction.
type ScrapeConfig struct {
	Concurrency   int `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs   int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes  int `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	PacingMS      int `yaml:"pacing_ms" mapstructure:"pacing_ms"`
	MinContentLen int `yaml:"min_content_len" mapstructure:"min_content_len"`
}

// EnrichConfig configures profile enrichment.
type EnrichConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	BatchLimit  int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// CampaignConfig configures outreach sending and follow-up sweeps.
type CampaignConfig struct {
	SendPacingMS    int    `yaml:"send_pacing_ms" mapstructure:"send_pacing_ms"`
	FollowUpLimit   int    `yaml:"follow_up_limit" mapstructure:"follow_up_limit"`
	VariantsPath    string `yaml:"variants_path" mapstructure:"variants_path"`
	ReplyScanWindow int    `yaml:"reply_scan_window_hours" mapstructure:"reply_scan_window_hours"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("serp.base_url", "https://serpapi.com")
	v.SetDefault("serp.engine", "google_maps")
	v.SetDefault("serp.max_pages", 3)
	v.SetDefault("serp.requests_per_sec", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("gmail.redirect_url", "http://localhost:8089/oauth/callback")
	v.SetDefault("scrape.concurrency", 5)
	v.SetDefault("scrape.timeout_secs", 20)
	v.SetDefault("scrape.max_body_bytes", 2<<20)
	v.SetDefault("scrape.pacing_ms", 500)
	v.SetDefault("scrape.min_content_len", 100)
	v.SetDefault("enrich.concurrency", 3)
	v.SetDefault("enrich.batch_limit", 50)
	v.SetDefault("campaign.send_pacing_ms", 1000)
	v.SetDefault("campaign.follow_up_limit", 200)
	v.SetDefault("campaign.variants_path", "followups.yaml")
	v.SetDefault("campaign.reply_scan_window_hours", 72)
	v.SetDefault("pricing.serp.per_query", 0.003)

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
	if len(cfg.Pricing.Anthropic) == 0 {
		cfg.Pricing.Anthropic = cost.DefaultRates().Anthropic
	}

	return &cfg, nil
}

// Validate checks that the configuration required for the given mode is
// present. Modes map to command families: scrape, enrich, campaign,
// serve.
func (c *Config) Validate(mode string) error {
	var missing []string

	checkCommon := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "scrape":
		checkCommon()
		if c.Serp.Key == "" {
			missing = append(missing, "serp.key is required")
		}
		if c.Scrape.Concurrency < 1 || c.Scrape.Concurrency > 50 {
			missing = append(missing, "scrape.concurrency must be between 1 and 50")
		}
	case "enrich":
		checkCommon()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 50 {
			missing = append(missing, "enrich.concurrency must be between 1 and 50")
		}
	case "campaign":
		checkCommon()
		if c.Gmail.ClientID == "" {
			missing = append(missing, "gmail.client_id is required")
		}
		if c.Gmail.ClientSecret == "" {
			missing = append(missing, "gmail.client_secret is required")
		}
	case "serve":
		checkCommon()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
