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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Render     RenderConfig     `yaml:"render" mapstructure:"render"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Guard      GuardConfig      `yaml:"guard" mapstructure:"guard"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// FetchConfig configures the content fetcher.
type FetchConfig struct {
	UserAgents   []string `yaml:"user_agents" mapstructure:"user_agents"`
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts  int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RatePerHost  float64  `yaml:"rate_per_host" mapstructure:"rate_per_host"`
}

// SearchConfig configures candidate resolution.
type SearchConfig struct {
	Providers    []string `yaml:"providers" mapstructure:"providers"` // jina, perplexity
	MaxHits      int      `yaml:"max_hits" mapstructure:"max_hits"`
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ExcludePaths []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	MineMaxPages int      `yaml:"mine_max_pages" mapstructure:"mine_max_pages"`
}

// JinaConfig holds Jina search and reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GoogleConfig holds Google Places settings used to find a missing website.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExtractionConfig selects the structured-extraction capability.
type ExtractionConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"` // auto, anthropic, heuristic
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TaxonomyPath string `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
}

// PDFConfig configures PDF text extraction.
type PDFConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // pdfcpu, pdftotext, mistral
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// OCRConfig configures image OCR and the Mistral document endpoint.
type OCRConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"` // gemini, mistral, none
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	GeminiKey    string `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model" mapstructure:"gemini_model"`
	MistralKey   string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// RenderConfig controls the reader fallback for script-rendered pages.
type RenderConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// PipelineConfig holds orchestrator limits.
type PipelineConfig struct {
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxFetch           int     `yaml:"max_fetch" mapstructure:"max_fetch"`
	MaxCandidates      int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	TopBlocks          int     `yaml:"top_blocks" mapstructure:"top_blocks"`
	DeadlineSecs       int     `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	MaxBlockChars      int     `yaml:"max_block_chars" mapstructure:"max_block_chars"`
	PriceMin           float64 `yaml:"price_min" mapstructure:"price_min"`
	PriceMax           float64 `yaml:"price_max" mapstructure:"price_max"`
	MaxSections        int     `yaml:"max_sections" mapstructure:"max_sections"`
	MaxItemsPerSection int     `yaml:"max_items_per_section" mapstructure:"max_items_per_section"`
	MaxItemsTotal      int     `yaml:"max_items_total" mapstructure:"max_items_total"`
	TopItemsCap        int     `yaml:"top_items_cap" mapstructure:"top_items_cap"`
	ThinBrunchItems    int     `yaml:"thin_brunch_items" mapstructure:"thin_brunch_items"`
}

// GuardConfig holds the regression guard and merge thresholds.
type GuardConfig struct {
	MinPreviousItems    int     `yaml:"min_previous_items" mapstructure:"min_previous_items"`
	MinPreviousSections int     `yaml:"min_previous_sections" mapstructure:"min_previous_sections"`
	NarrowPattern       string  `yaml:"narrow_pattern" mapstructure:"narrow_pattern"`
	MergeOverlap        float64 `yaml:"merge_overlap" mapstructure:"merge_overlap"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultUserAgents are desktop browser user agents rotated per fetch attempt.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "menus.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 120)

	v.SetDefault("fetch.user_agents", DefaultUserAgents)
	v.SetDefault("fetch.timeout_secs", 20)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.max_body_bytes", 15<<20)
	v.SetDefault("fetch.rate_per_host", 4.0)

	v.SetDefault("search.providers", []string{"jina", "perplexity"})
	v.SetDefault("search.max_hits", 12)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.exclude_paths", []string{"/blog/*", "/news/*", "/press/*", "/careers/*", "/jobs/*", "/gift-cards*"})
	v.SetDefault("search.mine_max_pages", 3)

	// Secrets default to empty so env overrides reach Unmarshal.
	for _, k := range []string{"jina.key", "perplexity.key", "google.key", "anthropic.key", "ocr.gemini_api_key", "ocr.mistral_api_key", "extraction.taxonomy_path"} {
		v.SetDefault(k, "")
	}
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)

	v.SetDefault("extraction.provider", "auto")
	v.SetDefault("extraction.timeout_secs", 90)
	v.SetDefault("pdf.provider", "pdfcpu")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.provider", "none")
	v.SetDefault("ocr.timeout_secs", 60)
	v.SetDefault("ocr.gemini_model", "gemini-2.0-flash")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("render.enabled", false)

	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_fetch", 8)
	v.SetDefault("pipeline.max_candidates", 20)
	v.SetDefault("pipeline.top_blocks", 3)
	v.SetDefault("pipeline.deadline_secs", 90)
	v.SetDefault("pipeline.max_block_chars", 180000)
	v.SetDefault("pipeline.price_min", 1.0)
	v.SetDefault("pipeline.price_max", 200.0)
	v.SetDefault("pipeline.max_sections", 24)
	v.SetDefault("pipeline.max_items_per_section", 600)
	v.SetDefault("pipeline.max_items_total", 2000)
	v.SetDefault("pipeline.top_items_cap", 500)
	v.SetDefault("pipeline.thin_brunch_items", 15)

	v.SetDefault("guard.min_previous_items", 8)
	v.SetDefault("guard.min_previous_sections", 2)
	v.SetDefault("guard.narrow_pattern", `(?i)\b(brunch|breakfast)\b`)
	v.SetDefault("guard.merge_overlap", 0.85)
}

// Validate checks the settings a command depends on. Modes: "discover"
// runs the pipeline only, "store" also persists, "serve" also listens.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "discover", "store", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Extraction.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "auto", "", "heuristic":
	default:
		errs = append(errs, "extraction.provider must be auto, anthropic or heuristic")
	}

	switch c.OCR.Provider {
	case "gemini":
		if c.OCR.GeminiKey == "" {
			errs = append(errs, "ocr.gemini_api_key is required")
		}
	case "mistral":
		if c.OCR.MistralKey == "" {
			errs = append(errs, "ocr.mistral_api_key is required")
		}
	case "none", "":
	default:
		errs = append(errs, "ocr.provider must be gemini, mistral or none")
	}

	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 16 {
		errs = append(errs, "pipeline.concurrency must be between 1 and 16")
	}
	if c.Pipeline.PriceMin <= 0 || c.Pipeline.PriceMax <= c.Pipeline.PriceMin {
		errs = append(errs, "pipeline.price_min must be > 0 and below pipeline.price_max")
	}
	if c.Guard.MergeOverlap <= 0 || c.Guard.MergeOverlap > 1 {
		errs = append(errs, "guard.merge_overlap must be in (0, 1]")
	}

	if mode == "store" || mode == "serve" {
		switch c.Store.Driver {
		case "sqlite":
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
