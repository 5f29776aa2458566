package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "TRACKUA_CONFIG"
	channelEnv      = "TELEGRAM_CHANNEL"
	searchPhraseEnv = "TELEGRAM_SEARCH_PHRASE"
	feedEnv         = "TELEGRAM_FEED"
	openAIModelEnv  = "OPENAI_MODEL"
	messageLimitEnv = "MESSAGE_LIMIT"
	incrementalEnv  = "USE_INCREMENTAL"
	outputFileEnv   = "OUTPUT_FILE"
	logLevelEnv     = "LOG_LEVEL"
	requestDelayEnv = "REQUEST_DELAY"
)

// Config holds every setting the scraper needs, built once at startup and
// passed by reference; core logic never reads ambient state.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Processing ProcessingConfig `yaml:"processing"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TelegramConfig selects the channel, the search phrase and the feed strategy.
type TelegramConfig struct {
	Channel      string `yaml:"channel"`
	SearchPhrase string `yaml:"searchPhrase"`
	// Feed picks the transport: "mtproto" (authenticated) or "web" (public
	// preview pages, no credentials).
	Feed        string `yaml:"feed"`
	SessionFile string `yaml:"sessionFile"`
}

// OpenAIConfig defines how the analyzer contacts the model.
type OpenAIConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

// ProcessingConfig chooses the run topology and bounds the feed pass. The
// fields are pointers so a config file can explicitly select the zero values
// (two-phase mode, unlimited) without being mistaken for "not set".
type ProcessingConfig struct {
	// Incremental interleaves collection and enrichment per message; false
	// selects the two-phase collect-then-enrich mode.
	Incremental *bool `yaml:"incremental"`
	// MessageLimit bounds the feed iteration; 0 means all messages.
	MessageLimit *int `yaml:"messageLimit"`
}

// IsIncremental resolves the topology, defaulting to incremental.
func (p ProcessingConfig) IsIncremental() bool {
	if p.Incremental == nil {
		return true
	}
	return *p.Incremental
}

// Limit resolves the feed bound; 0 means all messages.
func (p ProcessingConfig) Limit() int {
	if p.MessageLimit == nil {
		return 0
	}
	return *p.MessageLimit
}

// RateLimitConfig bounds outbound analyzer traffic.
type RateLimitConfig struct {
	RequestDelay          time.Duration `yaml:"requestDelay"`
	MaxConcurrentRequests int           `yaml:"maxConcurrentRequests"`
	RetryMaxAttempts      int           `yaml:"retryMaxAttempts"`
	RetryMaxElapsed       time.Duration `yaml:"retryMaxElapsed"`
}

// OutputConfig names the durable artifacts.
type OutputConfig struct {
	File string `yaml:"file"`
}

// LoggingConfig steers the slog setup.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides. Priority: defaults < config file < environment.
func Load() Config {
	return LoadPath(os.Getenv(configPathEnv))
}

// LoadPath is Load with an explicit file path; an empty path falls back to
// ./config.yaml when that exists.
func LoadPath(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(channelEnv); v != "" {
		c.Telegram.Channel = v
	}
	if v := os.Getenv(searchPhraseEnv); v != "" {
		c.Telegram.SearchPhrase = v
	}
	if v := os.Getenv(feedEnv); v != "" {
		c.Telegram.Feed = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv(outputFileEnv); v != "" {
		c.Output.File = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(messageLimitEnv); v != "" {
		switch strings.ToLower(v) {
		case "none", "null", "all":
			c.Processing.MessageLimit = intPtr(0)
		default:
			if n, err := strconv.Atoi(v); err == nil {
				c.Processing.MessageLimit = intPtr(n)
			} else {
				log.Printf("config: invalid %s=%q, keeping %d", messageLimitEnv, v, c.Processing.Limit())
			}
		}
	}
	if v := os.Getenv(incrementalEnv); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			c.Processing.Incremental = boolPtr(true)
		default:
			c.Processing.Incremental = boolPtr(false)
		}
	}
	if v := os.Getenv(requestDelayEnv); v != "" {
		if d, err := parseDelay(v); err == nil {
			c.RateLimit.RequestDelay = d
		} else {
			log.Printf("config: invalid %s=%q, keeping %s", requestDelayEnv, v, c.RateLimit.RequestDelay)
		}
	}
}

// parseDelay accepts either a Go duration ("1.5s") or a bare number of
// seconds ("1.5"), matching the original deployments' environment files.
func parseDelay(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func mergeConfig(base, override Config) Config {
	if override.Telegram.Channel != "" {
		base.Telegram.Channel = override.Telegram.Channel
	}
	if override.Telegram.SearchPhrase != "" {
		base.Telegram.SearchPhrase = override.Telegram.SearchPhrase
	}
	if override.Telegram.Feed != "" {
		base.Telegram.Feed = override.Telegram.Feed
	}
	if override.Telegram.SessionFile != "" {
		base.Telegram.SessionFile = override.Telegram.SessionFile
	}

	if override.OpenAI.Endpoint != "" {
		base.OpenAI.Endpoint = override.OpenAI.Endpoint
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.MaxTokens > 0 {
		base.OpenAI.MaxTokens = override.OpenAI.MaxTokens
	}
	if override.OpenAI.Temperature > 0 {
		base.OpenAI.Temperature = override.OpenAI.Temperature
	}

	if override.Processing.Incremental != nil {
		base.Processing.Incremental = override.Processing.Incremental
	}
	if override.Processing.MessageLimit != nil {
		base.Processing.MessageLimit = override.Processing.MessageLimit
	}

	if override.RateLimit.RequestDelay > 0 {
		base.RateLimit.RequestDelay = override.RateLimit.RequestDelay
	}
	if override.RateLimit.MaxConcurrentRequests > 0 {
		base.RateLimit.MaxConcurrentRequests = override.RateLimit.MaxConcurrentRequests
	}
	if override.RateLimit.RetryMaxAttempts > 0 {
		base.RateLimit.RetryMaxAttempts = override.RateLimit.RetryMaxAttempts
	}
	if override.RateLimit.RetryMaxElapsed > 0 {
		base.RateLimit.RetryMaxElapsed = override.RateLimit.RetryMaxElapsed
	}

	if override.Output.File != "" {
		base.Output.File = override.Output.File
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.File != "" {
		base.Logging.File = override.Logging.File
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Telegram: TelegramConfig{
			Channel:      "kpszsu",
			SearchPhrase: "У ніч на",
			Feed:         "mtproto",
			SessionFile:  "session.json",
		},
		OpenAI: OpenAIConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			MaxTokens:   2000,
			Temperature: 0,
		},
		Processing: ProcessingConfig{
			Incremental:  boolPtr(true),
			MessageLimit: intPtr(1000),
		},
		RateLimit: RateLimitConfig{
			RequestDelay:          time.Second,
			MaxConcurrentRequests: 5,
			RetryMaxAttempts:      3,
			RetryMaxElapsed:       60 * time.Second,
		},
		Output: OutputConfig{
			File: "ukraine_airforce_updates.csv",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "telegram_scraper.log",
		},
	}
}

const exampleConfig = `# Example configuration. Copy to config.yaml and edit.
telegram:
  channel: kpszsu            # channel username, without @
  searchPhrase: "У ніч на"   # literal substring a message must contain
  feed: mtproto              # mtproto (needs credentials) or web (public preview)
  sessionFile: session.json

openai:
  model: gpt-4o-mini         # gpt-4o, gpt-4o-mini, gpt-4-turbo, ...
  maxTokens: 2000
  temperature: 0

processing:
  incremental: true          # true = per-message append+enrich, false = two-phase
  messageLimit: 1000         # 0 = all messages

rateLimit:
  requestDelay: 1s
  maxConcurrentRequests: 5
  retryMaxAttempts: 3
  retryMaxElapsed: 60s

output:
  file: ukraine_airforce_updates.csv

logging:
  level: info                # debug, info, warn, error
  file: telegram_scraper.log
`

// SaveExample writes a commented example configuration file.
func SaveExample(filename string) error {
	if err := os.WriteFile(filename, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }
