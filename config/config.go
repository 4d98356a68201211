// Package config loads settings from the environment and an optional
// translator.yaml into a typed Config used across the service.
// It applies defaults so the binary can run locally with only an API key.
// For optional integrations (e.g., Twitch chat), use the Validate* helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// HTTP
	HTTPAddr string `mapstructure:"http_addr"`
	Env      string `mapstructure:"env"`

	// Admin auth, rate limiting and CORS for the control endpoints
	AdminUsername          string        `mapstructure:"admin_username"`
	AdminPassword          string        `mapstructure:"admin_password"`
	AdminToken             string        `mapstructure:"admin_token"`
	RateLimitEnabled       bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequestsPerIP int           `mapstructure:"rate_limit_requests_per_ip"`
	RateLimitWindow        time.Duration `mapstructure:"rate_limit_window"`
	CORSPermissive         string        `mapstructure:"cors_permissive"`
	CORSAllowedOrigins     string        `mapstructure:"cors_allowed_origins"`

	// Vision API
	AnthropicAPIKey        string        `mapstructure:"anthropic_api_key"`
	VisionBaseURL          string        `mapstructure:"vision_base_url"`
	VisionModel            string        `mapstructure:"vision_model"`
	VisionTranslateTimeout time.Duration `mapstructure:"vision_translate_timeout"`
	VisionDetectTimeout    time.Duration `mapstructure:"vision_detect_timeout"`
	VisionMaxRetries       int           `mapstructure:"vision_max_retries"`

	// Translation pipeline
	PollInterval      time.Duration `mapstructure:"translation_poll_interval"`
	ChangeThreshold   int           `mapstructure:"translation_change_threshold"`
	DetectionInterval time.Duration `mapstructure:"translation_detection_interval"`
	DebugMode         bool          `mapstructure:"translation_debug"`
	DebugDir          string        `mapstructure:"translation_debug_dir"`
	Mode              string        `mapstructure:"translation_mode"`
	AutoDetect        bool          `mapstructure:"translation_auto_detect"`
	DialogueBox       string        `mapstructure:"translation_dialogue_box"`
	AutoStart         bool          `mapstructure:"translation_auto_start"`

	// Debug image retention
	DebugRetentionKeep     int           `mapstructure:"debug_retention_keep"`
	DebugRetentionMaxAge   time.Duration `mapstructure:"debug_retention_max_age"`
	DebugRetentionInterval time.Duration `mapstructure:"debug_retention_interval"`
	DebugRetentionDryRun   bool          `mapstructure:"debug_retention_dry_run"`

	// Frame capture
	CaptureSource  string `mapstructure:"capture_source"`
	CaptureDisplay int    `mapstructure:"capture_display"`
	CaptureRegion  string `mapstructure:"capture_region"`
	CaptureFile    string `mapstructure:"capture_file"`

	// OCR
	OCRLanguage string `mapstructure:"ocr_language"`

	// Twitch
	TwitchChannel         string        `mapstructure:"twitch_channel"`
	TwitchBotUsername     string        `mapstructure:"twitch_bot_username"`
	TwitchOAuthToken      string        `mapstructure:"twitch_oauth_token"`
	TwitchClientID        string        `mapstructure:"twitch_client_id"`
	TwitchClientSecret    string        `mapstructure:"twitch_client_secret"`
	ChatMirror            bool          `mapstructure:"chat_mirror"`
	ChatMirrorMinInterval time.Duration `mapstructure:"chat_mirror_min_interval"`
	LiveAutoStart         bool          `mapstructure:"live_auto_start"`
	LivePollInterval      time.Duration `mapstructure:"live_poll_interval"`

	// Database (empty disables translation history)
	DBDsn string `mapstructure:"db_dsn"`
}

// Capture sources.
const (
	CaptureScreen = "screen"
	CaptureFile   = "file"
	CapturePush   = "push"
)

var defaults = map[string]any{
	"http_addr":                  ":8080",
	"env":                        "dev",
	"admin_username":             "",
	"admin_password":             "",
	"admin_token":                "",
	"rate_limit_enabled":         true,
	"rate_limit_requests_per_ip": 30,
	"rate_limit_window":          time.Minute,
	"cors_permissive":            "",
	"cors_allowed_origins":       "",

	"anthropic_api_key":        "",
	"vision_base_url":          "https://api.anthropic.com",
	"vision_model":             "claude-3-haiku-20240307",
	"vision_translate_timeout": 15 * time.Second,
	"vision_detect_timeout":    25 * time.Second,
	"vision_max_retries":       2,

	"translation_poll_interval":      2 * time.Second,
	"translation_change_threshold":   7,
	"translation_detection_interval": 300 * time.Second,
	"translation_debug":              false,
	"translation_debug_dir":          "tmp/translation_debug",
	"translation_mode":               "ocr",
	"translation_auto_detect":        true,
	"translation_dialogue_box":       "",
	"translation_auto_start":         false,

	"debug_retention_keep":     200,
	"debug_retention_max_age":  time.Duration(0),
	"debug_retention_interval": time.Hour,
	"debug_retention_dry_run":  false,

	"capture_source":  CaptureScreen,
	"capture_display": 0,
	"capture_region":  "",
	"capture_file":    "",

	"ocr_language": "jpn",

	"twitch_channel":           "",
	"twitch_bot_username":      "",
	"twitch_oauth_token":       "",
	"twitch_client_id":         "",
	"twitch_client_secret":     "",
	"chat_mirror":              false,
	"chat_mirror_min_interval": 3 * time.Second,
	"live_auto_start":          false,
	"live_poll_interval":       time.Minute,

	"db_dsn": "",
}

// Load reads translator.yaml (from . or ./config) if present, then the
// environment, over the built-in defaults. Environment variables are the
// upper-cased keys, e.g. TRANSLATION_POLL_INTERVAL=1500ms.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName("translator")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read translator.yaml: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.CaptureSource = strings.ToLower(strings.TrimSpace(cfg.CaptureSource))
	return cfg, nil
}

// Validate checks ranges and enumerations. It does not require the API key,
// so the HTTP surface can come up for inspection without one.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("TRANSLATION_POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.ChangeThreshold < 0 || c.ChangeThreshold > 64 {
		errs = append(errs, fmt.Errorf("TRANSLATION_CHANGE_THRESHOLD must be within 0..64, got %d", c.ChangeThreshold))
	}
	if c.DetectionInterval <= 0 {
		errs = append(errs, fmt.Errorf("TRANSLATION_DETECTION_INTERVAL must be positive, got %s", c.DetectionInterval))
	}
	if c.Mode != "ocr" && c.Mode != "vision" {
		errs = append(errs, fmt.Errorf("TRANSLATION_MODE must be ocr or vision, got %q", c.Mode))
	}
	switch c.CaptureSource {
	case CaptureScreen, CapturePush:
	case CaptureFile:
		if c.CaptureFile == "" {
			errs = append(errs, errors.New("CAPTURE_FILE is required when CAPTURE_SOURCE=file"))
		}
	default:
		errs = append(errs, fmt.Errorf("CAPTURE_SOURCE must be screen, file or push, got %q", c.CaptureSource))
	}
	if c.VisionMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("VISION_MAX_RETRIES must not be negative, got %d", c.VisionMaxRetries))
	}
	return errors.Join(errs...)
}

// ValidateVisionReady checks the credentials needed to call the vision API.
func (c *Config) ValidateVisionReady() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("missing vision env: require ANTHROPIC_API_KEY")
	}
	return nil
}

// ValidateChatReady checks required fields when the chat mirror is enabled.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// ValidateLiveReady checks the app credentials used to poll stream status.
func (c *Config) ValidateLiveReady() error {
	if c.TwitchChannel == "" || c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	return nil
}
