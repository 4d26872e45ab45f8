// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

// EnvVar names the environment variable Load reads the path from.
const EnvVar = "LLMBOT_CONFIG"

// Config is the whole configuration document.
type Config struct {
	Models ModelsConfig
	Bot    BotConfig
}

// ModelsConfig is element 0 of the document.
type ModelsConfig struct {
	// Models is the allow-list of model names.
	Models []string `json:"models" yaml:"models"`

	// RestrictToSpecifiedModels limits the catalog to Models.
	RestrictToSpecifiedModels bool `json:"restrict_to_specified_models" yaml:"restrict_to_specified_models"`
}

// BotConfig is element 1 of the document.
type BotConfig struct {
	// Server is the Matrix homeserver base URL.
	Server string `json:"server" yaml:"server"`

	// Endpoint is the completion service base URL.
	Endpoint string `json:"xwiki_xwiki_v1_endpoint" yaml:"xwiki_xwiki_v1_endpoint"`

	// Username is the bot's Matrix user ID. It is also the subject of
	// minted service tokens.
	Username string `json:"matrix_username" yaml:"matrix_username"`

	// Password may be empty, in which case the binary prompts for it.
	Password string `json:"matrix_password" yaml:"matrix_password"`

	DeviceID string `json:"device_id" yaml:"device_id"`

	// Channels are room IDs joined at startup and re-joined every
	// membership interval.
	Channels []string `json:"channels" yaml:"channels"`

	// Personality is the default persona.
	Personality string `json:"personality" yaml:"personality"`

	// Admins are the user IDs allowed to change a room's model.
	Admins []string `json:"admins" yaml:"admins"`

	ForbiddenWords     []string `json:"forbidden_words" yaml:"forbidden_words"`
	ModerationEnabled  bool     `json:"moderation_enabled" yaml:"moderation_enabled"`
	ModerationStrategy string   `json:"moderation_strategy" yaml:"moderation_strategy"`

	// DefaultModel is the preferred process-wide model name.
	DefaultModel string `json:"default_model" yaml:"default_model"`

	// JWTPayload holds extra claims for minted service tokens.
	JWTPayload map[string]any `json:"jwt_payload" yaml:"jwt_payload"`

	JWTExpirationHours float64 `json:"jwt_expiration_hours" yaml:"jwt_expiration_hours"`

	// SyncTimeout is the /sync long-poll timeout in milliseconds.
	SyncTimeout int `json:"sync_timeout" yaml:"sync_timeout"`

	ResponseTemperature float64 `json:"response_temperature" yaml:"response_temperature"`

	// AutoJoinRooms accepts every invite when true. When false only
	// invites to configured channels are accepted.
	AutoJoinRooms bool `json:"auto_join_rooms" yaml:"auto_join_rooms"`

	PrivateKeyFile string `json:"private_key_file" yaml:"private_key_file"`
	HelpFile       string `json:"help_file" yaml:"help_file"`

	// SendRatePerSecond caps outbound Matrix sends. Zero is unlimited.
	SendRatePerSecond float64 `json:"send_rate_per_second" yaml:"send_rate_per_second"`
	SendBurst         int     `json:"send_burst" yaml:"send_burst"`

	// RequestTimeoutSeconds bounds each completion service request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// Default returns the configuration every file is layered over.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			DefaultModel:          "AI.Models.waise-llama3",
			ModerationEnabled:     true,
			ModerationStrategy:    "forbidden_words",
			SyncTimeout:           30000,
			ResponseTemperature:   1,
			JWTExpirationHours:    3,
			AutoJoinRooms:         true,
			PrivateKeyFile:        "private.pem",
			HelpFile:              "help.txt",
			SendBurst:             1,
			RequestTimeoutSeconds: 120,
		},
	}
}

// Load reads the file named by LLMBOT_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads and decodes a configuration file. It does not
// validate; call Validate once any interactive values are filled in.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// UnmarshalJSON decodes the two-element array form. Keys absent from
// the file keep their current values.
func (c *Config) UnmarshalJSON(data []byte) error {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return fmt.Errorf("expected a two-element array: %w", err)
	}
	if len(elements) != 2 {
		return fmt.Errorf("expected a two-element array, got %d elements", len(elements))
	}
	if err := json.Unmarshal(elements[0], &c.Models); err != nil {
		return fmt.Errorf("element 0: %w", err)
	}
	if err := json.Unmarshal(elements[1], &c.Bot); err != nil {
		return fmt.Errorf("element 1: %w", err)
	}
	return nil
}

// UnmarshalYAML decodes the two-element sequence form.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode || len(value.Content) != 2 {
		return fmt.Errorf("line %d: expected a sequence of two mappings", value.Line)
	}
	if err := value.Content[0].Decode(&c.Models); err != nil {
		return fmt.Errorf("element 0: %w", err)
	}
	if err := value.Content[1].Decode(&c.Bot); err != nil {
		return fmt.Errorf("element 1: %w", err)
	}
	return nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func (c *Config) expandVariables() {
	c.Bot.PrivateKeyFile = expandVars(c.Bot.PrivateKeyFile)
	c.Bot.HelpFile = expandVars(c.Bot.HelpFile)
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	bot := &c.Bot

	if err := validateHTTPURL(bot.Server); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := validateHTTPURL(bot.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("xwiki_xwiki_v1_endpoint: %w", err))
	}
	if _, err := ref.ParseUserID(bot.Username); err != nil {
		errs = append(errs, fmt.Errorf("matrix_username: %w", err))
	}
	for _, channel := range bot.Channels {
		if _, err := ref.ParseRoomID(channel); err != nil {
			errs = append(errs, fmt.Errorf("channels: %w", err))
		}
	}
	for _, admin := range bot.Admins {
		if _, err := ref.ParseUserID(admin); err != nil {
			errs = append(errs, fmt.Errorf("admins: %w", err))
		}
	}
	if strings.TrimSpace(bot.Personality) == "" {
		errs = append(errs, errors.New("personality is required"))
	}
	if bot.DefaultModel == "" {
		errs = append(errs, errors.New("default_model is required"))
	}
	if bot.ResponseTemperature < 0 || bot.ResponseTemperature > 2 {
		errs = append(errs, fmt.Errorf("response_temperature must be within [0, 2], got %g", bot.ResponseTemperature))
	}
	if bot.JWTExpirationHours <= 0 {
		errs = append(errs, fmt.Errorf("jwt_expiration_hours must be positive, got %g", bot.JWTExpirationHours))
	}
	if bot.SyncTimeout < 0 {
		errs = append(errs, fmt.Errorf("sync_timeout must not be negative, got %d", bot.SyncTimeout))
	}
	if bot.SendRatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("send_rate_per_second must not be negative, got %g", bot.SendRatePerSecond))
	}
	if bot.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout_seconds must be positive, got %d", bot.RequestTimeoutSeconds))
	}
	if bot.PrivateKeyFile == "" {
		errs = append(errs, errors.New("private_key_file is required"))
	}

	return errors.Join(errs...)
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	return nil
}

// JWTLifetime returns the validity span of minted service tokens.
func (b *BotConfig) JWTLifetime() time.Duration {
	return time.Duration(b.JWTExpirationHours * float64(time.Hour))
}

// RequestTimeout returns the completion service request deadline.
func (b *BotConfig) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutSeconds) * time.Second
}
