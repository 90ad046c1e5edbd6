package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for relaybot. It is built once at startup
// and handed to every component that needs it.
type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Line    LineConfig    `yaml:"line"`
	Server  ServerConfig  `yaml:"server"`
	Relay   RelayConfig   `yaml:"relay"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type DiscordConfig struct {
	Token       string `yaml:"token" validate:"required"`
	ChannelID   string `yaml:"channelId" validate:"required,numeric"`
	WebhookName string `yaml:"webhookName" validate:"required,max=80"`
}

type LineConfig struct {
	ChannelToken     string `yaml:"channelToken" validate:"required"`
	ChannelSecret    string `yaml:"channelSecret" validate:"required"`
	GroupID          string `yaml:"groupId" validate:"required,startswith=C"`
	CallbackPath     string `yaml:"callbackPath" validate:"required,startswith=/"`
	DefaultAvatarURL string `yaml:"defaultAvatarUrl" validate:"required,url"`
}

type ServerConfig struct {
	// PublicHost is the externally reachable host (optionally with scheme)
	// that LINE delivers callbacks to.
	PublicHost string `yaml:"publicHost" validate:"required"`
	Port       int    `yaml:"port" validate:"min=1,max=65535"`
}

type RelayConfig struct {
	EventTimeout time.Duration `yaml:"eventTimeout" validate:"min=1s"`
	FetchTimeout time.Duration `yaml:"fetchTimeout" validate:"min=1s"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// CallbackURL is the URL LINE must deliver webhook events to.
func (c *Config) CallbackURL() string {
	host := strings.TrimSuffix(c.Server.PublicHost, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + c.Line.CallbackPath
}

// Load builds the effective configuration: defaults, then the optional YAML
// file at path, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Log.File = ExpandPath(cfg.Log.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// lookupFunc matches os.LookupEnv so tests can supply their own environment.
type lookupFunc func(key string) (string, bool)

// applyEnv overrides cfg with the well-known environment variables.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"DISCORD_TOKEN", &cfg.Discord.Token},
		{"LINE_TRANSFER_CHANNEL_ID", &cfg.Discord.ChannelID},
		{"DISCORD_WEBHOOK_NAME", &cfg.Discord.WebhookName},
		{"LINE_CHANNEL_TOKEN", &cfg.Line.ChannelToken},
		{"LINE_CHANNEL_SECRET", &cfg.Line.ChannelSecret},
		{"LINE_GROUP_ID", &cfg.Line.GroupID},
		{"LINE_CALLBACK_PATH", &cfg.Line.CallbackPath},
		{"LINE_DEFAULT_AVATAR_URL", &cfg.Line.DefaultAvatarURL},
		{"RAILWAY_STATIC_URL", &cfg.Server.PublicHost},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FILE", &cfg.Log.File},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if len(groups) >= 3 && groups[2] != "" {
				return groups[2]
			}
			return match
		}
		return val
	})
}

var validate = newValidator()

// newValidator reports fields by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the config has valid values and reports every
// offending field at once.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("config validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		if env, ok := envNames[field]; ok {
			return fmt.Sprintf("%s is required (set %s)", field, env)
		}
		return field + " is required"
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q check", field, fe.Tag())
	}
}

// fieldPath turns "Config.line.groupId" into "line.groupId".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

var envNames = map[string]string{
	"discord.token":         "DISCORD_TOKEN",
	"discord.channelId":     "LINE_TRANSFER_CHANNEL_ID",
	"line.channelToken":     "LINE_CHANNEL_TOKEN",
	"line.channelSecret":    "LINE_CHANNEL_SECRET",
	"line.groupId":          "LINE_GROUP_ID",
	"line.defaultAvatarUrl": "LINE_DEFAULT_AVATAR_URL",
	"server.publicHost":     "RAILWAY_STATIC_URL",
}

// Sanitize returns a copy of cfg with secrets masked, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Discord.Token = mask(cfg.Discord.Token)
	out.Line.ChannelToken = mask(cfg.Line.ChannelToken)
	out.Line.ChannelSecret = mask(cfg.Line.ChannelSecret)
	return &out
}

func mask(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return s[:4] + "****"
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
