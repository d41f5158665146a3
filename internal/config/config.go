package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Log     LogConfig                 `toml:"log"`
	DB      DBConfig                  `toml:"database"`
	Discord DiscordConfig             `toml:"discord"`
	Metrics MetricsConfig             `toml:"metrics"`
	Automod AutomodConfig             `toml:"automod"`
	Guilds  map[string]GuildOverrides `toml:"guilds"`
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

func (l *LogLevel) UnmarshalText(text []byte) error {
	v := string(text)
	switch LogLevel(v) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		*l = LogLevel(v)
		return nil
	default:
		return fmt.Errorf("invalid log.level: %q (must be debug, info, warn, error)", v)
	}
}

func (l LogLevel) String() string { return string(l) }

func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type LogConfig struct {
	Level LogLevel `toml:"level"`
	// ViolationLevels overrides the level used when a violation kind is logged.
	ViolationLevels map[string]LogLevel `toml:"violation_levels"`
}

type Backend string

const (
	BackendBadger Backend = "badger"
	BackendRedis  Backend = "redis"
)

func (b *Backend) UnmarshalText(text []byte) error {
	v := string(text)
	switch Backend(v) {
	case BackendBadger, BackendRedis:
		*b = Backend(v)
		return nil
	default:
		return fmt.Errorf("invalid database.backend: %q (must be badger, redis)", v)
	}
}

type DBConfig struct {
	Backend  Backend `toml:"backend"`
	Path     string  `toml:"path"`
	RedisURL string  `toml:"redis_url"`
}

type DiscordConfig struct {
	Token             string        `toml:"token"`
	NoticeTTL         time.Duration `toml:"notice_ttl"`
	NoticeRate        float64       `toml:"notice_rate"`
	NoticeBurst       int           `toml:"notice_burst"`
	RequestTimeout    time.Duration `toml:"request_timeout"`
	DeleteMessageDays int           `toml:"delete_message_days"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

type ThresholdsConfig struct {
	Mute int `toml:"mute"`
	Kick int `toml:"kick"`
	Ban  int `toml:"ban"`
}

// AutomodConfig holds the global defaults every guild inherits from.
type AutomodConfig struct {
	Enabled           bool             `toml:"enabled"`
	BannedWords       []string         `toml:"banned_words"`
	FilterInvites     bool             `toml:"filter_invites"`
	FilterLinks       bool             `toml:"filter_links"`
	MaxMentions       int              `toml:"max_mentions"`
	MaxCapsPercent    int              `toml:"max_caps_percent"`
	MinCapsLength     int              `toml:"min_caps_length"`
	MinAccountAgeDays int              `toml:"min_account_age_days"`
	SpamThreshold     int              `toml:"spam_threshold"`
	SpamInterval      time.Duration    `toml:"spam_interval"`
	ExemptChannels    []string         `toml:"exempt_channels"`
	ExemptRoles       []string         `toml:"exempt_roles"`
	Thresholds        ThresholdsConfig `toml:"thresholds"`
	MuteDuration      time.Duration    `toml:"mute_duration"`
	AuditChannelID    string           `toml:"audit_channel_id"`

	CleanupInterval time.Duration `toml:"cleanup_interval"`
	MaxIdle         time.Duration `toml:"max_idle"`
}

// GuildOverrides is a sparse copy of AutomodConfig. A nil field inherits the global value.
type GuildOverrides struct {
	Enabled           *bool          `toml:"enabled" json:"enabled,omitempty"`
	BannedWords       *[]string      `toml:"banned_words" json:"banned_words,omitempty"`
	FilterInvites     *bool          `toml:"filter_invites" json:"filter_invites,omitempty"`
	FilterLinks       *bool          `toml:"filter_links" json:"filter_links,omitempty"`
	MaxMentions       *int           `toml:"max_mentions" json:"max_mentions,omitempty"`
	MaxCapsPercent    *int           `toml:"max_caps_percent" json:"max_caps_percent,omitempty"`
	MinCapsLength     *int           `toml:"min_caps_length" json:"min_caps_length,omitempty"`
	MinAccountAgeDays *int           `toml:"min_account_age_days" json:"min_account_age_days,omitempty"`
	SpamThreshold     *int           `toml:"spam_threshold" json:"spam_threshold,omitempty"`
	SpamInterval      *time.Duration `toml:"spam_interval" json:"spam_interval,omitempty"`
	ExemptChannels    *[]string      `toml:"exempt_channels" json:"exempt_channels,omitempty"`
	ExemptRoles       *[]string      `toml:"exempt_roles" json:"exempt_roles,omitempty"`
	MuteThreshold     *int           `toml:"mute_threshold" json:"mute_threshold,omitempty"`
	KickThreshold     *int           `toml:"kick_threshold" json:"kick_threshold,omitempty"`
	BanThreshold      *int           `toml:"ban_threshold" json:"ban_threshold,omitempty"`
	MuteDuration      *time.Duration `toml:"mute_duration" json:"mute_duration,omitempty"`
	AuditChannelID    *string        `toml:"audit_channel_id" json:"audit_channel_id,omitempty"`
}

func DefaultAutomod() AutomodConfig {
	return AutomodConfig{
		Enabled:         true,
		FilterInvites:   true,
		MaxMentions:     5,
		MaxCapsPercent:  70,
		MinCapsLength:   10,
		SpamThreshold:   5,
		SpamInterval:    5 * time.Second,
		Thresholds:      ThresholdsConfig{Mute: 3, Kick: 5, Ban: 7},
		MuteDuration:    time.Hour,
		CleanupInterval: time.Minute,
		MaxIdle:         5 * time.Minute,
	}
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: InfoLevel},
		DB: DBConfig{
			Backend: BackendBadger,
			Path:    "./automod-db",
		},
		Discord: DiscordConfig{
			NoticeTTL:      5 * time.Second,
			NoticeRate:     1,
			NoticeBurst:    3,
			RequestTimeout: 10 * time.Second,
		},
		Automod: DefaultAutomod(),
	}
}

func (c *Config) validate() error {
	// --- [database] ---
	switch c.DB.Backend {
	case BackendBadger:
		if c.DB.Path == "" {
			return errors.New("database.path must be set for the badger backend")
		}
	case BackendRedis:
		if c.DB.RedisURL == "" {
			return errors.New("database.redis_url must be set for the redis backend")
		}
	default:
		return fmt.Errorf("database.backend: unknown backend %q", c.DB.Backend)
	}

	// --- [discord] ---
	if c.Discord.NoticeTTL < 0 {
		return errors.New("discord.notice_ttl must not be a negative duration")
	}
	if c.Discord.NoticeRate <= 0 {
		return errors.New("discord.notice_rate must be positive")
	}
	if c.Discord.NoticeBurst < 1 {
		return errors.New("discord.notice_burst must be at least 1")
	}
	if c.Discord.RequestTimeout < 0 {
		return errors.New("discord.request_timeout must not be a negative duration")
	}
	if d := c.Discord.DeleteMessageDays; d < 0 || d > 7 {
		return errors.New("discord.delete_message_days must be in [0..7]")
	}

	// --- [automod] ---
	if err := c.Automod.validate(); err != nil {
		return err
	}

	// --- [guilds.<id>] ---
	for id, o := range c.Guilds {
		if err := o.validate(); err != nil {
			return fmt.Errorf("guilds.%s.%w", id, err)
		}
	}
	return nil
}

func (o *GuildOverrides) validate() error {
	ints := []struct {
		name  string
		value *int
	}{
		{"max_mentions", o.MaxMentions},
		{"max_caps_percent", o.MaxCapsPercent},
		{"min_caps_length", o.MinCapsLength},
		{"min_account_age_days", o.MinAccountAgeDays},
		{"spam_threshold", o.SpamThreshold},
		{"mute_threshold", o.MuteThreshold},
		{"kick_threshold", o.KickThreshold},
		{"ban_threshold", o.BanThreshold},
	}
	for _, f := range ints {
		if f.value != nil && *f.value < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
	}
	if o.MaxCapsPercent != nil && *o.MaxCapsPercent > 100 {
		return errors.New("max_caps_percent must be in [0..100]")
	}
	if o.SpamInterval != nil && *o.SpamInterval < 0 {
		return errors.New("spam_interval must not be a negative duration")
	}
	if o.MuteDuration != nil && *o.MuteDuration < 0 {
		return errors.New("mute_duration must not be a negative duration")
	}
	return nil
}

func (a *AutomodConfig) validate() error {
	if a.MaxMentions < 0 {
		return errors.New("automod.max_mentions must not be negative")
	}
	if a.MaxCapsPercent < 0 || a.MaxCapsPercent > 100 {
		return errors.New("automod.max_caps_percent must be in [0..100]")
	}
	if a.MinCapsLength < 0 {
		return errors.New("automod.min_caps_length must not be negative")
	}
	if a.MinAccountAgeDays < 0 {
		return errors.New("automod.min_account_age_days must not be negative")
	}
	if a.SpamThreshold < 0 {
		return errors.New("automod.spam_threshold must not be negative")
	}
	if a.SpamThreshold > 0 && a.SpamInterval <= 0 {
		return errors.New("automod.spam_interval must be a positive duration when spam_threshold is set")
	}
	if a.Thresholds.Mute < 0 || a.Thresholds.Kick < 0 || a.Thresholds.Ban < 0 {
		return errors.New("automod.thresholds: mute, kick and ban must not be negative")
	}
	if a.Thresholds.Mute > 0 && a.MuteDuration <= 0 {
		return errors.New("automod.mute_duration must be a positive duration when thresholds.mute is set")
	}
	if a.CleanupInterval <= 0 {
		return errors.New("automod.cleanup_interval must be a positive duration")
	}
	if a.MaxIdle <= 0 {
		return errors.New("automod.max_idle must be a positive duration")
	}
	return nil
}

func Load(path string, useDefaults bool) (*Config, bool, error) {
	cfg := defaultConfig()
	defaultsUsed := false

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if useDefaults {
				defaultsUsed = true
				if err := cfg.validate(); err != nil {
					return nil, true, err
				}
				return cfg, defaultsUsed, nil
			}
			return nil, false, fmt.Errorf("config file not found at %s", path)
		}
		return nil, false, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, defaultsUsed, nil
}
