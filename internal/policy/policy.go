// Package policy turns global defaults and per-guild overrides into the
// effective automod policy used for one message.
package policy

import (
	"log/slog"
	"strings"
	"time"

	"github.com/lessucettes/adresu-automod/internal/config"
	"github.com/lessucettes/adresu-automod/internal/escalation"
)

// EffectivePolicy is immutable once built; share it freely between goroutines.
type EffectivePolicy struct {
	Enabled           bool
	BannedWords       []string
	FilterInvites     bool
	FilterLinks       bool
	MaxMentions       int
	MaxCapsPercent    int
	MinCapsLength     int
	MinAccountAgeDays int
	SpamThreshold     int
	SpamInterval      time.Duration
	ExemptChannels    map[string]struct{}
	ExemptRoles       map[string]struct{}
	Thresholds        escalation.Thresholds
	MuteDuration      time.Duration
	AuditChannelID    string
}

func (p *EffectivePolicy) ChannelExempt(channelID string) bool {
	_, ok := p.ExemptChannels[channelID]
	return ok
}

func (p *EffectivePolicy) AnyRoleExempt(roleIDs []string) bool {
	for _, id := range roleIDs {
		if _, ok := p.ExemptRoles[id]; ok {
			return true
		}
	}
	return false
}

// Merge overlays o on defaults. Out-of-range override values are clamped to
// the global default (or into range for percentages) and logged, never
// propagated as errors.
func Merge(guildID string, defaults config.AutomodConfig, o *config.GuildOverrides) *EffectivePolicy {
	if o == nil {
		o = &config.GuildOverrides{}
	}
	c := clamper{guildID: guildID}

	p := &EffectivePolicy{
		Enabled:           pick(o.Enabled, defaults.Enabled),
		BannedWords:       normalizeWords(pick(o.BannedWords, defaults.BannedWords)),
		FilterInvites:     pick(o.FilterInvites, defaults.FilterInvites),
		FilterLinks:       pick(o.FilterLinks, defaults.FilterLinks),
		MaxMentions:       c.nonNegative("max_mentions", o.MaxMentions, defaults.MaxMentions),
		MaxCapsPercent:    c.percent("max_caps_percent", o.MaxCapsPercent, defaults.MaxCapsPercent),
		MinCapsLength:     c.nonNegative("min_caps_length", o.MinCapsLength, defaults.MinCapsLength),
		MinAccountAgeDays: c.nonNegative("min_account_age_days", o.MinAccountAgeDays, defaults.MinAccountAgeDays),
		SpamThreshold:     c.nonNegative("spam_threshold", o.SpamThreshold, defaults.SpamThreshold),
		SpamInterval:      c.duration("spam_interval", o.SpamInterval, defaults.SpamInterval),
		ExemptChannels:    toSet(pick(o.ExemptChannels, defaults.ExemptChannels)),
		ExemptRoles:       toSet(pick(o.ExemptRoles, defaults.ExemptRoles)),
		Thresholds: escalation.Thresholds{
			Mute: c.nonNegative("mute_threshold", o.MuteThreshold, defaults.Thresholds.Mute),
			Kick: c.nonNegative("kick_threshold", o.KickThreshold, defaults.Thresholds.Kick),
			Ban:  c.nonNegative("ban_threshold", o.BanThreshold, defaults.Thresholds.Ban),
		},
		MuteDuration:   c.duration("mute_duration", o.MuteDuration, defaults.MuteDuration),
		AuditChannelID: pick(o.AuditChannelID, defaults.AuditChannelID),
	}
	return p
}

func pick[T any](override *T, fallback T) T {
	if override != nil {
		return *override
	}
	return fallback
}

type clamper struct {
	guildID string
}

func (c clamper) warn(field string, got, used any) {
	slog.Warn("Invalid guild policy override, using safe value",
		"guild_id", c.guildID, "field", field, "value", got, "used", used)
}

func (c clamper) nonNegative(field string, v *int, fallback int) int {
	if v == nil {
		return max(fallback, 0)
	}
	if *v < 0 {
		c.warn(field, *v, max(fallback, 0))
		return max(fallback, 0)
	}
	return *v
}

func (c clamper) percent(field string, v *int, fallback int) int {
	fallback = min(max(fallback, 0), 100)
	if v == nil {
		return fallback
	}
	switch {
	case *v < 0:
		c.warn(field, *v, fallback)
		return fallback
	case *v > 100:
		c.warn(field, *v, 100)
		return 100
	}
	return *v
}

func (c clamper) duration(field string, v *time.Duration, fallback time.Duration) time.Duration {
	fallback = max(fallback, 0)
	if v == nil {
		return fallback
	}
	if *v < 0 {
		c.warn(field, v.String(), fallback.String())
		return fallback
	}
	return *v
}

// normalizeWords trims entries and drops blanks and case-insensitive
// duplicates while keeping list order.
func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		k := strings.ToLower(w)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, w)
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
