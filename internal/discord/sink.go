// Package discord binds the automod engine to a Discord gateway session.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/lessucettes/adresu-automod/internal/automod"
	"github.com/lessucettes/adresu-automod/internal/config"
)

const (
	limiterCacheSize = 4096
	limiterTTL       = 10 * time.Minute
	maxTimeout       = 28 * 24 * time.Hour
	maxReasonLength  = 512

	defaultRequestTimeout = 10 * time.Second
)

// API is the subset of *discordgo.Session the sink calls.
type API interface {
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
}

var _ API = (*discordgo.Session)(nil)

// Sink implements automod.Punisher and automod.Notifier on top of the Discord
// REST API.
type Sink struct {
	api      API
	cfg      config.DiscordConfig
	limiters *lru.LRU[string, *rate.Limiter]

	mu      sync.Mutex
	pending map[*time.Timer]func()
	closed  bool
}

var (
	_ automod.Punisher = (*Sink)(nil)
	_ automod.Notifier = (*Sink)(nil)
)

func NewSink(api API, cfg config.DiscordConfig) *Sink {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Sink{
		api:      api,
		cfg:      cfg,
		limiters: lru.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterTTL),
		pending:  make(map[*time.Timer]func()),
	}
}

func (s *Sink) getLimiter(channelID string) *rate.Limiter {
	if limiter, ok := s.limiters.Get(channelID); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(s.cfg.NoticeRate), s.cfg.NoticeBurst)
	s.limiters.Add(channelID, limiter)
	return limiter
}

func truncateReason(reason string) string {
	r := []rune(reason)
	if len(r) <= maxReasonLength {
		return reason
	}
	return string(r[:maxReasonLength-1]) + "…"
}

func (s *Sink) Mute(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	until := time.Now().Add(min(d, maxTimeout))
	err := s.api.GuildMemberTimeout(guildID, userID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(truncateReason(reason)))
	if err != nil {
		return fmt.Errorf("timeout member %s: %w", userID, err)
	}
	return nil
}

func (s *Sink) Kick(ctx context.Context, guildID, userID, reason string) error {
	if err := s.api.GuildMemberDeleteWithReason(guildID, userID, truncateReason(reason), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("kick member %s: %w", userID, err)
	}
	return nil
}

func (s *Sink) Ban(ctx context.Context, guildID, userID, reason string) error {
	err := s.api.GuildBanCreateWithReason(guildID, userID, truncateReason(reason), s.cfg.DeleteMessageDays, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ban member %s: %w", userID, err)
	}
	return nil
}

func (s *Sink) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := s.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

// PostTransientNotice sends content and deletes it again after ttl. Notices
// above the per-channel rate are dropped silently.
func (s *Sink) PostTransientNotice(ctx context.Context, channelID, content string, ttl time.Duration) error {
	if !s.getLimiter(channelID).Allow() {
		slog.Debug("Transient notice throttled", "channel_id", channelID)
		return nil
	}

	m, err := s.api.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	if ttl > 0 && m != nil {
		s.scheduleDelete(channelID, m.ID, ttl)
	}
	return nil
}

func (s *Sink) scheduleDelete(channelID, messageID string, ttl time.Duration) {
	del := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer cancel()
		if err := s.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
			slog.Debug("Failed to remove transient notice", "channel_id", channelID, "message_id", messageID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		go del()
		return
	}
	var t *time.Timer
	t = time.AfterFunc(ttl, func() {
		s.mu.Lock()
		delete(s.pending, t)
		s.mu.Unlock()
		del()
	})
	s.pending[t] = del
}

// AuditLog posts entry as an embed to the guild's audit channel. Guilds
// without one only get the structured log line.
func (s *Sink) AuditLog(ctx context.Context, guildID string, entry automod.AuditEntry) error {
	if entry.AuditChannelID == "" {
		slog.Debug("No audit channel configured", "guild_id", guildID, "kind", string(entry.Kind))
		return nil
	}
	if _, err := s.api.ChannelMessageSendEmbed(entry.AuditChannelID, auditEmbed(entry), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send audit embed: %w", err)
	}
	return nil
}

// Close removes notices that are still waiting for their ttl.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	var dels []func()
	for t, del := range s.pending {
		if t.Stop() {
			dels = append(dels, del)
		}
	}
	clear(s.pending)
	s.mu.Unlock()

	for _, del := range dels {
		del()
	}
	return nil
}
