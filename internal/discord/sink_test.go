package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/lessucettes/adresu-automod/internal/automod"
	"github.com/lessucettes/adresu-automod/internal/config"
	"github.com/lessucettes/adresu-automod/internal/escalation"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []string
	embeds   []*discordgo.MessageEmbed
	deleted  []string
	timeouts map[string]time.Time
	kicked   []string
	banned   map[string]int
	reasons  []string
	err      error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{timeouts: make(map[string]time.Time), banned: make(map[string]int)}
}

func (f *fakeAPI) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeAPI) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return f.err
}

func (f *fakeAPI) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, content)
	return &discordgo.Message{ID: fmt.Sprintf("notice-%d", len(f.sent)), ChannelID: channelID}, nil
}

func (f *fakeAPI) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{ID: "embed", ChannelID: channelID}, nil
}

func (f *fakeAPI) GuildMemberTimeout(guildID, userID string, until *time.Time, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts[userID] = *until
	return f.err
}

func (f *fakeAPI) GuildMemberDeleteWithReason(guildID, userID, reason string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, userID)
	f.reasons = append(f.reasons, reason)
	return f.err
}

func (f *fakeAPI) GuildBanCreateWithReason(guildID, userID, reason string, days int, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[userID] = days
	f.reasons = append(f.reasons, reason)
	return f.err
}

func testDiscordConfig() config.DiscordConfig {
	return config.DiscordConfig{
		NoticeRate:        1,
		NoticeBurst:       3,
		RequestTimeout:    time.Second,
		DeleteMessageDays: 1,
	}
}

func TestSink_Punishments(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	s := NewSink(api, testDiscordConfig())

	before := time.Now()
	require.NoError(t, s.Mute(ctx, "g", "u1", time.Hour, "spam"))
	until := api.timeouts["u1"]
	require.WithinDuration(t, before.Add(time.Hour), until, 5*time.Second)

	require.NoError(t, s.Mute(ctx, "g", "u2", 365*24*time.Hour, "spam"))
	require.WithinDuration(t, before.Add(maxTimeout), api.timeouts["u2"], 5*time.Second, "timeouts are capped")

	require.NoError(t, s.Kick(ctx, "g", "u3", "rude"))
	require.Equal(t, []string{"u3"}, api.kicked)

	require.NoError(t, s.Ban(ctx, "g", "u4", string(make([]rune, 600))))
	require.Equal(t, 1, api.banned["u4"])
	require.Len(t, []rune(api.reasons[len(api.reasons)-1]), maxReasonLength)
}

func TestSink_PunishmentErrorsAreWrapped(t *testing.T) {
	api := newFakeAPI()
	api.err = errors.New("HTTP 403 Forbidden")
	s := NewSink(api, testDiscordConfig())

	err := s.Ban(context.Background(), "g", "u", "x")
	require.ErrorIs(t, err, api.err)
	require.Contains(t, err.Error(), "ban member u")
}

func TestSink_TransientNoticeIsRemoved(t *testing.T) {
	api := newFakeAPI()
	s := NewSink(api, testDiscordConfig())

	require.NoError(t, s.PostTransientNotice(context.Background(), "c1", "hello", 20*time.Millisecond))
	require.Eventually(t, func() bool {
		return len(api.Deleted()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"notice-1"}, api.Deleted())
}

func TestSink_NoticesAreThrottledPerChannel(t *testing.T) {
	api := newFakeAPI()
	cfg := testDiscordConfig()
	cfg.NoticeRate = 0.001
	cfg.NoticeBurst = 2
	s := NewSink(api, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.PostTransientNotice(ctx, "busy", "n", 0))
	}
	require.NoError(t, s.PostTransientNotice(ctx, "quiet", "n", 0))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.sent, 3)
}

func TestSink_CloseRemovesPendingNotices(t *testing.T) {
	api := newFakeAPI()
	s := NewSink(api, testDiscordConfig())

	require.NoError(t, s.PostTransientNotice(context.Background(), "c1", "hello", time.Hour))
	require.Empty(t, api.Deleted())

	require.NoError(t, s.Close())
	require.Equal(t, []string{"notice-1"}, api.Deleted())
}

func TestSink_AuditLog(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	s := NewSink(api, testDiscordConfig())

	entry := automod.AuditEntry{
		Kind:           automod.AuditViolation,
		GuildID:        "g",
		UserID:         "u",
		Actor:          automod.Actor,
		ChannelID:      "c",
		Violation:      "banned_word",
		Reason:         "Automod: banned word (x)",
		ActiveWarnings: 3,
		Action:         escalation.ActionMute,
		ActionError:    "HTTP 403",
		At:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, s.AuditLog(ctx, "g", entry))
	require.Empty(t, api.embeds, "no audit channel, nothing posted")

	entry.AuditChannelID = "audit"
	require.NoError(t, s.AuditLog(ctx, "g", entry))
	require.Len(t, api.embeds, 1)

	embed := api.embeds[0]
	require.Equal(t, "AutoMod Violation", embed.Title)
	require.Equal(t, colorPunish, embed.Color)
	require.Equal(t, "2025-01-01T00:00:00Z", embed.Timestamp)

	var action string
	for _, f := range embed.Fields {
		if f.Name == "Action" {
			action = f.Value
		}
	}
	require.Equal(t, "mute (attempted, not applied)\nHTTP 403", action)
}

func TestAuditEmbed_Clear(t *testing.T) {
	embed := auditEmbed(automod.AuditEntry{
		Kind:      automod.AuditClear,
		UserID:    "u",
		Actor:     automod.Actor,
		WarningID: "w1",
		Cleared:   1,
	})
	require.Equal(t, "Warning Cleared", embed.Title)
	require.Equal(t, colorCleared, embed.Color)
	require.Equal(t, "AutoMod", embed.Fields[1].Value)
}
