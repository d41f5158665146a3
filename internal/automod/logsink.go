package automod

import (
	"context"
	"log/slog"
	"time"
)

// LogSink satisfies Punisher and Notifier by logging every call. Replay mode
// uses it so recorded traffic can be evaluated offline.
type LogSink struct {
	Logger *slog.Logger
}

var (
	_ Punisher = LogSink{}
	_ Notifier = LogSink{}
)

func (s LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s LogSink) Mute(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	s.logger().InfoContext(ctx, "Would mute member", "guild_id", guildID, "user_id", userID, "duration", d.String(), "reason", reason)
	return nil
}

func (s LogSink) Kick(ctx context.Context, guildID, userID, reason string) error {
	s.logger().InfoContext(ctx, "Would kick member", "guild_id", guildID, "user_id", userID, "reason", reason)
	return nil
}

func (s LogSink) Ban(ctx context.Context, guildID, userID, reason string) error {
	s.logger().InfoContext(ctx, "Would ban member", "guild_id", guildID, "user_id", userID, "reason", reason)
	return nil
}

func (s LogSink) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	s.logger().InfoContext(ctx, "Would delete message", "channel_id", channelID, "message_id", messageID)
	return nil
}

func (s LogSink) PostTransientNotice(ctx context.Context, channelID, content string, ttl time.Duration) error {
	s.logger().DebugContext(ctx, "Would post notice", "channel_id", channelID, "content", content, "ttl", ttl.String())
	return nil
}

func (s LogSink) AuditLog(ctx context.Context, guildID string, entry AuditEntry) error {
	s.logger().InfoContext(ctx, "Audit entry",
		"guild_id", guildID, "kind", string(entry.Kind), "user_id", entry.UserID,
		"reason", entry.Reason, "active_warnings", entry.ActiveWarnings, "action", entry.ActionStatus())
	return nil
}
