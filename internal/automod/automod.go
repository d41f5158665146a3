// Package automod runs incoming messages through the detectors, records
// violations in the warning ledger and escalates repeat offenders.
package automod

import (
	"context"
	"time"

	"github.com/lessucettes/adresu-automod/internal/escalation"
	"github.com/lessucettes/adresu-automod/internal/store"
)

// Message is the platform-neutral view of one incoming chat message.
type Message struct {
	ID               string    `json:"id"`
	GuildID          string    `json:"guild_id"`
	ChannelID        string    `json:"channel_id"`
	AuthorID         string    `json:"author_id"`
	AuthorName       string    `json:"author_name,omitempty"`
	AuthorIsBot      bool      `json:"author_is_bot,omitempty"`
	AuthorIsAdmin    bool      `json:"author_is_admin,omitempty"`
	AuthorRoleIDs    []string  `json:"author_role_ids,omitempty"`
	AuthorCreatedAt  time.Time `json:"author_created_at,omitempty"`
	Content          string    `json:"content"`
	MentionedUserIDs []string  `json:"mentioned_user_ids,omitempty"`
	MentionedRoleIDs []string  `json:"mentioned_role_ids,omitempty"`
	MentionsEveryone bool      `json:"mentions_everyone,omitempty"`
	// Timestamp overrides the engine clock when set. Replayed messages use it.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Punisher applies escalation actions on the platform.
type Punisher interface {
	Mute(ctx context.Context, guildID, userID string, d time.Duration, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
}

// Notifier delivers best-effort side effects. Errors are logged by the caller
// and never retried.
type Notifier interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	PostTransientNotice(ctx context.Context, channelID, content string, ttl time.Duration) error
	AuditLog(ctx context.Context, guildID string, entry AuditEntry) error
}

type AuditKind string

const (
	AuditViolation     AuditKind = "automod_violation"
	AuditManualWarning AuditKind = "manual_warning"
	AuditClear         AuditKind = "warning_cleared"
	AuditClearAll      AuditKind = "warnings_cleared"
)

type AuditEntry struct {
	Kind           AuditKind           `json:"kind"`
	GuildID        string              `json:"guild_id"`
	UserID         string              `json:"user_id"`
	UserName       string              `json:"user_name,omitempty"`
	Actor          store.Actor         `json:"actor"`
	ChannelID      string              `json:"channel_id,omitempty"`
	MessageID      string              `json:"message_id,omitempty"`
	Violation      string              `json:"violation,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	WarningID      string              `json:"warning_id,omitempty"`
	ActiveWarnings int                 `json:"active_warnings"`
	Action         escalation.Action   `json:"action"`
	ActionApplied  bool                `json:"action_applied"`
	ActionError    string              `json:"action_error,omitempty"`
	Next           *escalation.Preview `json:"next,omitempty"`
	Cleared        int                 `json:"cleared,omitempty"`
	AuditChannelID string              `json:"audit_channel_id,omitempty"`
	At             time.Time           `json:"at"`
}

// ActionStatus renders the punishment outcome for humans.
func (e AuditEntry) ActionStatus() string {
	switch {
	case e.Action == escalation.ActionNone:
		return "none"
	case e.ActionApplied:
		return e.Action.String()
	default:
		return e.Action.String() + " (attempted, not applied)"
	}
}

type SkipReason string

const (
	SkipNoGuild       SkipReason = "no_guild"
	SkipNoAuthor      SkipReason = "no_author"
	SkipBot           SkipReason = "bot_author"
	SkipDisabled      SkipReason = "disabled"
	SkipAdmin         SkipReason = "admin"
	SkipExemptChannel SkipReason = "exempt_channel"
	SkipExemptRole    SkipReason = "exempt_role"
)

// Outcome summarises how one message was handled.
type Outcome struct {
	MessageID      string               `json:"message_id"`
	GuildID        string               `json:"guild_id"`
	AuthorID       string               `json:"author_id"`
	Skipped        SkipReason           `json:"skipped,omitempty"`
	Violation      string               `json:"violation,omitempty"`
	AccountTooNew  bool                 `json:"account_too_new,omitempty"`
	Reason         string               `json:"reason,omitempty"`
	DeleteMessage  bool                 `json:"delete_message,omitempty"`
	WarningID      string               `json:"warning_id,omitempty"`
	ActiveWarnings int                  `json:"active_warnings,omitempty"`
	Decision       *escalation.Decision `json:"decision,omitempty"`
	DryRun         bool                 `json:"dry_run,omitempty"`

	// Error is set by callers that report a failed evaluation alongside the
	// partial outcome.
	Error string `json:"error,omitempty"`
}

func (o Outcome) Violated() bool { return o.Violation != "" }
