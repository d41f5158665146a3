package automod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lessucettes/adresu-automod/internal/escalation"
	"github.com/lessucettes/adresu-automod/internal/store"
)

var ErrInvalidTarget = errors.New("guild and user ids are required")

const defaultWarnReason = "No reason provided"

// WarnResult reports what a manual warning led to.
type WarnResult struct {
	Record         store.WarningRecord
	ActiveWarnings int
	Decision       escalation.Decision
	ActionApplied  bool
	ActionError    string
}

// Warn records a moderator-issued warning and escalates exactly like an
// automod violation would. Dry-run does not apply to manual warnings.
func (e *Engine) Warn(ctx context.Context, guildID, userID string, issuer store.Actor, reason string) (WarnResult, error) {
	if guildID == "" || userID == "" {
		return WarnResult{}, ErrInvalidTarget
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultWarnReason
	}

	pol, err := e.policies.Resolve(ctx, guildID)
	if err != nil {
		slog.Warn("Failed to resolve guild policy, using global defaults", "guild_id", guildID, "error", err)
	}

	now := e.now()
	rec := store.WarningRecord{
		ID:       e.newID(),
		Reason:   reason,
		IssuedBy: issuer,
		IssuedAt: now,
		Active:   true,
		Source:   store.SourceManual,
	}
	active, err := e.record(ctx, guildID, userID, rec)
	if err != nil {
		return WarnResult{}, fmt.Errorf("record warning: %w", err)
	}
	decision := escalation.Decide(active, pol.Thresholds)

	entry := AuditEntry{
		Kind:           AuditManualWarning,
		GuildID:        guildID,
		UserID:         userID,
		Actor:          issuer,
		Reason:         reason,
		WarningID:      rec.ID,
		ActiveWarnings: active,
		Action:         decision.Action,
		Next:           decision.Next,
		AuditChannelID: pol.AuditChannelID,
		At:             now,
	}

	sideCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	e.escalate(sideCtx, &entry, pol.MuteDuration)
	e.audit(sideCtx, entry)

	slog.Info("Manual warning issued",
		"guild_id", guildID, "user_id", userID, "issued_by", issuer.ID,
		"active_warnings", active, "action", decision.Action.String())

	return WarnResult{
		Record:         rec,
		ActiveWarnings: active,
		Decision:       decision,
		ActionApplied:  entry.ActionApplied,
		ActionError:    entry.ActionError,
	}, nil
}

// Warnings lists a user's warnings in issue order.
func (e *Engine) Warnings(ctx context.Context, guildID, userID string, includeCleared bool) ([]store.WarningRecord, error) {
	all, err := e.ledger.Warnings(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("load warnings: %w", err)
	}
	if includeCleared {
		return all, nil
	}
	active := make([]store.WarningRecord, 0, len(all))
	for _, r := range all {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

// ClearWarning deactivates one warning. It returns store.ErrRecordNotFound
// (wrapped) when the user has no warning with that id.
func (e *Engine) ClearWarning(ctx context.Context, guildID, userID, warningID string, by store.Actor, reason string) (store.WarningRecord, error) {
	info := store.ClearInfo{By: by, Reason: reason, At: e.now()}

	rec, active, err := e.clear(ctx, guildID, userID, func() (store.WarningRecord, error) {
		return e.ledger.ClearWarning(ctx, guildID, userID, warningID, info)
	})
	if err != nil {
		return rec, fmt.Errorf("clear warning %s: %w", warningID, err)
	}

	e.auditClear(ctx, AuditEntry{
		Kind:           AuditClear,
		GuildID:        guildID,
		UserID:         userID,
		Actor:          by,
		Reason:         reason,
		WarningID:      warningID,
		ActiveWarnings: active,
		Cleared:        1,
		At:             info.At,
	})
	return rec, nil
}

// ClearAll deactivates every active warning and returns how many changed.
// Zero means there was nothing to clear and no audit entry is emitted.
func (e *Engine) ClearAll(ctx context.Context, guildID, userID string, by store.Actor, reason string) (int, error) {
	info := store.ClearInfo{By: by, Reason: reason, At: e.now()}

	var n int
	_, active, err := e.clear(ctx, guildID, userID, func() (store.WarningRecord, error) {
		var err error
		n, err = e.ledger.ClearAll(ctx, guildID, userID, info)
		return store.WarningRecord{}, err
	})
	if err != nil {
		return 0, fmt.Errorf("clear warnings: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	e.auditClear(ctx, AuditEntry{
		Kind:           AuditClearAll,
		GuildID:        guildID,
		UserID:         userID,
		Actor:          by,
		Reason:         reason,
		ActiveWarnings: active,
		Cleared:        n,
		At:             info.At,
	})
	return n, nil
}

// clear runs fn under the user's ledger lock and reports the remaining
// active count.
func (e *Engine) clear(ctx context.Context, guildID, userID string, fn func() (store.WarningRecord, error)) (store.WarningRecord, int, error) {
	mu := e.locks.get(guildID, userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := fn()
	if err != nil {
		return rec, 0, err
	}
	active, err := e.ledger.CountActive(ctx, guildID, userID)
	if err != nil {
		slog.Warn("Failed to count warnings after clear", "guild_id", guildID, "user_id", userID, "error", err)
	}
	return rec, active, nil
}

func (e *Engine) auditClear(ctx context.Context, entry AuditEntry) {
	pol, err := e.policies.Resolve(ctx, entry.GuildID)
	if err != nil {
		slog.Warn("Failed to resolve guild policy, using global defaults", "guild_id", entry.GuildID, "error", err)
	}
	entry.AuditChannelID = pol.AuditChannelID

	sideCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	e.audit(sideCtx, entry)

	slog.Info("Warnings cleared",
		"guild_id", entry.GuildID, "user_id", entry.UserID, "cleared_by", entry.Actor.ID,
		"cleared", entry.Cleared, "active_warnings", entry.ActiveWarnings)
}
