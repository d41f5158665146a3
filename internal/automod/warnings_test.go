package automod_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lessucettes/adresu-automod/internal/automod"
	"github.com/lessucettes/adresu-automod/internal/config"
	"github.com/lessucettes/adresu-automod/internal/escalation"
	"github.com/lessucettes/adresu-automod/internal/store"
	"github.com/lessucettes/adresu-automod/internal/testutils"
)

var moderator = store.Actor{ID: "mod-1", Name: "Moderator"}

func TestEngine_WarnEscalatesSynchronously(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.AutomodConfig) {
		c.Thresholds = config.ThresholdsConfig{Mute: 2, Kick: 3}
	}, automod.Options{})

	res, err := h.engine.Warn(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "  ")
	require.NoError(t, err)
	require.Equal(t, "No reason provided", res.Record.Reason)
	require.Equal(t, store.SourceManual, res.Record.Source)
	require.Equal(t, moderator, res.Record.IssuedBy)
	require.Equal(t, 1, res.ActiveWarnings)
	require.Equal(t, &escalation.Preview{Action: escalation.ActionMute, Remaining: 1}, res.Decision.Next)

	res, err = h.engine.Warn(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "spamming in DMs")
	require.NoError(t, err)
	require.Equal(t, escalation.ActionMute, res.Decision.Action)
	require.True(t, res.ActionApplied)

	calls := h.punisher.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "mute", calls[0].Action)
	require.Equal(t, time.Hour, calls[0].Duration)

	audits := h.notifier.Audits()
	require.Len(t, audits, 2)
	require.Equal(t, automod.AuditManualWarning, audits[1].Kind)
	require.Equal(t, moderator, audits[1].Actor)
	require.Empty(t, h.notifier.Notices(), "manual warnings do not post channel notices")
}

func TestEngine_WarnIgnoresDryRun(t *testing.T) {
	h := newHarness(t, nil, automod.Options{DryRun: true})

	res, err := h.engine.Warn(context.Background(), testutils.TestGuildID, testutils.TestUserID, moderator, "rude")
	require.NoError(t, err)
	require.Equal(t, 1, res.ActiveWarnings)
}

func TestEngine_WarnRequiresTarget(t *testing.T) {
	h := newHarness(t, nil, automod.Options{})

	_, err := h.engine.Warn(context.Background(), "", testutils.TestUserID, moderator, "x")
	require.ErrorIs(t, err, automod.ErrInvalidTarget)
}

func TestEngine_ClearWarning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, automod.Options{})

	first, err := h.engine.Warn(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "one")
	require.NoError(t, err)
	_, err = h.engine.Warn(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "two")
	require.NoError(t, err)

	rec, err := h.engine.ClearWarning(ctx, testutils.TestGuildID, testutils.TestUserID, first.Record.ID, moderator, "appeal accepted")
	require.NoError(t, err)
	require.False(t, rec.Active)
	require.Equal(t, "appeal accepted", rec.ClearReason)
	require.True(t, t0.Equal(*rec.ClearedAt))

	_, err = h.engine.ClearWarning(ctx, testutils.TestGuildID, testutils.TestUserID, "no-such-id", moderator, "")
	require.ErrorIs(t, err, store.ErrRecordNotFound)

	active, err := h.engine.Warnings(ctx, testutils.TestGuildID, testutils.TestUserID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "two", active[0].Reason)

	all, err := h.engine.Warnings(ctx, testutils.TestGuildID, testutils.TestUserID, true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	audits := h.notifier.Audits()
	last := audits[len(audits)-1]
	require.Equal(t, automod.AuditClear, last.Kind)
	require.Equal(t, first.Record.ID, last.WarningID)
	require.Equal(t, 1, last.ActiveWarnings)
}

func TestEngine_ClearAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.AutomodConfig) {
		c.Thresholds = config.ThresholdsConfig{}
	}, automod.Options{})

	for i := 0; i < 3; i++ {
		_, err := h.engine.Warn(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "x")
		require.NoError(t, err)
	}

	n, err := h.engine.ClearAll(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "fresh start")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	auditsBefore := len(h.notifier.Audits())
	n, err = h.engine.ClearAll(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "fresh start")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, h.notifier.Audits(), auditsBefore, "nothing cleared, nothing audited")

	audits := h.notifier.Audits()
	last := audits[len(audits)-1]
	require.Equal(t, automod.AuditClearAll, last.Kind)
	require.Equal(t, 3, last.Cleared)
	require.Zero(t, last.ActiveWarnings)
}

func TestEngine_ClearedWarningsStopCountingTowardEscalation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.AutomodConfig) {
		c.Thresholds = config.ThresholdsConfig{Mute: 2}
	}, automod.Options{})

	_, err := h.engine.Warn(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "x")
	require.NoError(t, err)
	_, err = h.engine.ClearAll(ctx, testutils.TestGuildID, testutils.TestUserID, moderator, "")
	require.NoError(t, err)

	out := h.handle(t, testutils.MakeMessage(testutils.TestUserID, "bad1", t0))
	require.Equal(t, 1, out.ActiveWarnings)
	require.Equal(t, escalation.ActionNone, out.Decision.Action)
}
