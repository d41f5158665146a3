package automod

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lessucettes/adresu-automod/internal/config"
	"github.com/lessucettes/adresu-automod/internal/detect"
	"github.com/lessucettes/adresu-automod/internal/escalation"
	"github.com/lessucettes/adresu-automod/internal/policy"
	"github.com/lessucettes/adresu-automod/internal/ratetrack"
	"github.com/lessucettes/adresu-automod/internal/store"
)

const (
	defaultNoticeTTL         = 5 * time.Second
	defaultSideEffectTimeout = 10 * time.Second
	defaultMuteDuration      = time.Hour
)

// Actor is the identity stamped on warnings the engine issues by itself.
var Actor = store.Actor{ID: "automod", Name: "AutoMod"}

// PolicySource resolves the effective policy for a guild. On error it still
// returns a usable policy built from global defaults.
type PolicySource interface {
	Resolve(ctx context.Context, guildID string) (*policy.EffectivePolicy, error)
}

type Options struct {
	// DryRun logs violations without touching the ledger or the platform.
	DryRun            bool
	NoticeTTL         time.Duration
	SideEffectTimeout time.Duration
	ViolationLevels   map[string]config.LogLevel
	Now               func() time.Time
	NewID             func() string
}

type Engine struct {
	policies PolicySource
	tracker  *ratetrack.Tracker
	ledger   store.WarningStore
	punisher Punisher
	notifier Notifier

	dryRun          bool
	noticeTTL       time.Duration
	timeout         time.Duration
	violationLevels atomic.Pointer[map[string]config.LogLevel]
	now             func() time.Time
	newID           func() string

	locks keyedLocks
	wg    sync.WaitGroup
}

func NewEngine(
	policies PolicySource,
	tracker *ratetrack.Tracker,
	ledger store.WarningStore,
	punisher Punisher,
	notifier Notifier,
	opts Options,
) *Engine {
	e := &Engine{
		policies:  policies,
		tracker:   tracker,
		ledger:    ledger,
		punisher:  punisher,
		notifier:  notifier,
		dryRun:    opts.DryRun,
		noticeTTL: opts.NoticeTTL,
		timeout:   opts.SideEffectTimeout,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if e.noticeTTL <= 0 {
		e.noticeTTL = defaultNoticeTTL
	}
	if e.timeout <= 0 {
		e.timeout = defaultSideEffectTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	e.SetViolationLevels(opts.ViolationLevels)
	return e
}

// SetViolationLevels replaces the per-kind log levels; used on config reload.
func (e *Engine) SetViolationLevels(levels map[string]config.LogLevel) {
	e.violationLevels.Store(&levels)
}

func (e *Engine) levelFor(k detect.Kind) slog.Level {
	if levels := e.violationLevels.Load(); levels != nil {
		if level, ok := (*levels)[k.String()]; ok {
			return level.ToSlogLevel()
		}
	}
	return slog.LevelWarn
}

func (e *Engine) clock(msg Message) time.Time {
	if !msg.Timestamp.IsZero() {
		return msg.Timestamp
	}
	return e.now()
}

// Handle evaluates one message. Platform side effects run in the background
// and never fail the call; an error is returned only when the ledger could not
// be updated or the evaluation panicked.
func (e *Engine) Handle(ctx context.Context, msg Message) (out Outcome, err error) {
	e.wg.Add(1)
	defer e.wg.Done()

	start := time.Now()
	defer func() { evalDuration.Observe(time.Since(start).Seconds()) }()

	out = Outcome{MessageID: msg.ID, GuildID: msg.GuildID, AuthorID: msg.AuthorID, DryRun: e.dryRun}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in automod engine",
				"panic", r, "guild_id", msg.GuildID, "user_id", msg.AuthorID, "message_id", msg.ID, "stack", string(debug.Stack()),
			)
			messagesTotal.WithLabelValues("error").Inc()
			err = fmt.Errorf("internal error while evaluating message %s", msg.ID)
		}
	}()

	pol, skip := e.admit(ctx, msg)
	if skip != "" {
		out.Skipped = skip
		messagesTotal.WithLabelValues("skipped").Inc()
		slog.Debug("Message skipped by automod", "message_id", msg.ID, "guild_id", msg.GuildID, "reason", string(skip))
		return out, nil
	}

	now := e.clock(msg)
	age, tooNew := detect.CheckAccountAge(msg.AuthorCreatedAt, now, pol.MinAccountAgeDays)
	primary := e.firstViolation(msg, pol, now)

	var v detect.Violation
	switch {
	case primary != nil:
		v = primary
		out.Reason = primary.Reason()
		if tooNew {
			out.Reason += "; " + strings.TrimPrefix(age.Reason(), "Automod: ")
		}
	case tooNew:
		v = age
		out.Reason = age.Reason()
	default:
		messagesTotal.WithLabelValues("clean").Inc()
		return out, nil
	}

	out.Violation = v.Kind().String()
	out.AccountTooNew = tooNew
	out.DeleteMessage = v.Kind().DeletesMessage()
	violationsTotal.WithLabelValues(out.Violation).Inc()
	if tooNew && primary != nil {
		violationsTotal.WithLabelValues(detect.KindAccountAge.String()).Inc()
	}

	logAttrs := []slog.Attr{
		slog.String("guild_id", msg.GuildID),
		slog.String("channel_id", msg.ChannelID),
		slog.String("user_id", msg.AuthorID),
		slog.String("message_id", msg.ID),
		slog.String("violation", out.Violation),
		slog.String("reason", out.Reason),
	}
	slog.LogAttrs(ctx, e.levelFor(v.Kind()), "Automod violation detected", logAttrs...)

	if e.dryRun {
		slog.LogAttrs(ctx, slog.LevelInfo, "Dry-run: no warning recorded and no action taken", logAttrs...)
		messagesTotal.WithLabelValues("violation").Inc()
		return out, nil
	}

	rec := store.WarningRecord{
		ID:            e.newID(),
		Reason:        out.Reason,
		IssuedBy:      Actor,
		IssuedAt:      now,
		Active:        true,
		Source:        store.SourceAutomod,
		ViolationType: out.Violation,
	}
	deleteMsg := out.DeleteMessage

	active, err := e.record(ctx, msg.GuildID, msg.AuthorID, rec)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "Failed to record automod warning", append(logAttrs, slog.Any("error", err))...)
		messagesTotal.WithLabelValues("error").Inc()
		if deleteMsg {
			e.async(ctx, func(ctx context.Context) { e.deleteMessage(ctx, msg) })
		}
		return out, fmt.Errorf("record warning: %w", err)
	}

	decision := escalation.Decide(active, pol.Thresholds)
	out.WarningID = rec.ID
	out.ActiveWarnings = active
	out.Decision = &decision
	messagesTotal.WithLabelValues("violation").Inc()

	entry := AuditEntry{
		Kind:           AuditViolation,
		GuildID:        msg.GuildID,
		UserID:         msg.AuthorID,
		UserName:       msg.AuthorName,
		Actor:          Actor,
		ChannelID:      msg.ChannelID,
		MessageID:      msg.ID,
		Violation:      out.Violation,
		Reason:         out.Reason,
		WarningID:      rec.ID,
		ActiveWarnings: active,
		Action:         decision.Action,
		Next:           decision.Next,
		AuditChannelID: pol.AuditChannelID,
		At:             now,
	}
	muteFor := pol.MuteDuration

	e.async(ctx, func(ctx context.Context) {
		if deleteMsg {
			e.deleteMessage(ctx, msg)
		}
		e.escalate(ctx, &entry, muteFor)
		e.audit(ctx, entry)
		e.notice(ctx, msg.ChannelID, noticeText(entry, muteFor))
	})
	return out, nil
}

func (e *Engine) admit(ctx context.Context, msg Message) (*policy.EffectivePolicy, SkipReason) {
	switch {
	case msg.GuildID == "":
		return nil, SkipNoGuild
	case msg.AuthorID == "":
		return nil, SkipNoAuthor
	case msg.AuthorIsBot:
		return nil, SkipBot
	}

	pol, err := e.policies.Resolve(ctx, msg.GuildID)
	if err != nil {
		slog.Warn("Failed to resolve guild policy, using global defaults", "guild_id", msg.GuildID, "error", err)
	}

	switch {
	case !pol.Enabled:
		return pol, SkipDisabled
	case msg.AuthorIsAdmin:
		return pol, SkipAdmin
	case pol.ChannelExempt(msg.ChannelID):
		return pol, SkipExemptChannel
	case pol.AnyRoleExempt(msg.AuthorRoleIDs):
		return pol, SkipExemptRole
	}
	return pol, ""
}

// firstViolation runs the content detectors in priority order and returns the
// first hit. The rate tracker only sees messages that passed every other check.
func (e *Engine) firstViolation(msg Message, pol *policy.EffectivePolicy, now time.Time) detect.Violation {
	if v, ok := detect.CheckBannedWords(msg.Content, pol.BannedWords); ok {
		return v
	}
	if pol.FilterInvites {
		if v, ok := detect.CheckInvite(msg.Content); ok {
			return v
		}
	}
	if pol.FilterLinks {
		if v, ok := detect.CheckExternalLink(msg.Content); ok {
			return v
		}
	}
	if v, ok := detect.CheckMentionFlood(msg.MentionedUserIDs, msg.MentionedRoleIDs, msg.MentionsEveryone, pol.MaxMentions); ok {
		return v
	}
	if v, ok := detect.CheckCaps(msg.Content, pol.MaxCapsPercent, pol.MinCapsLength); ok {
		return v
	}
	if pol.SpamThreshold > 0 && pol.SpamInterval > 0 && e.tracker != nil {
		if e.tracker.RecordAndCheck(msg.GuildID, msg.AuthorID, now, pol.SpamThreshold, pol.SpamInterval) {
			return detect.RateSpam{Threshold: pol.SpamThreshold, Interval: pol.SpamInterval}
		}
	}
	return nil
}

// record appends rec and returns the active count that includes it.
func (e *Engine) record(ctx context.Context, guildID, userID string, rec store.WarningRecord) (int, error) {
	mu := e.locks.get(guildID, userID)
	mu.Lock()
	defer mu.Unlock()

	if err := e.ledger.AppendWarning(ctx, guildID, userID, rec); err != nil {
		return 0, err
	}
	warningsTotal.WithLabelValues(string(rec.Source)).Inc()

	n, err := e.ledger.CountActive(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("count active warnings: %w", err)
	}
	return n, nil
}

// async runs fn detached from the caller's cancellation but bounded by the
// side-effect timeout.
func (e *Engine) async(ctx context.Context, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic recovered in automod side effect", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// escalate applies entry.Action and records the result on the entry.
func (e *Engine) escalate(ctx context.Context, entry *AuditEntry, muteFor time.Duration) {
	if entry.Action == escalation.ActionNone {
		return
	}
	reason := fmt.Sprintf("%s (%d active warnings)", entry.Reason, entry.ActiveWarnings)

	var err error
	switch entry.Action {
	case escalation.ActionMute:
		if muteFor <= 0 {
			muteFor = defaultMuteDuration
		}
		err = e.punisher.Mute(ctx, entry.GuildID, entry.UserID, muteFor, reason)
	case escalation.ActionKick:
		err = e.punisher.Kick(ctx, entry.GuildID, entry.UserID, reason)
	case escalation.ActionBan:
		err = e.punisher.Ban(ctx, entry.GuildID, entry.UserID, reason)
	}
	punishmentsTotal.WithLabelValues(entry.Action.String(), resultLabel(err)).Inc()

	if err != nil {
		slog.Error("Failed to apply punishment",
			"guild_id", entry.GuildID, "user_id", entry.UserID, "action", entry.Action.String(), "error", err)
		entry.ActionError = err.Error()
		return
	}
	entry.ActionApplied = true
	slog.Info("Punishment applied",
		"guild_id", entry.GuildID, "user_id", entry.UserID, "action", entry.Action.String(),
		"active_warnings", entry.ActiveWarnings)
}

func (e *Engine) deleteMessage(ctx context.Context, msg Message) {
	if err := e.notifier.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		sideEffectFailures.WithLabelValues("delete_message").Inc()
		slog.Warn("Failed to delete offending message",
			"guild_id", msg.GuildID, "channel_id", msg.ChannelID, "message_id", msg.ID, "error", err)
	}
}

func (e *Engine) audit(ctx context.Context, entry AuditEntry) {
	if err := e.notifier.AuditLog(ctx, entry.GuildID, entry); err != nil {
		sideEffectFailures.WithLabelValues("audit_log").Inc()
		slog.Warn("Failed to emit audit entry", "guild_id", entry.GuildID, "kind", string(entry.Kind), "error", err)
	}
}

func (e *Engine) notice(ctx context.Context, channelID, content string) {
	if channelID == "" {
		return
	}
	if err := e.notifier.PostTransientNotice(ctx, channelID, content, e.noticeTTL); err != nil {
		sideEffectFailures.WithLabelValues("notice").Inc()
		slog.Warn("Failed to post transient notice", "channel_id", channelID, "error", err)
	}
}

func noticeText(entry AuditEntry, muteFor time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<@%s> you have been warned: %s. Active warnings: %d.",
		entry.UserID, strings.TrimPrefix(entry.Reason, "Automod: "), entry.ActiveWarnings)

	if entry.ActionApplied {
		switch entry.Action {
		case escalation.ActionMute:
			if muteFor <= 0 {
				muteFor = defaultMuteDuration
			}
			fmt.Fprintf(&b, " You have been muted for %s.", muteFor)
		case escalation.ActionKick:
			b.WriteString(" You have been kicked.")
		case escalation.ActionBan:
			b.WriteString(" You have been banned.")
		}
	}
	if entry.Next != nil {
		fmt.Fprintf(&b, " %d more until %s.", entry.Next.Remaining, entry.Next.Action)
	}
	return b.String()
}

// Close waits for in-flight evaluations and their side effects.
func (e *Engine) Close() error {
	e.wg.Wait()
	return nil
}
