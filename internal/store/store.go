package store

import (
	"context"
	"errors"
	"time"

	"github.com/lessucettes/adresu-automod/internal/config"
)

// ErrRecordNotFound is returned when a clear targets a warning id the author does not have.
var ErrRecordNotFound = errors.New("warning record not found")

type Source string

const (
	SourceManual  Source = "manual"
	SourceAutomod Source = "automod"
)

type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WarningRecord is never deleted. Only Active and the Cleared* fields change
// after creation.
type WarningRecord struct {
	ID            string     `json:"id"`
	Reason        string     `json:"reason"`
	IssuedBy      Actor      `json:"issued_by"`
	IssuedAt      time.Time  `json:"issued_at"`
	Active        bool       `json:"active"`
	Source        Source     `json:"source"`
	ViolationType string     `json:"violation_type,omitempty"`
	ClearedBy     *Actor     `json:"cleared_by,omitempty"`
	ClearedAt     *time.Time `json:"cleared_at,omitempty"`
	ClearReason   string     `json:"clear_reason,omitempty"`
}

type ClearInfo struct {
	By     Actor
	Reason string
	At     time.Time
}

// WarningStore is the violation ledger, keyed by (guild, user).
type WarningStore interface {
	AppendWarning(ctx context.Context, guildID, userID string, rec WarningRecord) error
	CountActive(ctx context.Context, guildID, userID string) (int, error)
	Warnings(ctx context.Context, guildID, userID string) ([]WarningRecord, error)
	ClearWarning(ctx context.Context, guildID, userID, recordID string, info ClearInfo) (WarningRecord, error)
	ClearAll(ctx context.Context, guildID, userID string, info ClearInfo) (int, error)
}

// OverrideStore persists per-guild policy overrides.
type OverrideStore interface {
	GuildOverrides(ctx context.Context, guildID string) (*config.GuildOverrides, error)
	PutGuildOverrides(ctx context.Context, guildID string, o config.GuildOverrides) error
}

// Store is the generic interface for all storage types.
type Store interface {
	WarningStore
	OverrideStore
	Close() error
}

// Ledger is one author's warning history. Backends load it, apply one of
// these methods and write it back inside a single transaction.
type Ledger []WarningRecord

func (l Ledger) Active() int {
	n := 0
	for _, r := range l {
		if r.Active {
			n++
		}
	}
	return n
}

// Clear deactivates the record with the given id. Clearing an already
// inactive record succeeds and overwrites the previous clear metadata.
func (l Ledger) Clear(recordID string, info ClearInfo) (WarningRecord, error) {
	for i := range l {
		if l[i].ID != recordID {
			continue
		}
		stamp(&l[i], info)
		return l[i], nil
	}
	return WarningRecord{}, ErrRecordNotFound
}

// ClearAll deactivates every active record and returns how many changed.
func (l Ledger) ClearAll(info ClearInfo) int {
	n := 0
	for i := range l {
		if !l[i].Active {
			continue
		}
		stamp(&l[i], info)
		n++
	}
	return n
}

func stamp(r *WarningRecord, info ClearInfo) {
	by := info.By
	at := info.At
	if at.IsZero() {
		at = time.Now()
	}
	r.Active = false
	r.ClearedBy = &by
	r.ClearedAt = &at
	r.ClearReason = info.Reason
}

func warningKey(guildID, userID string) string {
	return warnPrefix + guildID + ":" + userID
}

const (
	warnPrefix  = "warn:"
	guildPrefix = "guild:"
)
