package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/lessucettes/adresu-automod/internal/config"
)

const maxTxnRetries = 64

// BadgerStore keeps every ledger as one JSON value so append-then-count within
// one process always observes the append.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger adapts slog.Logger to be used as a logger for BadgerDB.
type badgerLogger struct {
	*slog.Logger
}

func (l *badgerLogger) Warningf(f string, v ...any) { l.Warn(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Errorf(f string, v ...any)   { l.Error(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Infof(f string, v ...any)    {}
func (l *badgerLogger) Debugf(f string, v ...any)   {}

func NewBadgerStore(cfg *config.DBConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.ValueThreshold = 1024
	opts.Logger = &badgerLogger{slog.Default()}
	return openBadger(opts)
}

// NewInMemoryBadgerStore runs badger without touching disk.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = &badgerLogger{slog.Default()}
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readLedger(txn *badger.Txn, key []byte) (Ledger, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l Ledger
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &l)
	})
	if err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", key, err)
	}
	return l, nil
}

func writeLedger(txn *badger.Txn, key []byte, l Ledger) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// update retries on optimistic-transaction conflicts with concurrent writers.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		slog.Debug("Badger transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func (s *BadgerStore) AppendWarning(ctx context.Context, guildID, userID string, rec WarningRecord) error {
	key := []byte(warningKey(guildID, userID))
	return s.update(ctx, func(txn *badger.Txn) error {
		l, err := readLedger(txn, key)
		if err != nil {
			return err
		}
		return writeLedger(txn, key, append(l, rec))
	})
}

func (s *BadgerStore) Warnings(ctx context.Context, guildID, userID string) ([]WarningRecord, error) {
	var l Ledger
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		l, err = readLedger(txn, []byte(warningKey(guildID, userID)))
		return err
	})
	return l, err
}

func (s *BadgerStore) CountActive(ctx context.Context, guildID, userID string) (int, error) {
	l, err := s.Warnings(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	return Ledger(l).Active(), nil
}

func (s *BadgerStore) ClearWarning(ctx context.Context, guildID, userID, recordID string, info ClearInfo) (WarningRecord, error) {
	key := []byte(warningKey(guildID, userID))
	var cleared WarningRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		l, err := readLedger(txn, key)
		if err != nil {
			return err
		}
		cleared, err = l.Clear(recordID, info)
		if err != nil {
			return err
		}
		return writeLedger(txn, key, l)
	})
	return cleared, err
}

func (s *BadgerStore) ClearAll(ctx context.Context, guildID, userID string, info ClearInfo) (int, error) {
	key := []byte(warningKey(guildID, userID))
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		l, err := readLedger(txn, key)
		if err != nil {
			return err
		}
		if n = l.ClearAll(info); n == 0 {
			return nil
		}
		return writeLedger(txn, key, l)
	})
	return n, err
}

func (s *BadgerStore) GuildOverrides(ctx context.Context, guildID string) (*config.GuildOverrides, error) {
	var o *config.GuildOverrides
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(guildPrefix + guildID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			o = &config.GuildOverrides{}
			return json.Unmarshal(val, o)
		})
	})
	return o, err
}

func (s *BadgerStore) PutGuildOverrides(ctx context.Context, guildID string, o config.GuildOverrides) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(guildPrefix+guildID), raw)
	})
}
