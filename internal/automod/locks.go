package automod

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// keyedLocks serialises ledger access per (guild, user) without a global lock.
// Unrelated pairs may share a stripe; that only costs some contention.
type keyedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyedLocks) get(guildID, userID string) *sync.Mutex {
	h := xxhash.Sum64String(guildID + "\x00" + userID)
	return &l.stripes[h%lockStripes]
}
