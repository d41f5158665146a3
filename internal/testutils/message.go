package testutils

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lessucettes/adresu-automod/internal/automod"
)

const (
	TestGuildID   = "100000000000000001"
	TestChannelID = "200000000000000001"
	TestUserID    = "300000000000000001"
)

var messageSeq atomic.Uint64

// MakeMessage builds a message from an established account in the test guild.
func MakeMessage(authorID, content string, ts time.Time) automod.Message {
	return automod.Message{
		ID:              fmt.Sprintf("msg-%d", messageSeq.Add(1)),
		GuildID:         TestGuildID,
		ChannelID:       TestChannelID,
		AuthorID:        authorID,
		AuthorName:      "user-" + authorID,
		AuthorCreatedAt: ts.Add(-365 * 24 * time.Hour),
		Content:         content,
		Timestamp:       ts,
	}
}
