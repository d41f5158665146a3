package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/lessucettes/adresu-automod/internal/automod"
)

// Punishment is one call observed by MockPunisher.
type Punishment struct {
	Action   string
	GuildID  string
	UserID   string
	Duration time.Duration
	Reason   string
}

// MockPunisher records punishments and signals every call on Signal so tests
// can wait for asynchronous side effects without sleeping.
type MockPunisher struct {
	mu          sync.Mutex
	calls       []Punishment
	errToReturn error
	Signal      chan Punishment
}

var _ automod.Punisher = (*MockPunisher)(nil)

func NewMockPunisher(bufferSize int) *MockPunisher {
	return &MockPunisher{Signal: make(chan Punishment, bufferSize)}
}

func (p *MockPunisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errToReturn = err
}

func (p *MockPunisher) Calls() []Punishment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Punishment(nil), p.calls...)
}

func (p *MockPunisher) record(call Punishment) error {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	err := p.errToReturn
	p.mu.Unlock()

	p.Signal <- call
	return err
}

func (p *MockPunisher) Mute(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	return p.record(Punishment{Action: "mute", GuildID: guildID, UserID: userID, Duration: d, Reason: reason})
}

func (p *MockPunisher) Kick(ctx context.Context, guildID, userID, reason string) error {
	return p.record(Punishment{Action: "kick", GuildID: guildID, UserID: userID, Reason: reason})
}

func (p *MockPunisher) Ban(ctx context.Context, guildID, userID, reason string) error {
	return p.record(Punishment{Action: "ban", GuildID: guildID, UserID: userID, Reason: reason})
}

// Notice is one transient notice observed by MockNotifier.
type Notice struct {
	ChannelID string
	Content   string
	TTL       time.Duration
}

// MockNotifier records notifier calls. AuditSignal receives every audit entry
// and NoticeSignal every notice; audit is emitted before the notice.
type MockNotifier struct {
	mu          sync.Mutex
	deleted     []string
	notices     []Notice
	audits      []automod.AuditEntry
	errToReturn error

	AuditSignal  chan automod.AuditEntry
	NoticeSignal chan Notice
}

var _ automod.Notifier = (*MockNotifier)(nil)

func NewMockNotifier(bufferSize int) *MockNotifier {
	return &MockNotifier{
		AuditSignal:  make(chan automod.AuditEntry, bufferSize),
		NoticeSignal: make(chan Notice, bufferSize),
	}
}

// SetError makes every notifier call fail. Calls are still recorded.
func (n *MockNotifier) SetError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errToReturn = err
}

func (n *MockNotifier) Deleted() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.deleted...)
}

func (n *MockNotifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

func (n *MockNotifier) Audits() []automod.AuditEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]automod.AuditEntry(nil), n.audits...)
}

func (n *MockNotifier) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
	return n.errToReturn
}

func (n *MockNotifier) PostTransientNotice(ctx context.Context, channelID, content string, ttl time.Duration) error {
	notice := Notice{ChannelID: channelID, Content: content, TTL: ttl}
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	err := n.errToReturn
	n.mu.Unlock()

	n.NoticeSignal <- notice
	return err
}

func (n *MockNotifier) AuditLog(ctx context.Context, guildID string, entry automod.AuditEntry) error {
	n.mu.Lock()
	n.audits = append(n.audits, entry)
	err := n.errToReturn
	n.mu.Unlock()

	n.AuditSignal <- entry
	return err
}
