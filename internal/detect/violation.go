// Package detect holds the stateless message classifiers used by the automod
// engine. Every detector is a pure function of its inputs.
package detect

import (
	"fmt"
	"time"
)

// Kind enumerates every violation the engine can raise.
type Kind int

const (
	KindAccountAge Kind = iota + 1
	KindBannedWord
	KindInviteLink
	KindExternalLink
	KindMentionFlood
	KindCapsFlood
	KindRateSpam
)

var kindNames = map[Kind]string{
	KindAccountAge:   "account_age",
	KindBannedWord:   "banned_word",
	KindInviteLink:   "invite_link",
	KindExternalLink: "external_link",
	KindMentionFlood: "mention_flood",
	KindCapsFlood:    "caps_flood",
	KindRateSpam:     "rate_spam",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DeletesMessage reports whether the offending message is removed when this
// kind fires. Account age is a property of the author, not the message.
func (k Kind) DeletesMessage() bool {
	return k != KindAccountAge
}

// Violation is a closed set: only the types in this file implement it.
type Violation interface {
	Kind() Kind
	// Reason is the human readable text stored on the warning record.
	Reason() string
	violation()
}

type BannedWord struct {
	Word string
}

type InviteLink struct {
	Match string
}

type ExternalLink struct {
	URL string
}

type MentionFlood struct {
	Count int
	Max   int
}

type CapsFlood struct {
	Percent float64
	Max     int
}

type AccountAge struct {
	Age     time.Duration
	MinDays int
}

type RateSpam struct {
	Threshold int
	Interval  time.Duration
}

func (BannedWord) Kind() Kind   { return KindBannedWord }
func (InviteLink) Kind() Kind   { return KindInviteLink }
func (ExternalLink) Kind() Kind { return KindExternalLink }
func (MentionFlood) Kind() Kind { return KindMentionFlood }
func (CapsFlood) Kind() Kind    { return KindCapsFlood }
func (AccountAge) Kind() Kind   { return KindAccountAge }
func (RateSpam) Kind() Kind     { return KindRateSpam }

func (v BannedWord) Reason() string { return fmt.Sprintf("Automod: banned word (%s)", v.Word) }
func (InviteLink) Reason() string   { return "Automod: posted an invite link" }
func (ExternalLink) Reason() string { return "Automod: posted an external link" }

func (v MentionFlood) Reason() string {
	return fmt.Sprintf("Automod: mass mentions (%d/%d)", v.Count, v.Max)
}

func (v CapsFlood) Reason() string {
	return fmt.Sprintf("Automod: excessive caps (%.0f%%, limit %d%%)", v.Percent, v.Max)
}

func (v AccountAge) Reason() string {
	return fmt.Sprintf("Automod: account younger than %d days (%.1f days old)", v.MinDays, v.Age.Hours()/24)
}

func (v RateSpam) Reason() string {
	return fmt.Sprintf("Automod: spam (%d messages within %s)", v.Threshold, v.Interval)
}

func (BannedWord) violation()   {}
func (InviteLink) violation()   {}
func (ExternalLink) violation() {}
func (MentionFlood) violation() {}
func (CapsFlood) violation()    {}
func (AccountAge) violation()   {}
func (RateSpam) violation()     {}
