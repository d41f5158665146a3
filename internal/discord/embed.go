package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lessucettes/adresu-automod/internal/automod"
	"github.com/lessucettes/adresu-automod/internal/escalation"
)

const (
	colorWarning = 0xFEE75C
	colorPunish  = 0xED4245
	colorCleared = 0x57F287
)

var auditTitles = map[automod.AuditKind]string{
	automod.AuditViolation:     "AutoMod Violation",
	automod.AuditManualWarning: "Warning Issued",
	automod.AuditClear:         "Warning Cleared",
	automod.AuditClearAll:      "Warnings Cleared",
}

func auditEmbed(e automod.AuditEntry) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     auditTitles[e.Kind],
		Color:     colorWarning,
		Timestamp: e.At.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s> (`%s`)", e.UserID, e.UserID), Inline: true},
			{Name: "By", Value: actorValue(e), Inline: true},
			{Name: "Active warnings", Value: fmt.Sprintf("%d", e.ActiveWarnings), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "adresu automod"},
	}
	if e.Reason != "" {
		embed.Description = e.Reason
	}

	switch e.Kind {
	case automod.AuditClear, automod.AuditClearAll:
		embed.Color = colorCleared
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Cleared", Value: fmt.Sprintf("%d", e.Cleared), Inline: true,
		})
		if e.WarningID != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Warning", Value: "`" + e.WarningID + "`"})
		}
		return embed
	}

	if e.Violation != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Rule", Value: e.Violation, Inline: true})
	}
	if e.ChannelID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Channel", Value: fmt.Sprintf("<#%s>", e.ChannelID), Inline: true})
	}
	if e.Action != escalation.ActionNone {
		embed.Color = colorPunish
		value := e.ActionStatus()
		if e.ActionError != "" {
			value += "\n" + e.ActionError
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Action", Value: value, Inline: true})
	}
	if e.Next != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Next", Value: fmt.Sprintf("%s in %d", e.Next.Action, e.Next.Remaining), Inline: true,
		})
	}
	return embed
}

func actorValue(e automod.AuditEntry) string {
	if e.Actor.ID == automod.Actor.ID {
		return automod.Actor.Name
	}
	return fmt.Sprintf("<@%s>", e.Actor.ID)
}
