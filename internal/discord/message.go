package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/lessucettes/adresu-automod/internal/automod"
)

// ToMessage converts a gateway message. st may be nil, in which case the
// author is never treated as an administrator.
func ToMessage(st *discordgo.State, m *discordgo.Message) automod.Message {
	msg := automod.Message{
		ID:               m.ID,
		GuildID:          m.GuildID,
		ChannelID:        m.ChannelID,
		Content:          m.Content,
		MentionedRoleIDs: m.MentionRoles,
		MentionsEveryone: m.MentionEveryone,
	}
	for _, u := range m.Mentions {
		if u != nil {
			msg.MentionedUserIDs = append(msg.MentionedUserIDs, u.ID)
		}
	}
	if m.Member != nil {
		msg.AuthorRoleIDs = m.Member.Roles
	}

	if m.Author == nil {
		return msg
	}
	msg.AuthorID = m.Author.ID
	msg.AuthorName = m.Author.Username
	msg.AuthorIsBot = m.Author.Bot
	if created, err := discordgo.SnowflakeTimestamp(m.Author.ID); err == nil {
		msg.AuthorCreatedAt = created
	}

	if st != nil && m.GuildID != "" {
		msg.AuthorIsAdmin = authorIsAdmin(st, m)
	}
	return msg
}

// authorIsAdmin prefers the member roles sent with the message. The state
// only holds members it has seen in guild payloads, which for large guilds
// excludes most of them.
func authorIsAdmin(st *discordgo.State, m *discordgo.Message) bool {
	var (
		perms int64
		err   error
	)
	if m.Member != nil {
		perms, err = st.MessagePermissions(m)
	} else {
		perms, err = st.UserChannelPermissions(m.Author.ID, m.ChannelID)
	}
	return err == nil && perms&discordgo.PermissionAdministrator != 0
}
