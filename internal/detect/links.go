package detect

import "regexp"

var (
	// discord.gg/<code>, discord.com/invite/<code>, discordapp.com/invite/<code>.
	// A bare domain without a following path segment is not an invite.
	inviteRegex = regexp.MustCompile(`(?i)(?:^|[^a-z0-9.])(?:www\.)?(discord\.gg|discord\.com/invite|discordapp\.com/invite)/[a-z0-9-]+`)
	linkRegex   = regexp.MustCompile(`(?i)https?://\S+`)
)

// CheckInvite reports an invite link in content.
func CheckInvite(content string) (InviteLink, bool) {
	m := inviteRegex.FindStringSubmatchIndex(content)
	if m == nil {
		return InviteLink{}, false
	}
	// Drop the leading boundary character that the match may have consumed.
	return InviteLink{Match: content[m[2]:m[1]]}, true
}

// CheckExternalLink reports any http:// or https:// URI in content. Schemeless
// mentions such as "example.com" are not links.
func CheckExternalLink(content string) (ExternalLink, bool) {
	url := linkRegex.FindString(content)
	if url == "" {
		return ExternalLink{}, false
	}
	return ExternalLink{URL: url}, true
}
