package detect

// CheckMentionFlood counts distinct user mentions, distinct role mentions and
// one extra for @everyone/@here. It fires only when the total strictly exceeds
// limit; a limit of zero disables the check.
func CheckMentionFlood(userIDs, roleIDs []string, everyone bool, limit int) (MentionFlood, bool) {
	if limit <= 0 {
		return MentionFlood{}, false
	}
	total := countDistinct(userIDs) + countDistinct(roleIDs)
	if everyone {
		total++
	}
	if total > limit {
		return MentionFlood{Count: total, Max: limit}, true
	}
	return MentionFlood{}, false
}

func countDistinct(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		seen[id] = struct{}{}
	}
	return len(seen)
}
