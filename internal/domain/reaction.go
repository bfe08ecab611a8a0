package domain

// GroupedReaction is the per-emoji view broadcast to clients. It is derived
// from a message's reaction list and never stored.
type GroupedReaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// ToggleReaction removes the (userID, emoji) pair when present and appends it
// otherwise. The input slice is left untouched. The second result reports
// whether the pair was added.
func ToggleReaction(reactions []Reaction, userID, emoji string) ([]Reaction, bool) {
	out := make([]Reaction, 0, len(reactions)+1)
	removed := false
	for _, r := range reactions {
		if !removed && r.UserID == userID && r.Emoji == emoji {
			removed = true
			continue
		}
		out = append(out, r)
	}
	if removed {
		return out, false
	}
	return append(out, Reaction{UserID: userID, Emoji: emoji}), true
}

// GroupReactions groups by emoji in first-occurrence order. Count is the
// number of entries per emoji; Users lists distinct users in the order they
// first appear.
func GroupReactions(reactions []Reaction) []GroupedReaction {
	groups := make([]GroupedReaction, 0)
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})
	for _, r := range reactions {
		if r.Emoji == "" {
			continue
		}
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, GroupedReaction{Emoji: r.Emoji, Users: []string{}})
			seen[r.Emoji] = make(map[string]struct{})
		}
		groups[i].Count++
		if r.UserID == "" {
			continue
		}
		if _, dup := seen[r.Emoji][r.UserID]; !dup {
			seen[r.Emoji][r.UserID] = struct{}{}
			groups[i].Users = append(groups[i].Users, r.UserID)
		}
	}
	return groups
}
