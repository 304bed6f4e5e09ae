package leaderboard

import "time"

// ScoreEntry is the immutable result of one completed play session.
// Username and AvatarURL are copied from the user when the score is submitted
// and do not follow later profile edits.
type ScoreEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Username  string         `json:"username"`
	AvatarURL string         `json:"avatarUrl,omitempty"`
	Score     int64          `json:"score"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	// Seq orders entries that share a CreatedAt value by insertion.
	Seq int64 `json:"-"`
}

// RankedScore is a ScoreEntry annotated with its position in a result list.
type RankedScore struct {
	Rank int `json:"rank"`
	*ScoreEntry
}

// View is the most recent leaderboard read held for display.
type View struct {
	TopScores   []*RankedScore `json:"topScores"`
	UserScores  []*RankedScore `json:"userScores"`
	RefreshedAt time.Time      `json:"refreshedAt"`
}

// Rank numbers entries 1..n in the order given.
func Rank(entries []*ScoreEntry) []*RankedScore {
	ranked := make([]*RankedScore, 0, len(entries))
	for i, e := range entries {
		ranked = append(ranked, &RankedScore{Rank: i + 1, ScoreEntry: e})
	}
	return ranked
}

// SameOrder reports whether two ranked lists hold the same entries in the same order.
func SameOrder(a, b []*RankedScore) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
