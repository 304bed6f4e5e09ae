package user

import "time"

// User is one authenticated player together with their aggregate stats.
type User struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"displayName"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	TotalScore   int64      `json:"totalScore"`
	HighestScore int64      `json:"highestScore"`
	GamesPlayed  int64      `json:"gamesPlayed"`
	LastScore    *int64     `json:"lastScore,omitempty"`
	LastPlayed   *time.Time `json:"lastPlayed,omitempty"`
	LastLogin    time.Time  `json:"lastLogin"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Identity is what an identity provider knows about a signed-in principal.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Normalize fills the descriptive fields that providers commonly leave empty.
func (i *Identity) Normalize() {
	if i.DisplayName == "" {
		i.DisplayName = i.Username
	}
	if i.DisplayName == "" {
		i.DisplayName = "GitHub User"
	}
	if i.Username == "" {
		i.Username = i.DisplayName
	}
}
