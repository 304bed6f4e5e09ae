package machine

// Machine is one selectable coin pusher cabinet.
type Machine struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Theme       string `json:"theme"`
	Difficulty  string `json:"difficulty"`
}

var catalog = []Machine{
	{ID: 1, Name: "Octocat Pusher", Description: "The classic GitHub mascot themed coin pusher", Image: "/assets/coin-pusher.jpg", Theme: "github-dark", Difficulty: "Easy"},
	{ID: 2, Name: "Contribution Graph", Description: "Push coins to fill your contribution graph", Image: "/assets/coin-pusher.jpg", Theme: "github-light", Difficulty: "Medium"},
	{ID: 3, Name: "Pull Request", Description: "Merge your coins to win big rewards", Image: "/assets/coin-pusher.jpg", Theme: "github-purple", Difficulty: "Hard"},
	{ID: 4, Name: "Issue Tracker", Description: "Solve issues by pushing coins into the right slots", Image: "/assets/coin-pusher.jpg", Theme: "github-yellow", Difficulty: "Medium"},
	{ID: 5, Name: "Fork & Clone", Description: "Fork the repository of coins for massive payouts", Image: "/assets/coin-pusher.jpg", Theme: "github-accent", Difficulty: "Expert"},
}

// All returns a copy of the catalog.
func All() []Machine {
	out := make([]Machine, len(catalog))
	copy(out, catalog)
	return out
}

func Find(id int) (Machine, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Machine{}, false
}
