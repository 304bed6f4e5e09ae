package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ScoresSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scores_submitted_total",
			Help: "Score submissions by outcome",
		},
		[]string{"result"},
	)
	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_subscribers",
			Help: "Open live leaderboard subscriptions",
		},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Signed-in player sessions",
		},
	)
	PushNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "Leaderboard push notifications by status",
		},
		[]string{"status"},
	)
)

// Register adds the domain collectors to the default registry.
func Register() {
	prometheus.MustRegister(ScoresSubmitted)
	prometheus.MustRegister(LiveSubscribers)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(PushNotifications)
}
