package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CodesDiscovered counts first sightings per game and source
	CodesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenox_codes_discovered_total",
			Help: "Redemption codes discovered for the first time",
		},
		[]string{"game", "source"},
	)

	// CodesPublished counts codes announced to guilds
	CodesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenox_codes_published_total",
			Help: "Redemption codes published to subscribed guilds",
		},
		[]string{"game"},
	)

	// FanoutResults counts per-guild fanout outcomes
	FanoutResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zenox_fanout_results_total",
			Help: "Per-guild fanout attempts by outcome",
		},
		[]string{"game", "outcome"},
	)

	// TaskDuration tracks scheduled task runtimes
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zenox_task_duration_seconds",
			Help:    "Duration of scheduled task runs in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"task"},
	)

	// GuildCount is the number of guilds the bot is in
	GuildCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zenox_guild_count",
		Help: "Number of guilds the bot is a member of",
	})

	// MemberCount is the summed member count across guilds
	MemberCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zenox_member_count",
		Help: "Total members across all guilds",
	})
)

// Serve exposes /metrics on addr; blocks, intended for a goroutine
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
