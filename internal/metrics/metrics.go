// Package metrics declares the process's prometheus instrumentation,
// in the promauto style cartographus uses throughout internal/auth and
// internal/plex: package-level vectors registered once at import time,
// pulled by Handler via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PlaylistMutations counts successful playlist mutations by
	// operation (add, play, remove, swap, moveAfter, moveTop).
	PlaylistMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_mutations_total",
			Help: "Total number of successful playlist mutations",
		},
		[]string{"op"},
	)

	// PlaylistListeners tracks the number of currently subscribed
	// websocket connections.
	PlaylistListeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playlist_listeners",
			Help: "Current number of websocket connections subscribed to playlist updates",
		},
	)

	// SearchQueryDuration measures catalog search/browse latency.
	SearchQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_query_duration_seconds",
			Help:    "Duration of search index queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"op"},
	)

	// SongsPlayed counts songs promoted to now-playing.
	SongsPlayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songs_played_total",
			Help: "Total number of songs played",
		},
	)
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
