// Command karaoke-server runs the party coordination service: it loads
// the read-only song catalog, builds the full-text search index,
// restores the persisted playlist, and serves the HTTP and websocket
// API described in SPEC_FULL.md.
package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/karaoke-party/server/internal/catalog"
	"github.com/karaoke-party/server/internal/config"
	"github.com/karaoke-party/server/internal/httpapi"
	"github.com/karaoke-party/server/internal/logging"
	"github.com/karaoke-party/server/internal/playlist"
	"github.com/karaoke-party/server/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging isn't configured yet; this is the one place that
		// writes directly to stderr.
		os.Stderr.WriteString("karaoke-server: " + err.Error() + "\n")
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component("main")

	songs, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load catalog")
	}
	log.Info().Int("songs", len(songs)).Msg("catalog loaded")

	idx, err := search.New(songs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build search index")
	}
	defer idx.Close()

	pl, err := playlist.Load(playlist.Options{
		PersistPath:       cfg.PlaylistPath,
		ValidSongs:        catalog.RowIDs(songs),
		SongLogPath:       cfg.SongLogPath,
		BugLogPath:        cfg.BugLogPath,
		SuggestionLogPath: cfg.SuggestionLogPath,
		Logger:            playlistLogAdapter{logging.Component("playlist")},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load playlist")
	}
	defer pl.Close()

	router := httpapi.NewRouter(httpapi.Options{
		Index:              idx,
		Playlist:           pl,
		AdminPassword:      cfg.AdminPassword,
		Logger:             logging.Component("http"),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
	})

	log.Info().Str("addr", cfg.Listen).Msg("starting server")
	if err := http.ListenAndServe(cfg.Listen, router); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// playlistLogAdapter satisfies playlist.Logger over a zerolog.Logger.
type playlistLogAdapter struct {
	logger zerolog.Logger
}

func (a playlistLogAdapter) Error(msg string, err error) {
	a.logger.Error().Err(err).Msg(msg)
}
