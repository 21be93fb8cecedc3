// Package httpapi wires the catalog's read-only HTTP surface — song
// lookup, search, browsing, random picks, suggestions — plus the
// websocket upgrade and the prometheus scrape endpoint, using go-chi
// the way cartographus's internal/api.Router does: global middleware
// stack first, route groups after.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/karaoke-party/server/internal/metrics"
	"github.com/karaoke-party/server/internal/playlist"
	"github.com/karaoke-party/server/internal/search"
	"github.com/karaoke-party/server/internal/wsapi"
)

var validate = validator.New()

// Options configures the router.
type Options struct {
	Index              *search.Index
	Playlist           *playlist.Playlist
	AdminPassword      string
	Logger             zerolog.Logger
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// NewRouter builds the chi router serving every HTTP and websocket route.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(opts.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(opts.RateLimitRequests, opts.RateLimitWindow))

	h := &handlers{index: opts.Index, playlist: opts.Playlist, logger: opts.Logger}

	r.Get("/api/song", h.song)
	r.Post("/api/search", h.search)
	r.Get("/api/all_songs", h.allSongs)
	r.Get("/api/random_songs", h.randomSongs)
	r.Get("/api/song_count", h.songCount)
	r.Get("/api/languages", h.languages)
	r.Post("/api/suggest", h.suggest)

	r.Handle("/ws", wsapi.NewHandler(opts.Playlist, opts.Index, opts.AdminPassword, opts.Logger))
	r.Handle("/metrics", metrics.Handler())

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

type handlers struct {
	index    *search.Index
	playlist *playlist.Playlist
	logger   zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// song answers GET /api/song?id=1,2,3 — a comma-separated list of row
// ids ORed together, mirroring original_source/main.rs's
// "rowid:a OR rowid:b ..." query and returning only the first match.
func (h *handlers) song(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		ids = append(ids, id)
	}

	start := time.Now()
	songs, err := h.index.LookupByRowIDs(ids)
	metrics.SearchQueryDuration.WithLabelValues("song").Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Msg("song lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if len(songs) == 0 {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	writeJSON(w, http.StatusOK, songs[0])
}

// search answers POST /api/search, the search string being the raw
// request body rather than a query parameter.
func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	q := strings.TrimSpace(string(body))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	start := time.Now()
	songs, err := h.index.Search(q, limit)
	metrics.SearchQueryDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Msg("search failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (h *handlers) allSongs(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 {
		perPage = 50
	}
	q := r.URL.Query().Get("query")

	start := time.Now()
	songs, err := h.index.Paginated(offset, perPage, q)
	metrics.SearchQueryDuration.WithLabelValues("all_songs").Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Msg("paginated browse failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (h *handlers) randomSongs(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = 1
	}
	q := r.URL.Query().Get("query")

	start := time.Now()
	songs, err := h.index.RandomPicks(count, q)
	metrics.SearchQueryDuration.WithLabelValues("random_songs").Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Msg("random picks failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (h *handlers) songCount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, strconv.Itoa(h.index.Count()))
}

func (h *handlers) languages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.index.Languages()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "languages lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, langs)
}

type suggestRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Artist string `json:"artist" validate:"required,max=200"`
	Title  string `json:"title" validate:"required,max=200"`
}

func (h *handlers) suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.playlist.Suggest(req.Name, req.Artist, req.Title); err != nil {
		h.logger.Error().Err(err).Msg("suggest failed")
		writeError(w, http.StatusInternalServerError, "could not record suggestion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
