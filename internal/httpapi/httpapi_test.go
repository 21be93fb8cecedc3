package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-party/server/internal/playlist"
	"github.com/karaoke-party/server/internal/search"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	idx, err := search.New([]search.Song{
		{RowID: 10, Title: "Africa", Artist: "Toto", Duration: 243},
		{RowID: 20, Title: "Bohemian Rhapsody", Artist: "Queen", Duration: 355},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	dir := t.TempDir()
	pl, err := playlist.Load(playlist.Options{
		PersistPath: filepath.Join(dir, "playlist.json"),
		ValidSongs:  map[int64]struct{}{10: {}, 20: {}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pl.Close() })

	return NewRouter(Options{
		Index:              idx,
		Playlist:           pl,
		AdminPassword:      "hunter2",
		Logger:             zerolog.Nop(),
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
	})
}

// spec.md §6: GET /api/song_count returns a bare plain-text integer,
// not a JSON object.
func TestSongCount(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/song_count", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	require.Equal(t, "2", rec.Body.String())
}

// spec.md §6: GET /api/song?id=<rowid> looks a song up by query param.
func TestSongLookup(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/song?id=10", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Africa")
}

// spec.md §6, mirroring original_source/main.rs's "rowid:a OR rowid:b":
// a comma-separated id list ORs the lookup and returns the first match.
func TestSongLookupCommaListReturnsFirstMatch(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/song?id=999,10,20", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Africa")
	require.NotContains(t, rec.Body.String(), "Bohemian Rhapsody")
}

func TestSongLookupNotFound(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/song?id=999", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSongLookupMissingID(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/song", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// spec.md §6: POST /api/search carries the search string as the raw
// request body, not a query parameter.
func TestSearch(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader("queen"))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Bohemian Rhapsody")
}

// spec.md §6: /api/all_songs and /api/random_songs filter on the
// "query" parameter, not "q".
func TestAllSongsUsesQueryParam(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/all_songs?query=toto", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Africa")
	require.NotContains(t, rec.Body.String(), "Bohemian Rhapsody")
}

func TestRandomSongsUsesQueryParam(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/random_songs?count=1&query=toto", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Africa")
}

func TestSuggestValidation(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/suggest", strings.NewReader(`{"name":""}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestAccepted(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	body := `{"name":"Alice","artist":"Toto","title":"Africa"}`
	req := httptest.NewRequest(http.MethodPost, "/api/suggest", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}
