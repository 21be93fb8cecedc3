package catalog

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func seedCatalog(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE song (
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			language TEXT,
			year INTEGER,
			duration REAL NOT NULL,
			lyrics TEXT,
			duet BOOLEAN NOT NULL DEFAULT 0,
			cover_path TEXT,
			audio_path TEXT
		)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO song (title, artist, language, year, duration, duet, cover_path, audio_path)
		VALUES
		('Africa', 'Toto', 'en', 1982, 243.0, 0, '/covers/Toto Africa.jpg', '/audio/Toto Africa.mp3'),
		('Bohemian Rhapsody', 'Queen', 'en', 1975, 355.0, 0, NULL, '/audio/Queen Bohemian.mp3')`)
	require.NoError(t, err)
}

func TestLoadOrdersByTitleCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite3")
	seedCatalog(t, path)

	songs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, songs, 2)
	require.Equal(t, "Africa", songs[0].Title)
	require.Equal(t, "Bohemian Rhapsody", songs[1].Title)
}

func TestLoadPercentEncodesPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite3")
	seedCatalog(t, path)

	songs, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/covers/Toto%20Africa.jpg", songs[0].CoverPath)
	require.Empty(t, songs[1].CoverPath)
}

func TestRowIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite3")
	seedCatalog(t, path)

	songs, err := Load(path)
	require.NoError(t, err)

	ids := RowIDs(songs)
	require.Len(t, ids, 2)
	for _, s := range songs {
		_, ok := ids[s.RowID]
		require.True(t, ok)
	}
}
