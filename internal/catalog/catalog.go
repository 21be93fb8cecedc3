// Package catalog loads the read-only song catalog snapshot from the
// relational store at startup. The store's schema and the importer
// that populates it are external collaborators (spec.md §1 non-goals);
// this package only ever reads it, once, with SQLITE_OPEN_READONLY.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/karaoke-party/server/internal/search"
)

// Load opens the sqlite database at path read-only and returns every
// song, ordered by title under a case-insensitive collation (catalog
// order, per spec.md §3). Path bytes (cover_path, audio_path) are
// percent-encoded via search.URLEncodePath before being returned,
// matching spec.md §6's "applied once when catalog is loaded" rule.
func Load(path string) ([]search.Song, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT rowid, title, artist, language, year, duration, lyrics, duet, cover_path, audio_path
		FROM song
		ORDER BY title COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query songs: %w", err)
	}
	defer rows.Close()

	var songs []search.Song
	for rows.Next() {
		var (
			rowID               int64
			title, artist       string
			language            sql.NullString
			year                sql.NullInt64
			duration            float64
			lyrics              sql.NullString
			duet                bool
			coverPath, audioPath sql.NullString
		)
		if err := rows.Scan(&rowID, &title, &artist, &language, &year, &duration, &lyrics, &duet, &coverPath, &audioPath); err != nil {
			return nil, fmt.Errorf("catalog: scan song row: %w", err)
		}

		s := search.Song{
			RowID:    rowID,
			Title:    title,
			Artist:   artist,
			Duration: duration,
			Duet:     duet,
		}
		if language.Valid {
			s.Language = language.String
		}
		if year.Valid {
			s.Year = year.Int64
			s.HasYear = true
		}
		if lyrics.Valid {
			s.Lyrics = lyrics.String
		}
		if coverPath.Valid {
			s.CoverPath = search.URLEncodePath([]byte(coverPath.String))
		}
		if audioPath.Valid {
			s.AudioPath = search.URLEncodePath([]byte(audioPath.String))
		}

		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate songs: %w", err)
	}

	return songs, nil
}

// RowIDs extracts the set of catalog ids from a loaded snapshot, for
// reconciling the persisted playlist against it at startup.
func RowIDs(songs []search.Song) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(songs))
	for _, s := range songs {
		ids[s.RowID] = struct{}{}
	}
	return ids
}
