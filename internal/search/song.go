// Package search implements the in-memory, sort-preserving full-text
// index over the song catalog: fielded queries, paginated browsing in
// catalog order, and weighted random sampling.
package search

// Song is a single catalog entry, immutable after the index is built.
type Song struct {
	RowID     int64   `json:"row_id"`
	Order     uint64  `json:"-"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Language  string  `json:"language,omitempty"`
	Year      int64   `json:"year,omitempty"`
	HasYear   bool    `json:"-"`
	Duration  float64 `json:"duration"`
	Lyrics    string  `json:"lyrics,omitempty"`
	Duet      bool    `json:"duet"`
	CoverPath string  `json:"cover_path,omitempty"`
	AudioPath string  `json:"audio_path,omitempty"`
}

// indexDoc is the shape actually handed to bleve for indexing. year is
// stored as an exact-match string token (never tokenized, never ranged)
// per the schema in SPEC_FULL.md §4.1, mirroring the "year: exact
// string token" field of the original tantivy schema.
type indexDoc struct {
	Order    uint64  `json:"order"`
	RowID    int64   `json:"rowid"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Language string  `json:"language,omitempty"`
	Year     string  `json:"year,omitempty"`
	Duration float64 `json:"duration"`
	Lyrics   string  `json:"lyrics,omitempty"`
	Duet     bool    `json:"duet"`
	Cover    string  `json:"cover,omitempty"`
	Audio    string  `json:"audio,omitempty"`
}
