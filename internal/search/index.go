package search

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// defaultFields are consulted, in this order, by a plain (unfielded)
// query term. Boosts mirror the tantivy schema this is ported from:
// title outweighs artist, everything else is unweighted.
var defaultFields = []string{"artist", "title", "language", "year", "lyrics"}

var fieldBoost = map[string]float64{
	"title":  3.0,
	"artist": 2.0,
}

const defaultSearchLimit = 50

// Index is the in-memory, sort-preserving full-text index over the
// catalog snapshot. It is built exactly once at startup; there is no
// incremental update path, so Index is safe for unsynchronized
// concurrent reads once New returns.
type Index struct {
	bleve bleve.Index

	mu      sync.RWMutex // guards nothing but documents a deliberate "read-only" contract
	byOrder []Song
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = "en"

	doc := bleve.NewDocumentMapping()

	order := bleve.NewNumericFieldMapping()
	order.Store = true
	order.IncludeInAll = false
	doc.AddFieldMappingsAt("order", order)

	rowID := bleve.NewNumericFieldMapping()
	rowID.Store = true
	rowID.IncludeInAll = false
	doc.AddFieldMappingsAt("rowid", rowID)

	title := bleve.NewTextFieldMapping()
	title.Store = true
	title.Analyzer = "en"
	doc.AddFieldMappingsAt("title", title)

	artist := bleve.NewTextFieldMapping()
	artist.Store = true
	artist.Analyzer = "en"
	doc.AddFieldMappingsAt("artist", artist)

	language := bleve.NewTextFieldMapping()
	language.Store = true
	language.Analyzer = "en"
	doc.AddFieldMappingsAt("language", language)

	// year is an exact token: no stemming, no partial matching.
	year := bleve.NewTextFieldMapping()
	year.Store = true
	year.Analyzer = "keyword"
	doc.AddFieldMappingsAt("year", year)

	lyrics := bleve.NewTextFieldMapping()
	lyrics.Store = true
	lyrics.Analyzer = "en"
	doc.AddFieldMappingsAt("lyrics", lyrics)

	duration := bleve.NewNumericFieldMapping()
	duration.Store = true
	duration.IncludeInAll = false
	doc.AddFieldMappingsAt("duration", duration)

	duet := bleve.NewBooleanFieldMapping()
	duet.Store = true
	duet.IncludeInAll = false
	doc.AddFieldMappingsAt("duet", duet)

	cover := bleve.NewTextFieldMapping()
	cover.Store = true
	cover.Index = false
	doc.AddFieldMappingsAt("cover", cover)

	audio := bleve.NewTextFieldMapping()
	audio.Store = true
	audio.Index = false
	doc.AddFieldMappingsAt("audio", audio)

	im.AddDocumentMapping("_default", doc)
	return im
}

// New builds the index from the catalog snapshot, assigning each song
// a monotonically increasing `order` in the slice's iteration order.
// Callers are responsible for presenting songs already sorted by title
// under a case-insensitive collation, per spec.md §3 ("Catalog order").
func New(songs []Song) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("search: create in-memory index: %w", err)
	}

	batch := idx.NewBatch()
	byOrder := make([]Song, len(songs))
	for i, s := range songs {
		s.Order = uint64(i)
		byOrder[i] = s

		d := indexDoc{
			Order:    s.Order,
			RowID:    s.RowID,
			Title:    s.Title,
			Artist:   s.Artist,
			Language: s.Language,
			Duration: s.Duration,
			Lyrics:   s.Lyrics,
			Duet:     s.Duet,
			Cover:    s.CoverPath,
			Audio:    s.AudioPath,
		}
		if s.HasYear {
			d.Year = strconv.FormatInt(s.Year, 10)
		}

		if err := batch.Index(strconv.FormatInt(s.RowID, 10), d); err != nil {
			return nil, fmt.Errorf("search: index song %d: %w", s.RowID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("search: commit batch: %w", err)
	}

	return &Index{bleve: idx, byOrder: byOrder}, nil
}

// Close releases the underlying index resources.
func (i *Index) Close() error {
	return i.bleve.Close()
}

// looksFielded reports whether q already uses bleve's own query string
// syntax (field:value, boolean operators) rather than being a bag of
// plain search terms. Fielded/boolean queries are handed straight to
// bleve's query string parser so that "rowid:10 OR rowid:20" works
// exactly as spec.md §4.1 requires for the playlist engine's internal
// duration lookups.
func looksFielded(q string) bool {
	return strings.Contains(q, ":") ||
		strings.Contains(q, " OR ") ||
		strings.Contains(q, " AND ") ||
		strings.Contains(q, "+") ||
		strings.Contains(q, "-")
}

// parseQuery builds a bleve query.Query from a raw search string,
// honoring field boosts and AND-by-default term conjunction for plain
// text, while deferring to bleve's own parser for fielded/boolean
// syntax.
func parseQuery(q string) (query.Query, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return bleve.NewMatchAllQuery(), nil
	}
	if looksFielded(q) {
		return bleve.NewQueryStringQuery(q), nil
	}

	terms := strings.Fields(q)
	conj := bleve.NewConjunctionQuery()
	for _, term := range terms {
		disj := bleve.NewDisjunctionQuery()
		for _, field := range defaultFields {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(field)
			// Fuzzy matching stays off everywhere, lyrics included:
			// precision over recall, per spec.md §4.1.
			if boost, ok := fieldBoost[field]; ok {
				mq.SetBoost(boost)
			}
			disj.AddQuery(mq)
		}
		conj.AddQuery(disj)
	}
	return conj, nil
}

func (i *Index) toSong(hit map[string]interface{}) (Song, error) {
	get := func(f string) (interface{}, bool) {
		v, ok := hit[f]
		return v, ok
	}
	asString := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}
	asFloat := func(v interface{}) float64 {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
		return 0
	}
	asBool := func(v interface{}) bool {
		b, _ := v.(bool)
		return b
	}

	rowIDv, ok := get("rowid")
	if !ok {
		return Song{}, fmt.Errorf("search: document missing rowid field (corrupt index)")
	}
	titlev, ok := get("title")
	if !ok {
		return Song{}, fmt.Errorf("search: document missing title field (corrupt index)")
	}
	artistv, ok := get("artist")
	if !ok {
		return Song{}, fmt.Errorf("search: document missing artist field (corrupt index)")
	}
	durationv, ok := get("duration")
	if !ok {
		return Song{}, fmt.Errorf("search: document missing duration field (corrupt index)")
	}

	s := Song{
		RowID:    int64(asFloat(rowIDv)),
		Title:    asString(titlev),
		Artist:   asString(artistv),
		Duration: asFloat(durationv),
	}
	if v, ok := get("order"); ok {
		s.Order = uint64(asFloat(v))
	}
	if v, ok := get("language"); ok {
		s.Language = asString(v)
	}
	if v, ok := get("year"); ok && asString(v) != "" {
		y, err := strconv.ParseInt(asString(v), 10, 64)
		if err == nil {
			s.Year = y
			s.HasYear = true
		}
	}
	if v, ok := get("lyrics"); ok {
		s.Lyrics = asString(v)
	}
	if v, ok := get("duet"); ok {
		s.Duet = asBool(v)
	}
	if v, ok := get("cover"); ok {
		s.CoverPath = asString(v)
	}
	if v, ok := get("audio"); ok {
		s.AudioPath = asString(v)
	}
	return s, nil
}

func (i *Index) run(q query.Query, size, from int, sortByOrder bool) ([]Song, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.From = from
	req.Fields = []string{"*"}
	if sortByOrder {
		req.SortBy([]string{"order"})
	}

	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: query failed: %w", err)
	}

	songs := make([]Song, 0, len(res.Hits))
	for _, hit := range res.Hits {
		s, err := i.toSong(hit.Fields)
		if err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}
	return songs, nil
}

// Search parses query and runs a top-K relevance search, returning the
// matching songs. limit<=0 defaults to 50 per spec.md §4.1.
func (i *Index) Search(queryStr string, limit int) ([]Song, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q, err := parseQuery(queryStr)
	if err != nil {
		return nil, fmt.Errorf("search: parse query %q: %w", queryStr, err)
	}
	return i.run(q, limit, 0, false)
}

// Paginated returns a contiguous window of the catalog in `order`
// ascending, optionally filtered by query. perPage is clamped to 100.
func (i *Index) Paginated(offset, perPage int, queryStr string) ([]Song, error) {
	if perPage > 100 {
		perPage = 100
	}
	if perPage < 0 {
		perPage = 0
	}
	if offset < 0 {
		offset = 0
	}

	q, err := parseQuery(queryStr)
	if err != nil {
		return nil, fmt.Errorf("search: parse query %q: %w", queryStr, err)
	}
	return i.run(q, perPage, offset, true)
}

// RandomPicks returns up to count songs drawn from the (optionally
// filtered) matching set. bleve has no native random-score collector,
// so the matching set is first gathered in full and then sampled in
// application code; ties/duplicates are possible by design, matching
// spec.md §4.1's "sampling with possible repetition" contract.
func (i *Index) RandomPicks(count int, queryStr string) ([]Song, error) {
	if count <= 0 {
		return nil, nil
	}

	q, err := parseQuery(queryStr)
	if err != nil {
		return nil, fmt.Errorf("search: parse query %q: %w", queryStr, err)
	}

	pool, err := i.run(q, len(i.byOrder), 0, false)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, nil
	}

	picks := make([]Song, count)
	for n := 0; n < count; n++ {
		picks[n] = pool[rand.Intn(len(pool))]
	}
	return picks, nil
}

// LookupByRowIDs fetches songs for the given catalog ids in one query,
// via a "rowid:a OR rowid:b ..." disjunction — used internally by the
// playlist engine to batch-resolve durations (spec.md §4.2.3 step 1).
func (i *Index) LookupByRowIDs(rowIDs []int64) ([]Song, error) {
	if len(rowIDs) == 0 {
		return nil, nil
	}
	disj := bleve.NewDisjunctionQuery()
	for _, id := range rowIDs {
		disj.AddQuery(bleve.NewQueryStringQuery(fmt.Sprintf("rowid:%d", id)))
	}
	return i.run(disj, len(rowIDs), 0, false)
}

// Languages returns the distinct non-empty languages in the catalog,
// lexicographically sorted. Backs GET /api/languages.
func (i *Index) Languages() ([]string, error) {
	seen := make(map[string]struct{})
	for _, s := range i.byOrder {
		if s.Language != "" {
			seen[s.Language] = struct{}{}
		}
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs, nil
}

// Count returns the number of songs in the catalog.
func (i *Index) Count() int {
	return len(i.byOrder)
}
