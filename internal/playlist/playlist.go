// Package playlist implements the shared, ordered queue of upcoming
// performances: the party's single piece of mutable, multi-writer
// state. Every mutation runs under one write lock for its full
// duration — recompute, persist, broadcast — so subscribers always see
// a total order of snapshots and the on-disk file never lags behind
// what was last sent over the wire.
//
// The playlist holds no reference to a search.Index. Every operation
// that needs catalog data (a song's duration, its title/artist for a
// log row) takes an Index as a call argument instead of a stored
// field, so the two packages never form an ownership cycle; callers
// such as the per-connection command loop hold both and pass the index
// in on each call.
package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karaoke-party/server/internal/search"
)

// Index is the subset of *search.Index the playlist engine needs.
// Satisfied by *search.Index; narrowed to an interface so tests can
// supply a fake catalog without building a real bleve index.
type Index interface {
	LookupByRowIDs(rowIDs []int64) ([]search.Song, error)
}

// intermissionCeiling bounds how large a gap between a song's
// predicted end and when Play actually fires can be and still count as
// an intermission; gaps at or above it are ignored (spec.md §4.2.2).
const intermissionCeiling = 5 * time.Minute

// innerPlaylist is the exact shape persisted to disk and broadcast to
// subscribers — the two must stay byte-identical (P3), so both paths
// marshal this same struct.
type innerPlaylist struct {
	NowPlaying        *Entry  `json:"nowPlaying"`
	List              []*Entry `json:"list"`
	IntermissionTotal float64 `json:"intermissionTotal"` // seconds
	IntermissionCount int     `json:"intermissionCount"`
}

// Options configures Load.
type Options struct {
	PersistPath       string
	ValidSongs        map[int64]struct{}
	SongLogPath       string
	BugLogPath        string
	SuggestionLogPath string
	Logger            Logger
}

// Playlist is the live, shared queue. Zero value is not usable; build
// one with Load.
type Playlist struct {
	mu sync.RWMutex

	validSongs        map[int64]struct{}
	persistPath       string
	nowPlaying        *Entry
	list              []*Entry
	intermissionTotal time.Duration
	intermissionCount int

	listeners map[uuid.UUID]chan<- []byte

	songLog       *appendLog
	bugLog        *appendLog
	suggestionLog *appendLog
	logger        Logger
}

// Load reads the persisted snapshot at opts.PersistPath, if any,
// reconciles it against opts.ValidSongs (dropping entries whose song
// no longer exists in the catalog, per spec.md §4.2.4), and opens the
// append-only logs. A missing persist file starts an empty playlist.
func Load(opts Options) (*Playlist, error) {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	p := &Playlist{
		validSongs: opts.ValidSongs,
		persistPath: opts.PersistPath,
		listeners:  make(map[uuid.UUID]chan<- []byte),
		logger:     logger,
	}
	if p.validSongs == nil {
		p.validSongs = map[int64]struct{}{}
	}

	data, err := os.ReadFile(opts.PersistPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh install: empty playlist.
	case err != nil:
		return nil, fmt.Errorf("playlist: read persisted snapshot: %w", err)
	default:
		var inner innerPlaylist
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("playlist: parse persisted snapshot: %w", err)
		}
		p.nowPlaying = inner.NowPlaying
		p.list = inner.List
		p.intermissionTotal = time.Duration(inner.IntermissionTotal * float64(time.Second))
		p.intermissionCount = inner.IntermissionCount
		p.reconcile()
	}

	if p.songLog, err = openAppendLog(opts.SongLogPath); err != nil {
		return nil, err
	}
	if p.bugLog, err = openAppendLog(opts.BugLogPath); err != nil {
		return nil, err
	}
	if p.suggestionLog, err = openAppendLog(opts.SuggestionLogPath); err != nil {
		return nil, err
	}

	return p, nil
}

// reconcile drops entries (and clears now_playing) referring to songs
// absent from the catalog snapshot taken at this startup.
func (p *Playlist) reconcile() {
	filtered := p.list[:0:0]
	for _, e := range p.list {
		if _, ok := p.validSongs[e.Song]; ok {
			filtered = append(filtered, e)
		}
	}
	p.list = filtered

	if p.nowPlaying != nil {
		if _, ok := p.validSongs[p.nowPlaying.Song]; !ok {
			p.nowPlaying = nil
		}
	}
}

// Close releases the append-only log file handles.
func (p *Playlist) Close() error {
	var errs []error
	if err := p.songLog.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.bugLog.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.suggestionLog.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Playlist) toInner() innerPlaylist {
	return innerPlaylist{
		NowPlaying:        p.nowPlaying,
		List:              p.list,
		IntermissionTotal: p.intermissionTotal.Seconds(),
		IntermissionCount: p.intermissionCount,
	}
}

// averageIntermission returns the running mean intermission, or zero
// if none have been observed yet.
func (p *Playlist) averageIntermission() time.Duration {
	if p.intermissionCount == 0 {
		return 0
	}
	return p.intermissionTotal / time.Duration(p.intermissionCount)
}

// didChange recomputes every queued entry's predicted end, persists
// the new snapshot, and fans it out to subscribers. Must be called
// with p.mu already held for writing (spec.md §4.2.3).
//
// Persistence happens before broadcast and a broadcast failure is
// logged rather than returned: a slow or dead subscriber must never
// roll back, or block, a mutation that every other client already
// needs to see (spec.md §9, resolved open question on fan-out
// failure).
func (p *Playlist) didChange(idx Index) error {
	rowIDs := make([]int64, 0, len(p.list))
	for _, e := range p.list {
		rowIDs = append(rowIDs, e.Song)
	}
	songs, err := idx.LookupByRowIDs(rowIDs)
	if err != nil {
		return fmt.Errorf("playlist: resolve durations: %w", err)
	}
	durationOf := make(map[int64]float64, len(songs))
	for _, s := range songs {
		durationOf[s.RowID] = s.Duration
	}

	avg := p.averageIntermission()
	var cursor time.Time
	for i, e := range p.list {
		d := time.Duration(durationOf[e.Song] * float64(time.Second))
		switch {
		case i == 0 && p.nowPlaying == nil:
			cursor = time.Now().UTC().Add(d)
		case i == 0:
			cursor = p.nowPlaying.PredictedEnd.Add(avg).Add(d)
		default:
			cursor = cursor.Add(avg).Add(d)
		}
		e.PredictedEnd = cursor
	}

	data, err := json.Marshal(p.toInner())
	if err != nil {
		return fmt.Errorf("playlist: marshal snapshot: %w", err)
	}

	if err := os.WriteFile(p.persistPath, data, 0o644); err != nil {
		return fmt.Errorf("playlist: persist snapshot: %w", err)
	}

	for id, ch := range p.listeners {
		select {
		case ch <- data:
		default:
			p.logger.Error("playlist: dropped snapshot, subscriber channel full", fmt.Errorf("listener %s", id))
		}
	}
	return nil
}

// Subscribe registers sink to receive every future snapshot and
// immediately delivers the current one. The caller owns sink's buffer
// size and read side; Unsubscribe must be called when the connection
// closes.
func (p *Playlist) Subscribe(sink chan<- []byte) (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.Marshal(p.toInner())
	if err != nil {
		return uuid.Nil, fmt.Errorf("playlist: marshal snapshot: %w", err)
	}
	select {
	case sink <- data:
	default:
		return uuid.Nil, fmt.Errorf("playlist: subscriber channel full on initial snapshot")
	}

	id := uuid.New()
	p.listeners[id] = sink
	return id, nil
}

// Unsubscribe removes a listener registered by Subscribe.
func (p *Playlist) Unsubscribe(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
}

// Add appends a new entry for song, returning its new id. A song
// absent from the catalog is rejected with a nil id and nil error —
// not a server error, per spec.md §4.2.1.
func (p *Playlist) Add(idx Index, song int64, singer, password string) (*uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.validSongs[song]; !ok {
		return nil, nil
	}

	id := uuid.New()
	p.list = append(p.list, &Entry{ID: id, Song: song, Singer: singer, password: password})
	if err := p.didChange(idx); err != nil {
		return &id, err
	}
	return &id, nil
}

func (p *Playlist) indexOf(id uuid.UUID) int {
	for i, e := range p.list {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (p *Playlist) removeAt(i int) *Entry {
	e := p.list[i]
	p.list = append(p.list[:i], p.list[i+1:]...)
	return e
}

// Play promotes the entry with id to now-playing, displacing whatever
// was playing before. Returns false if id isn't queued. Gaps shorter
// than intermissionCeiling between the old entry's predicted end and
// now feed the running intermission average (spec.md §4.2.2).
func (p *Playlist) Play(idx Index, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(id)
	if i == -1 {
		return false, nil
	}
	promoted := p.removeAt(i)
	previous := p.nowPlaying
	p.nowPlaying = promoted

	now := time.Now().UTC()
	if previous != nil {
		gap := now.Sub(previous.PredictedEnd)
		if gap >= 0 && gap < intermissionCeiling {
			p.intermissionCount++
			p.intermissionTotal += gap
		}
	}

	if err := p.logSongPlayed(idx, promoted.Song, now); err != nil {
		p.logger.Error("playlist: song log append failed", err)
	}

	if err := p.didChange(idx); err != nil {
		return true, err
	}
	return true, nil
}

// Remove deletes the queued entry with id unconditionally (admin
// path). Returns false if id isn't queued.
func (p *Playlist) Remove(idx Index, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(id)
	if i == -1 {
		return false, nil
	}
	p.removeAt(i)
	if err := p.didChange(idx); err != nil {
		return true, err
	}
	return true, nil
}

// RemoveIfPasswordCorrect deletes the queued entry with id only if
// password matches the one it was added with (self-service removal by
// non-admin singers). Returns false if id isn't queued or the
// password doesn't match.
func (p *Playlist) RemoveIfPasswordCorrect(idx Index, id uuid.UUID, password string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(id)
	if i == -1 || p.list[i].password != password {
		return false, nil
	}
	p.removeAt(i)
	if err := p.didChange(idx); err != nil {
		return true, err
	}
	return true, nil
}

// Swap exchanges the queue positions of two entries. Returns false if
// either id is missing or they're the same id.
func (p *Playlist) Swap(idx Index, id1, id2 uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id1 == id2 {
		return false, nil
	}
	i, j := p.indexOf(id1), p.indexOf(id2)
	if i == -1 || j == -1 {
		return false, nil
	}
	p.list[i], p.list[j] = p.list[j], p.list[i]
	if err := p.didChange(idx); err != nil {
		return true, err
	}
	return true, nil
}

func insertAt(list []*Entry, idx int, e *Entry) []*Entry {
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = e
	return list
}

// MoveAfter relocates the entry with id to immediately follow the
// entry with id after. Returns false if either id is missing or
// they're the same id.
func (p *Playlist) MoveAfter(idx Index, id, after uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == after {
		return false, nil
	}
	i, j := p.indexOf(id), p.indexOf(after)
	if i == -1 || j == -1 {
		return false, nil
	}

	entry := p.removeAt(i)
	insertIdx := j
	if i > j {
		insertIdx = j + 1
	}
	p.list = insertAt(p.list, insertIdx, entry)

	if err := p.didChange(idx); err != nil {
		return true, err
	}
	return true, nil
}

// MoveTop relocates the entry with id to the front of the queue.
// Returns false if id isn't queued.
func (p *Playlist) MoveTop(idx Index, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(id)
	if i == -1 {
		return false, nil
	}
	entry := p.removeAt(i)
	p.list = insertAt(p.list, 0, entry)

	if err := p.didChange(idx); err != nil {
		return true, err
	}
	return true, nil
}

func (p *Playlist) songMeta(idx Index, rowID int64) (title, artist string, err error) {
	songs, err := idx.LookupByRowIDs([]int64{rowID})
	if err != nil {
		return "", "", fmt.Errorf("playlist: resolve song %d: %w", rowID, err)
	}
	if len(songs) == 0 {
		return "", "", fmt.Errorf("playlist: song %d not found in catalog", rowID)
	}
	return songs[0].Title, songs[0].Artist, nil
}

func (p *Playlist) logSongPlayed(idx Index, rowID int64, at time.Time) error {
	title, artist, err := p.songMeta(idx, rowID)
	if err != nil {
		return err
	}
	return p.songLog.append(at.Format(time.RFC3339), artist, title)
}

// ReportBug appends a free-text bug report against song to the bug
// log, resolving its title/artist through idx.
func (p *Playlist) ReportBug(idx Index, song int64, text string) error {
	title, artist, err := p.songMeta(idx, song)
	if err != nil {
		return err
	}
	return p.bugLog.append(time.Now().UTC().Format(time.RFC3339), artist, title, text)
}

// Suggest appends a catalog suggestion (a song not yet in the
// catalog) to the suggestion log.
func (p *Playlist) Suggest(name, artist, title string) error {
	return p.suggestionLog.append(time.Now().UTC().Format(time.RFC3339), name, artist, title)
}

// View is a read-only, lock-free copy of the current queue state.
type View struct {
	NowPlaying *Entry
	List       []*Entry
}

// Snapshot returns a point-in-time copy of the queue, safe to read
// without holding any lock.
func (p *Playlist) Snapshot() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	list := make([]*Entry, len(p.list))
	for i, e := range p.list {
		list[i] = e.clone()
	}
	return View{NowPlaying: p.nowPlaying.clone(), List: list}
}
