package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleSongs() []Song {
	return []Song{
		{RowID: 10, Title: "Africa", Artist: "Toto", Duration: 243},
		{RowID: 20, Title: "Bohemian Rhapsody", Artist: "Queen", Duration: 355},
		{RowID: 30, Title: "Creep", Artist: "Radiohead", Duration: 238},
	}
}

// S1 from spec.md §8.
func TestPaginatedIsContiguousCatalogOrder(t *testing.T) {
	idx, err := New(sampleSongs())
	require.NoError(t, err)
	defer idx.Close()

	first, err := idx.Paginated(0, 2, "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "Africa", first[0].Title)
	require.Equal(t, "Bohemian Rhapsody", first[1].Title)

	rest, err := idx.Paginated(2, 2, "")
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "Creep", rest[0].Title)
}

func TestSearchMatchesArtist(t *testing.T) {
	idx, err := New(sampleSongs())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search("queen", 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(20), results[0].RowID)
}

// P5
func TestSearchRowIDFielded(t *testing.T) {
	idx, err := New(sampleSongs())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search("rowid:10", 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(10), results[0].RowID)
}

func TestSearchRowIDDisjunction(t *testing.T) {
	idx, err := New(sampleSongs())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search("rowid:10 OR rowid:30", 50)
	require.NoError(t, err)

	ids := map[int64]bool{}
	for _, s := range results {
		ids[s.RowID] = true
	}
	require.True(t, ids[10])
	require.True(t, ids[30])
	require.Len(t, results, 2)
}

func TestLookupByRowIDs(t *testing.T) {
	idx, err := New(sampleSongs())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.LookupByRowIDs([]int64{10, 30})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestPaginatedClampsPerPage(t *testing.T) {
	idx, err := New(sampleSongs())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Paginated(0, 1000, "")
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 100)
}

// P7
func TestURLEncodePathIsInjectiveASCII(t *testing.T) {
	inputs := [][]byte{
		[]byte("/music/Covers/Mëtàl Hëàds.jpg"),
		[]byte("/music/Covers/Metal Heads.jpg"),
		[]byte("/music/日本語/歌.png"),
	}

	seen := make(map[string][]byte)
	for _, in := range inputs {
		encoded := URLEncodePath(in)
		for _, c := range encoded {
			require.True(t, c < 128, "non-ASCII byte in encoded output")
			ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
				c == '-' || c == '.' || c == '_' || c == '~' || c == '/' || c == '%'
			require.True(t, ok, "disallowed character %q in encoded output", c)
		}
		if prev, ok := seen[encoded]; ok {
			require.Equal(t, prev, in, "collision between distinct inputs")
		}
		seen[encoded] = in
	}
}

func TestRandomPicksSamplesWithReplacement(t *testing.T) {
	idx, err := New(sampleSongs())
	require.NoError(t, err)
	defer idx.Close()

	picks, err := idx.RandomPicks(10, "")
	require.NoError(t, err)
	require.Len(t, picks, 10)
}
