package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarpipe/indexer/internal/record"
)

func TestLoadRowsDefaultsLibrary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "medicine.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"id,title,issn,library\n"+
			"42,Annals of Medicine,1234-5678,lib-9\n"+
			"43,Surgery Today,2345-6789,\n"), 0o644))

	rows, err := LoadRows(path, "lib-default")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "lib-9", rows[0]["library"])
	require.Equal(t, "lib-default", rows[1]["library"])
	require.Equal(t, "Annals of Medicine", rows[0]["title"])
}

func TestLoadRowsWithoutLibraryColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "law.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"id,title\n7,Law Review\n"), 0o644))

	rows, err := LoadRows(path, "lib-default")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "lib-default", rows[0]["library"])
}

func TestLoadRowsEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,title\n"), 0o644))

	rows, err := LoadRows(path, "lib")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestWriteRowsRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	header := []string{"id", "title", "library"}
	rows := []record.CSVRow{
		{"id": "1", "title": "One", "library": "lib-1"},
		{"id": "2", "title": "Two", "library": "lib-2"},
	}
	require.NoError(t, WriteRows(path, header, rows))

	back, err := LoadRows(path, "lib-default")
	require.NoError(t, err)
	require.Equal(t, rows, back)
}

func TestJournalID(t *testing.T) {
	t.Parallel()

	id, ok := JournalID(record.CSVRow{"id": "42"})
	require.True(t, ok)
	require.EqualValues(t, 42, id)

	hashed, ok := JournalID(record.CSVRow{"issn": "1234-5678"})
	require.True(t, ok)
	require.Positive(t, hashed)
	again, _ := JournalID(record.CSVRow{"issn": "1234-5678"})
	require.Equal(t, hashed, again)

	byTitle, ok := JournalID(record.CSVRow{"title": "Untracked Quarterly"})
	require.True(t, ok)
	require.Positive(t, byTitle)
	require.NotEqual(t, hashed, byTitle)

	_, ok = JournalID(record.CSVRow{})
	require.False(t, ok)
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("id\n"), 0o644))
	}

	paths, err := Discover(dir, "")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.csv"),
	}, paths)

	single, err := Discover(dir, "a.csv")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.csv")}, single)

	_, err = Discover(dir, "missing.csv")
	require.Error(t, err)
}
