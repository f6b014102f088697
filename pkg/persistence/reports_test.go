package persistence

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestReports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r, err := OpenReports(dir)
	require.NoError(t, err)

	require.NoError(t, r.WriteWindow(WindowRecord{Index: 0, Open: 0, Close: 3, Results: 6, Matched: 6, LatencySecs: 0.5, Cardinality: 3, Size: 3}))
	require.NoError(t, r.WriteTrace(TraceRecord{Windows: 1, Time: 3, Cost: 2.5, NormalizedCost: 1, Size: 3}))
	require.NoError(t, r.Close())

	require.NoError(t, r.WriteSummary(SummaryRecord{RunID: "run", TotalEdges: 4, Matches: 6, WindowsCreated: 2, AvgWindowSize: 3}))
	require.NoError(t, r.WriteMatchesFile(func(w io.Writer) error {
		return WriteMatches(w, []types.Match{{Source: 1, Destination: 2, Timestamp: 0}})
	}))

	windows := readCSV(t, filepath.Join(dir, WindowsFile))
	require.Len(t, windows, 2)
	assert.Equal(t, WindowsHeader, windows[0])
	assert.Equal(t, []string{"0", "0", "3", "6", "6", "0.5", "3", "3"}, windows[1])

	trace := readCSV(t, filepath.Join(dir, TraceFile))
	require.Len(t, trace, 2)
	assert.Equal(t, "2.5", trace[1][2])

	summary := readCSV(t, filepath.Join(dir, SummaryFile))
	require.Len(t, summary, 2)
	assert.Equal(t, SummaryHeader, summary[0])
	assert.Equal(t, "run", summary[1][0])
	assert.Equal(t, "6", summary[1][2])

	matches := readCSV(t, filepath.Join(dir, MatchesFile))
	assert.Equal(t, [][]string{MatchesHeader, {"1", "2", "0"}}, matches)
}

func TestCSVWriter_Rows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	w, err := NewCSVWriter(path, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, w.Write([]string{"1"}))
	require.NoError(t, w.Write([]string{"2"}))
	assert.Equal(t, 2, w.Rows())
	assert.Equal(t, path, w.Path())
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	assert.Len(t, readCSV(t, path), 3)
}

func TestWriteMatches_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, nil))
	assert.Equal(t, "source,destination,timestamp\n", buf.String())
}
