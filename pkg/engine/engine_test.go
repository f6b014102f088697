package engine

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/streamrpq/pkg/config"
	"github.com/sanonone/streamrpq/pkg/core/types"
	"github.com/sanonone/streamrpq/pkg/persistence"
)

const plusStream = `# a+ over label 1
1 2 1 0
2 3 1 1
9 9 7 1
3 4 1 2
5 6 1 3
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Window.Size = 3
	cfg.Window.Slide = 1
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestEngine_RetentionCountsDenseDeletions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window.Size = 2
	cfg.Window.Slide = 2
	cfg.Retention.Enabled = true
	cfg.Retention.ZScore = 0.5
	cfg.Retention.Lives = 2

	eng, err := New(cfg)
	require.NoError(t, err)

	in := "1 10 1 0\n1 11 1 0\n2 20 1 1\n1 12 1 2\n3 30 1 4\n"
	require.NoError(t, eng.Run(context.Background(), strings.NewReader(in)))

	st := eng.Status()
	assert.Equal(t, int64(5), st.Processed)
	assert.Equal(t, int64(2), st.DenseEdges, "1->10 and 1->11 leave as dense")
	assert.Equal(t, int64(2), st.SavedByRetention)
	assert.Equal(t, 2, st.GraphEdges)
}

func TestEngine_RunPlusPattern(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background(), strings.NewReader(plusStream)))

	sum := eng.Summary()
	assert.Equal(t, eng.RunID.String(), sum.RunID)
	assert.Equal(t, int64(4), sum.TotalEdges)
	assert.Equal(t, int64(7), sum.Matches)
	assert.Equal(t, 4, sum.WindowsCreated)
	assert.Equal(t, 3.0, sum.AvgWindowSize)

	assert.Equal(t, []types.Match{
		{Source: 2, Destination: 3, Timestamp: 1},
		{Source: 2, Destination: 4, Timestamp: 2},
		{Source: 3, Destination: 4, Timestamp: 2},
		{Source: 5, Destination: 6, Timestamp: 3},
	}, eng.Matches())

	st := eng.Status()
	assert.Equal(t, StateFinished, st.State)
	assert.Equal(t, int64(4), st.Processed)
	assert.Equal(t, int64(1), st.Filtered)
	assert.Equal(t, int64(3), st.LastTime)
	assert.Empty(t, st.Error)

	dir := cfg.Output.Dir
	summary := readCSV(t, filepath.Join(dir, persistence.SummaryFile))
	require.Len(t, summary, 2)
	assert.Equal(t, persistence.SummaryHeader, summary[0])
	assert.Equal(t, "4", summary[1][1])

	windows := readCSV(t, filepath.Join(dir, persistence.WindowsFile))
	require.Len(t, windows, 2, "header and the evicted window [0,3)")
	assert.Equal(t, []string{"0", "0", "3"}, windows[1][:3])

	trace := readCSV(t, filepath.Join(dir, persistence.TraceFile))
	assert.Len(t, trace, 5)

	matches := readCSV(t, filepath.Join(dir, persistence.MatchesFile))
	require.Len(t, matches, 5)
	assert.Equal(t, []string{"5", "6", "3"}, matches[4])
}

func TestEngine_RunCanceled(t *testing.T) {
	eng, err := New(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = eng.Run(ctx, strings.NewReader(plusStream))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, eng.Status().State)
	assert.Zero(t, eng.Summary().TotalEdges)
}

func TestEngine_OutOfOrderFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.OutOfOrder = "fail"
	eng, err := New(cfg)
	require.NoError(t, err)

	err = eng.Run(context.Background(), strings.NewReader("1 2 1 5\n2 3 1 4\n"))
	require.Error(t, err)
	assert.Equal(t, int64(1), eng.Summary().TotalEdges)
	assert.Equal(t, StateFailed, eng.Status().State)
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = "turbo"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestEngine_StepGate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Debug.Step = true
	eng, err := New(cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background(), strings.NewReader(plusStream)) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := eng.Gate().Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = eng.Gate().Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, StatePaused, eng.Status().State)

	eng.Gate().Continue()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("run did not resume")
	}
	assert.Equal(t, int64(4), eng.Summary().TotalEdges)

	_, err = eng.Gate().Step(ctx)
	assert.ErrorIs(t, err, ErrNotPaused)
	eng.Gate().Pause()
	_, err = eng.Gate().Step(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}
