package logging

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkRotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "node", 0)
	require.NoError(t, err)
	defer sink.Close()

	day1 := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return day1 }
	_, err = sink.Write([]byte("line one\n"))
	require.NoError(t, err)

	day2 := day1.Add(2 * time.Hour)
	sink.now = func() time.Time { return day2 }
	_, err = sink.Write([]byte("line two\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileSinkPrunesBeyondMaxFiles(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "node", 2)
	require.NoError(t, err)
	defer sink.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		day := base.AddDate(0, 0, i)
		sink.now = func() time.Time { return day }
		_, err = sink.Write([]byte("line\n"))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "node-2026-01-03.log", entries[0].Name())
	assert.Equal(t, "node-2026-01-04.log", entries[1].Name())
}
