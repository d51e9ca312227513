package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bw-companion/internal/history"
	"bw-companion/internal/logger"
)

func TestWriteIfChangedSkipsIdenticalContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rating.txt")
	w := NewWriter(logger.New())

	require.NoError(t, w.WriteIfChanged(path, "2100"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2100", string(raw))

	// Delete behind the writer's back: an identical write must not recreate.
	require.NoError(t, os.Remove(path))
	require.NoError(t, w.WriteIfChanged(path, "2100"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, w.WriteIfChanged(path, "2150"))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2150", string(raw))
}

func TestRatingText(t *testing.T) {
	assert.Equal(t, "N/A", RatingText(nil))
	rating := 1873
	assert.Equal(t, "1873", RatingText(&rating))
}

func TestOpponentTextWaitingStates(t *testing.T) {
	assert.Equal(t, "Waiting for opponent...", OpponentText(OpponentView{Waiting: true, Name: "Carl"}))
	assert.Equal(t, "Waiting for opponent...", OpponentText(OpponentView{}))
}

func TestOpponentTextFormatsFields(t *testing.T) {
	rating := 2230
	view := OpponentView{Name: "Carl", Race: "terran", Rating: &rating}
	assert.Equal(t, "Carl • Terran • 2230", OpponentText(view))

	view.Record = &history.OpponentRecord{Wins: 3, Losses: 1}
	assert.Equal(t, "Carl • Terran • 2230 • W-L 3-1", OpponentText(view))

	view.Record = &history.OpponentRecord{}
	view.Rating = nil
	view.Race = ""
	assert.Equal(t, "Carl • Unknown • N/A", OpponentText(view))
}
