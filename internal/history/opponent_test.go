package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRaceObservationKeepsRandomSticky(t *testing.T) {
	rec := &OpponentRecord{Name: "Carl"}

	rec.ApplyRaceObservation("terran")
	assert.Equal(t, "Terran", rec.Race)

	rec.ApplyRaceObservation("Protoss")
	assert.Equal(t, "Terran", rec.Race)

	rec.ApplyRaceObservation("Random")
	assert.Equal(t, "Random", rec.Race)

	rec.ApplyRaceObservation("Zerg")
	assert.Equal(t, "Random", rec.Race)
}

func TestAdvanceLastMatchNeverMovesBackward(t *testing.T) {
	rec := &OpponentRecord{LastMatchTS: 100}
	rec.AdvanceLastMatch(90)
	assert.Equal(t, int64(100), rec.LastMatchTS)
	rec.AdvanceLastMatch(150)
	assert.Equal(t, int64(150), rec.LastMatchTS)
}

func TestEnsureCreatesAndReusesRecords(t *testing.T) {
	hist := OpponentHistory{}
	rec := hist.Ensure("Carl", 30)
	rec.Wins = 3

	again := hist.Ensure("CARL", 30)
	assert.Same(t, rec, again)

	found, ok := hist.Lookup("carl")
	require.True(t, ok)
	assert.Equal(t, 3, found.Wins)
}

func TestKnownRandomKeys(t *testing.T) {
	hist := OpponentHistory{
		"carl": {Name: "Carl", Race: "Random"},
		"dana": {Name: "Dana", Race: "Zerg"},
	}
	assert.Equal(t, map[string]bool{"carl": true}, hist.KnownRandomKeys())
}

func TestOpponentStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opponents.json")
	store := NewOpponentStore(path)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	rating := 2150
	hist := OpponentHistory{
		"carl": {Name: "Carl", Gateway: 30, Race: "Terran", CurrentRating: &rating, Wins: 2, Losses: 1, LastMatchTS: 1700000000},
	}
	require.NoError(t, store.Save(hist))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Contains(t, loaded, "carl")
	assert.Equal(t, "Carl", loaded["carl"].Name)
	require.NotNil(t, loaded["carl"].CurrentRating)
	assert.Equal(t, 2150, *loaded["carl"].CurrentRating)
	assert.Nil(t, loaded["carl"].PreviousRating)
}

func TestOpponentStoreRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opponents.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewOpponentStore(path).Load()
	assert.Error(t, err)
}

func TestOpponentStoreSaveIsStableAcrossRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opponents.json")
	store := NewOpponentStore(path)

	hist := OpponentHistory{
		"b": {Name: "B", Gateway: 10},
		"a": {Name: "A", Gateway: 11, Race: "Zerg"},
	}
	require.NoError(t, store.Save(hist))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	reloaded, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(reloaded))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
