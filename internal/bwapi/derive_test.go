package bwapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statsInfo(season int, stats ...MatchmakedStat) *ToonInfo {
	return &ToonInfo{MatchmakedCurrentSeason: season, MatchmakedStats: stats}
}

func TestComputeRatingForGUIDRequiresMinimumGames(t *testing.T) {
	info := statsInfo(9,
		MatchmakedStat{ToonGUID: 7, SeasonID: 9, Wins: 2, Losses: 2, Rating: 1800},
	)
	_, ok := ComputeRatingForGUID(info, 7)
	assert.False(t, ok, "4 games must not produce a rating")

	info.MatchmakedStats = append(info.MatchmakedStats,
		MatchmakedStat{ToonGUID: 7, SeasonID: 9, Wins: 1, Losses: 0, Rating: 2100})
	rating, ok := ComputeRatingForGUID(info, 7)
	require.True(t, ok)
	assert.Equal(t, 2100, rating, "rating is the max across season rows")
}

func TestComputeRatingForGUIDIgnoresOtherSeasonsAndGuids(t *testing.T) {
	info := statsInfo(9,
		MatchmakedStat{ToonGUID: 7, SeasonID: 8, Wins: 50, Losses: 50, Rating: 2500},
		MatchmakedStat{ToonGUID: 8, SeasonID: 9, Wins: 50, Losses: 50, Rating: 2400},
	)
	_, ok := ComputeRatingForGUID(info, 7)
	assert.False(t, ok)
}

func TestComputeRatingForNameResolvesThroughProfilesThenStats(t *testing.T) {
	info := statsInfo(9,
		MatchmakedStat{Toon: "Alice", ToonGUID: 7, SeasonID: 9, Wins: 4, Losses: 2, Rating: 1900},
	)

	rating, ok := ComputeRatingForName(info, "ALICE")
	require.True(t, ok)
	assert.Equal(t, 1900, rating)

	// A profiles entry wins over the stats fallback.
	info.Profiles = []ProfileEntry{{Toon: "alice", ToonGUID: 9}}
	_, ok = ComputeRatingForName(info, "Alice")
	assert.False(t, ok, "guid 9 has no season games")
}

func TestSummarizeToonsAggregatesAndSorts(t *testing.T) {
	guids := map[string]map[string]uint32{
		"30": {"Alice": 1},
		"10": {"Smurf": 2},
	}
	stats := []MatchmakedStat{
		{Toon: "Alice", ToonGUID: 1, SeasonID: 9, Wins: 3, Losses: 3, Rating: 1700},
		{Toon: "Alice", ToonGUID: 1, SeasonID: 9, Wins: 1, Losses: 0, Rating: 1950},
		{Toon: "Smurf", ToonGUID: 2, SeasonID: 9, Wins: 6, Losses: 0, Rating: 2300},
		{Toon: "Fresh", ToonGUID: 3, SeasonID: 9, Wins: 1, Losses: 1, Rating: 2600},
		{Toon: "OldSeason", ToonGUID: 4, SeasonID: 8, Wins: 20, Losses: 20, Rating: 2800},
	}

	out := SummarizeToons(9, stats, guids, "")
	require.Len(t, out, 2)
	assert.Equal(t, ToonRating{Toon: "Smurf", Gateway: 10, Rating: 2300}, out[0])
	assert.Equal(t, ToonRating{Toon: "Alice", Gateway: 30, Rating: 1950}, out[1])
}

func TestOtherToonsWithRatingsExcludesMainToon(t *testing.T) {
	info := statsInfo(9,
		MatchmakedStat{Toon: "Alice", ToonGUID: 1, SeasonID: 9, Wins: 5, Losses: 5, Rating: 1900},
		MatchmakedStat{Toon: "AliceSmurf", ToonGUID: 2, SeasonID: 9, Wins: 5, Losses: 5, Rating: 2200},
	)
	out := OtherToonsWithRatings(info, "alice")
	require.Len(t, out, 1)
	assert.Equal(t, "AliceSmurf", out[0].Toon)
}

func playerVs(selfName, selfResult, oppName, oppRace string, createTime string) GameResult {
	return GameResult{
		CreateTime: createTime,
		Players: []Player{
			{Toon: selfName, Result: selfResult, Attributes: PlayerAttributes{Type: "player"}},
			{Toon: oppName, Result: opposite(selfResult), Attributes: PlayerAttributes{Type: "player", Race: oppRace}},
		},
	}
}

func opposite(result string) string {
	if result == "win" {
		return "loss"
	}
	return "win"
}

func TestDeriveOpponentRecordFoldsWinsLossesAndRace(t *testing.T) {
	profile := &ScrProfile{GameResults: []GameResult{
		playerVs("Alice", "win", "Carl", "zerg", "100"),
		playerVs("Alice", "loss", "Carl", "terran", "300"),
		playerVs("Alice", "win", "Dana", "protoss", "400"),
		{CreateTime: "500", Players: []Player{
			{Toon: "Alice", Result: "win", Attributes: PlayerAttributes{Type: "player"}},
			{Toon: "Carl", Result: "loss", Attributes: PlayerAttributes{Type: "player"}},
			{Toon: "obs", Result: "", Attributes: PlayerAttributes{Type: "observer"}},
		}},
	}}

	rec := DeriveOpponentRecord(profile, "alice", "carl")
	assert.Equal(t, 2, rec.Wins)
	assert.Equal(t, 1, rec.Losses)
	assert.Equal(t, int64(500), rec.LastMatchTS)
	assert.Equal(t, "Terran", rec.LastRace, "race tracks the newest game that recorded one")
}

func TestDeriveOpponentRecordSkipsNonTwoPlayerGames(t *testing.T) {
	profile := &ScrProfile{GameResults: []GameResult{
		{CreateTime: "100", Players: []Player{
			{Toon: "Alice", Result: "win", Attributes: PlayerAttributes{Type: "player"}},
		}},
	}}
	rec := DeriveOpponentRecord(profile, "Alice", "Carl")
	assert.Zero(t, rec.Wins)
	assert.Zero(t, rec.Losses)
}
