package bwapi

import "strconv"

// MatchmakedStat is one per-toon, per-season, per-mode stats row.
type MatchmakedStat struct {
	Toon     string `json:"toon"`
	ToonGUID uint32 `json:"toon_guid"`
	SeasonID int    `json:"season_id"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Rating   int    `json:"rating"`
}

// ProfileEntry is one account-owned toon listed on the profile.
type ProfileEntry struct {
	Title    string `json:"title"`
	Toon     string `json:"toon"`
	ToonGUID uint32 `json:"toon_guid"`
	Private  bool   `json:"private"`
}

// ToonInfo is the scr_tooninfo view of an aurora profile.
type ToonInfo struct {
	MatchmakedCurrentSeason int                          `json:"matchmaked_current_season"`
	MatchmakedStats         []MatchmakedStat             `json:"matchmaked_stats"`
	Profiles                []ProfileEntry               `json:"profiles"`
	ToonGUIDByGateway       map[string]map[string]uint32 `json:"toon_guid_by_gateway"`
}

// MmGameLoading is the scr_mmgameloading view, fetched by the game while a
// matchmade game is loading.
type MmGameLoading struct {
	MatchmakedCurrentSeason int                          `json:"matchmaked_current_season"`
	MatchmakedStats         []MatchmakedStat             `json:"matchmaked_stats"`
	ToonGUIDByGateway       map[string]map[string]uint32 `json:"toon_guid_by_gateway"`
}

// PlayerAttributes tags a game-result participant.
type PlayerAttributes struct {
	Type string `json:"type"`
	Race string `json:"race"`
}

// Player is one participant in a recorded game result.
type Player struct {
	Toon       string           `json:"toon"`
	Result     string           `json:"result"`
	Attributes PlayerAttributes `json:"attributes"`
}

// GameResult is one recorded game on the profile. CreateTime is a decimal
// unix-seconds string.
type GameResult struct {
	CreateTime string   `json:"create_time"`
	Players    []Player `json:"players"`
}

// Timestamp parses CreateTime, returning 0 when unparseable.
func (g GameResult) Timestamp() int64 {
	ts, err := strconv.ParseInt(g.CreateTime, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// ReplayAttributes describe a profile replay. The player columns are
// comma-separated parallel lists.
type ReplayAttributes struct {
	GameID            string `json:"game_id"`
	ReplayPlayerNames string `json:"replay_player_names"`
	ReplayPlayerRaces string `json:"replay_player_races"`
	ReplayPlayerTypes string `json:"replay_player_types"`
}

// ProfileReplay is one replay reference on the profile; Link feeds the
// matchmaker player-info lookup.
type ProfileReplay struct {
	Link       string           `json:"link"`
	CreateTime int64            `json:"create_time"`
	Attributes ReplayAttributes `json:"attributes"`
}

// ScrProfile is the scr_profile view: recent game results plus replay
// references.
type ScrProfile struct {
	GameResults []GameResult    `json:"game_results"`
	Replays     []ProfileReplay `json:"replays"`
}

// MatchReplay is one downloadable replay in a matchmaker detail response.
type MatchReplay struct {
	URL        string `json:"url"`
	MD5        string `json:"md5"`
	CreateTime int64  `json:"create_time"`
}

// MatchmakerPlayerInfo is the matchmaker detail for one match.
type MatchmakerPlayerInfo struct {
	Replays []MatchReplay `json:"replays"`
}
