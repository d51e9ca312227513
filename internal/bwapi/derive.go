package bwapi

import (
	"sort"
	"strconv"
	"strings"

	"bw-companion/internal/constants"
	"bw-companion/internal/race"
)

// ToonRating is one rated toon in a summary, best rating across the
// current season's modes.
type ToonRating struct {
	Toon    string
	Gateway uint16
	Rating  int
}

// ComputeRatingForGUID sums the current-season games for a guid and returns
// the maximum rating across its rows once enough games are on record.
func ComputeRatingForGUID(info *ToonInfo, guid uint32) (int, bool) {
	totalGames := 0
	maxRating := 0
	found := false
	for _, s := range info.MatchmakedStats {
		if s.ToonGUID != guid || s.SeasonID != info.MatchmakedCurrentSeason {
			continue
		}
		totalGames += s.Wins + s.Losses
		if !found || s.Rating > maxRating {
			maxRating = s.Rating
		}
		found = true
	}
	if totalGames < constants.RatingMinGames {
		return 0, false
	}
	return maxRating, true
}

// ComputeRatingForName resolves a toon name to its guid, via the profiles
// list first and the current-season stats second, then rates the guid.
func ComputeRatingForName(info *ToonInfo, name string) (int, bool) {
	guid, ok := ResolveGUID(info, name)
	if !ok {
		return 0, false
	}
	return ComputeRatingForGUID(info, guid)
}

// ResolveGUID finds the guid for a toon name, case-insensitively.
func ResolveGUID(info *ToonInfo, name string) (uint32, bool) {
	for _, p := range info.Profiles {
		if strings.EqualFold(p.Toon, name) {
			return p.ToonGUID, true
		}
	}
	for _, s := range info.MatchmakedStats {
		if s.SeasonID == info.MatchmakedCurrentSeason && strings.EqualFold(s.Toon, name) {
			return s.ToonGUID, true
		}
	}
	return 0, false
}

// SummarizeToons aggregates current-season stats per guid into rated toons,
// dropping under-played guids and, when excludeToon is non-empty, the main
// toon itself. Results sort by rating descending.
func SummarizeToons(season int, stats []MatchmakedStat, guidByGateway map[string]map[string]uint32, excludeToon string) []ToonRating {
	guidToGateway := make(map[uint32]uint16)
	for gwStr, mapping := range guidByGateway {
		gw, err := strconv.ParseUint(gwStr, 10, 16)
		if err != nil {
			continue
		}
		for _, guid := range mapping {
			guidToGateway[guid] = uint16(gw)
		}
	}

	type agg struct {
		toon       string
		gw         uint16
		totalGames int
		maxRating  int
	}
	byGUID := make(map[uint32]*agg)
	order := make([]uint32, 0)
	for _, s := range stats {
		if s.SeasonID != season {
			continue
		}
		entry, ok := byGUID[s.ToonGUID]
		if !ok {
			entry = &agg{toon: s.Toon, gw: guidToGateway[s.ToonGUID]}
			byGUID[s.ToonGUID] = entry
			order = append(order, s.ToonGUID)
		}
		entry.totalGames += s.Wins + s.Losses
		if s.Rating > entry.maxRating {
			entry.maxRating = s.Rating
		}
		if strings.TrimSpace(entry.toon) == "" && strings.TrimSpace(s.Toon) != "" {
			entry.toon = s.Toon
		}
	}

	out := make([]ToonRating, 0, len(order))
	for _, guid := range order {
		entry := byGUID[guid]
		if entry.totalGames < constants.RatingMinGames {
			continue
		}
		if excludeToon != "" && strings.EqualFold(entry.toon, excludeToon) {
			continue
		}
		out = append(out, ToonRating{Toon: entry.toon, Gateway: entry.gw, Rating: entry.maxRating})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	return out
}

// OtherToonsWithRatings lists the account's other rated toons from its own
// toon-info view, best rating first.
func OtherToonsWithRatings(info *ToonInfo, mainToon string) []ToonRating {
	return SummarizeToons(info.MatchmakedCurrentSeason, info.MatchmakedStats, info.ToonGUIDByGateway, mainToon)
}

// OpponentRecordDerivation is the head-to-head view of a profile's game
// results against one opponent.
type OpponentRecordDerivation struct {
	Wins        int
	Losses      int
	LastMatchTS int64
	LastRace    string
}

// DeriveOpponentRecord walks selfName's game results and folds wins, losses,
// the newest match timestamp, and the opponent race last seen against
// oppName.
func DeriveOpponentRecord(profile *ScrProfile, selfName, oppName string) OpponentRecordDerivation {
	var out OpponentRecordDerivation
	for _, g := range profile.GameResults {
		players := actualPlayers(g)
		if len(players) != 2 {
			continue
		}

		mi := -1
		if strings.EqualFold(players[0].Toon, selfName) {
			mi = 0
		} else if strings.EqualFold(players[1].Toon, selfName) {
			mi = 1
		}
		if mi < 0 {
			continue
		}
		oi := 1 - mi
		if !strings.EqualFold(players[oi].Toon, oppName) {
			continue
		}

		switch strings.ToLower(players[mi].Result) {
		case "win":
			out.Wins++
		case "loss":
			out.Losses++
		}
		if ts := g.Timestamp(); ts > out.LastMatchTS {
			out.LastMatchTS = ts
			if r := players[oi].Attributes.Race; r != "" {
				out.LastRace = race.Normalize(r)
			}
		}
	}
	return out
}

// actualPlayers filters a game result down to real players with names.
func actualPlayers(g GameResult) []Player {
	out := make([]Player, 0, 2)
	for _, p := range g.Players {
		if p.Attributes.Type == "player" && strings.TrimSpace(p.Toon) != "" {
			out = append(out, p)
		}
	}
	return out
}
