package bwapi

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"bw-companion/internal/constants"
	"bw-companion/internal/history"
	"bw-companion/internal/race"
)

// MatchMerger folds freshly derived matches into a persistent per-profile
// log and returns the merged display window.
type MatchMerger interface {
	MergeMatches(key history.ProfileKey, incoming []history.StoredMatch) ([]history.StoredMatch, error)
}

// Last100Options tune the profile summary. When Merger is nil the summary
// is computed statelessly from the profile alone.
type Last100Options struct {
	Merger      MatchMerger
	Key         history.ProfileKey
	KnownRandom map[string]bool
}

// Last100Summary is the derived view of a profile's recent matches.
type Last100Summary struct {
	MainRace       string
	MatchupLines   []string
	Results        []bool
	SelfDodged     int
	OpponentDodged int
}

// ProfileStatsLast100 reduces a profile's game results, optionally merged
// with stored history, to a main race, matchup winrate lines, a newest-first
// win/loss vector, and dodge counters.
func ProfileStatsLast100(profile *ScrProfile, mainName string, opts Last100Options) Last100Summary {
	candidates := extractCandidates(profile, mainName, opts.KnownRandom)

	window := candidates
	if opts.Merger != nil {
		if merged, err := opts.Merger.MergeMatches(opts.Key, candidates); err == nil {
			window = merged
		}
	}
	if len(window) > constants.DisplayedMatches {
		window = window[:constants.DisplayedMatches]
	}

	mainRace := deriveMainRace(window)

	type tally struct {
		wins  int
		total int
	}
	matchups := make(map[string]*tally)
	summary := Last100Summary{MainRace: race.DisplayLabel(mainRace)}
	overallWins, overallTotal := 0, 0

	for _, m := range window {
		switch m.Result {
		case history.OutcomeSelfDodged:
			summary.SelfDodged++
			continue
		case history.OutcomeOpponentDodged:
			summary.OpponentDodged++
			continue
		case history.OutcomeWin, history.OutcomeLoss:
		default:
			continue
		}

		won := m.Result == history.OutcomeWin
		summary.Results = append(summary.Results, won)
		overallTotal++
		if won {
			overallWins++
		}

		if !mainRaceMatches(mainRace, m.MainRace) {
			continue
		}
		key := race.LowerKey(m.OpponentRace)
		t, ok := matchups[key]
		if !ok {
			t = &tally{}
			matchups[key] = t
		}
		t.total++
		if won {
			t.wins++
		}
	}

	mainInitial := race.Initial(mainRace)
	for _, opp := range []string{"protoss", "terran", "zerg", "random"} {
		t, ok := matchups[opp]
		if !ok || t.total == 0 {
			continue
		}
		summary.MatchupLines = append(summary.MatchupLines, fmt.Sprintf(
			"%sv%s: %d%% (%d / %d)",
			mainInitial, race.Initial(opp), roundedPercent(t.wins, t.total), t.wins, t.total))
	}
	if overallTotal > 0 {
		summary.MatchupLines = append(summary.MatchupLines, fmt.Sprintf(
			"Overall: %d%% (%d / %d)", roundedPercent(overallWins, overallTotal), overallWins, overallTotal))
	} else {
		summary.MatchupLines = append(summary.MatchupLines, "Overall: N/A")
	}
	return summary
}

// extractCandidates keeps the two-player games involving mainName, newest
// first, as storable matches.
func extractCandidates(profile *ScrProfile, mainName string, knownRandom map[string]bool) []history.StoredMatch {
	out := make([]history.StoredMatch, 0, len(profile.GameResults))
	for _, g := range profile.GameResults {
		players := actualPlayers(g)
		if len(players) != 2 {
			continue
		}

		mi := -1
		if strings.EqualFold(players[0].Toon, mainName) {
			mi = 0
		} else if strings.EqualFold(players[1].Toon, mainName) {
			mi = 1
		}
		if mi < 0 {
			continue
		}
		main, opp := players[mi], players[1-mi]

		oppName := opp.Toon
		if strings.TrimSpace(oppName) == "" {
			oppName = "Unknown"
		}
		outcome := history.OutcomeLoss
		if strings.EqualFold(main.Result, "win") {
			outcome = history.OutcomeWin
		}

		oppRace := ""
		if opp.Attributes.Race != "" {
			oppRace = race.Normalize(opp.Attributes.Race)
		}
		if knownRandom != nil && knownRandom[strings.ToLower(oppName)] {
			oppRace = "Random"
		}
		mainRace := ""
		if main.Attributes.Race != "" {
			mainRace = race.Normalize(main.Attributes.Race)
		}

		out = append(out, history.StoredMatch{
			Timestamp:    g.Timestamp(),
			Opponent:     oppName,
			OpponentRace: oppRace,
			MainRace:     mainRace,
			Result:       outcome,
		})
	}
	sortMatchesDesc(out)
	return out
}

func sortMatchesDesc(matches []history.StoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp > matches[j].Timestamp
	})
}

// deriveMainRace classifies the window's main race: Random when all three
// fixed races appear, else the modal recorded race with ties broken by
// first appearance.
func deriveMainRace(window []history.StoredMatch) string {
	counts := make(map[string]int)
	order := make([]string, 0, 3)
	for _, m := range window {
		if m.MainRace == "" {
			continue
		}
		key := race.LowerKey(m.MainRace)
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	if counts["protoss"] > 0 && counts["terran"] > 0 && counts["zerg"] > 0 {
		return "Random"
	}

	best, bestCount := "", 0
	for _, key := range order {
		if counts[key] > bestCount {
			best, bestCount = key, counts[key]
		}
	}
	return race.Normalize(best)
}

// mainRaceMatches decides whether an entry participates in matchup
// winrates: a Random main takes entries of any fixed race, a fixed main
// only its own.
func mainRaceMatches(mainRace, entryRace string) bool {
	if race.IsRandom(mainRace) {
		switch race.LowerKey(entryRace) {
		case "protoss", "terran", "zerg":
			return true
		}
		return false
	}
	return strings.EqualFold(mainRace, entryRace)
}

func roundedPercent(wins, total int) int {
	return int(math.Round(100 * float64(wins) / float64(total)))
}
