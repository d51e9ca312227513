package replaylib

import (
	"context"
	"os"
	"strings"

	"bw-companion/internal/constants"
	"bw-companion/internal/history"
	"bw-companion/internal/race"
	"bw-companion/internal/screp"

	"github.com/rs/zerolog"
)

// Seeder backfills an empty profile-history bucket by parsing the
// newest replays recorded in the library index.
type Seeder struct {
	logger zerolog.Logger
	index  *Index
	runner OverviewRunner
}

func NewSeeder(logger zerolog.Logger, index *Index, runner OverviewRunner) *Seeder {
	return &Seeder{
		logger: logger.With().Str("component", "replay_seed").Logger(),
		index:  index,
		runner: runner,
	}
}

// SeedMatches parses recent library replays into stored matches for the
// named player. Best effort: unreadable, deleted, or ambiguous replays
// are skipped.
func (s *Seeder) SeedMatches(ctx context.Context, selfName string) []history.StoredMatch {
	if s.runner == nil || !s.runner.Available() || selfName == "" {
		return nil
	}

	paths, err := s.index.RecentPaths(ctx, constants.LibrarySeedMax)
	if err != nil {
		s.logger.Warn().Err(err).Msg("replay index query failed")
		return nil
	}
	if len(paths) == 0 {
		return nil
	}

	var matches []history.StoredMatch
	for _, path := range paths {
		if m, ok := s.matchFromReplay(ctx, path, selfName); ok {
			matches = append(matches, m)
		}
	}
	if len(matches) > 0 {
		s.logger.Info().
			Int("replays", len(paths)).
			Int("matches", len(matches)).
			Msg("profile history seeded from replay library")
	}
	return matches
}

func (s *Seeder) matchFromReplay(ctx context.Context, path, selfName string) (history.StoredMatch, bool) {
	info, err := os.Stat(path)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("indexed replay missing")
		return history.StoredMatch{}, false
	}

	text, err := s.runner.Overview(ctx, path)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("seed replay parse failed")
		return history.StoredMatch{}, false
	}

	ov := screp.ParseOverview(text)
	if duration, ok := screp.ParseDurationSeconds(text); ok && duration < constants.DodgeMaxDurationS {
		return history.StoredMatch{}, false
	}

	var self, opp *screp.Player
	for i := range ov.Players {
		switch {
		case strings.EqualFold(ov.Players[i].Name, selfName):
			self = &ov.Players[i]
		case opp == nil:
			opp = &ov.Players[i]
		}
	}
	if self == nil || opp == nil {
		return history.StoredMatch{}, false
	}

	winner := strings.ToLower(ov.Winner)
	var result history.MatchOutcome
	switch {
	case winner != "" && strings.Contains(winner, strings.ToLower(selfName)):
		result = history.OutcomeWin
	case winner != "" && strings.Contains(winner, strings.ToLower(opp.Name)):
		result = history.OutcomeLoss
	default:
		return history.StoredMatch{}, false
	}

	m := history.StoredMatch{
		Timestamp: info.ModTime().Unix(),
		Opponent:  opp.Name,
		Result:    result,
	}
	if opp.Race != "" {
		m.OpponentRace = race.Normalize(opp.Race)
	}
	if self.Race != "" {
		m.MainRace = race.Normalize(self.Race)
	}
	return m, true
}
