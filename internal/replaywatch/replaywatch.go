// Package replaywatch follows the game's LastReplay file: it settles file
// changes, classifies short games as dodges, folds results into the
// history stores, and drives the post-game rating refresh with its bounded
// retry.
package replaywatch

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bw-companion/internal/bwapi"
	"bw-companion/internal/config"
	"bw-companion/internal/constants"
	"bw-companion/internal/history"
	"bw-companion/internal/overlay"
	"bw-companion/internal/race"
	"bw-companion/internal/screp"
	"bw-companion/internal/state"

	"github.com/rs/zerolog"
)

// OverviewRunner is the replay decoder surface; satisfied by *screp.Runner.
type OverviewRunner interface {
	Available() bool
	Overview(ctx context.Context, replayPath string) (string, error)
}

type Watcher struct {
	logger       zerolog.Logger
	cfg          *config.Config
	writer       *overlay.Writer
	runner       OverviewRunner
	oppStore     *history.OpponentStore
	profileStore *history.ProfileHistoryStore
	now          func() time.Time
}

func NewWatcher(
	logger zerolog.Logger,
	cfg *config.Config,
	writer *overlay.Writer,
	runner OverviewRunner,
	oppStore *history.OpponentStore,
	profileStore *history.ProfileHistoryStore,
) *Watcher {
	return &Watcher{
		logger:       logger.With().Str("component", "replaywatch").Logger(),
		cfg:          cfg,
		writer:       writer,
		runner:       runner,
		oppStore:     oppStore,
		profileStore: profileStore,
		now:          time.Now,
	}
}

// Bootstrap primes the watch state with the file's current mtime so a
// replay left over from a previous session is not treated as a change.
func (w *Watcher) Bootstrap(app *state.App) {
	if w.cfg.LastReplayPath == "" {
		return
	}
	info, err := os.Stat(w.cfg.LastReplayPath)
	if err != nil {
		return
	}
	app.ReplayWatch.LastMtime = info.ModTime()
	app.ReplayWatch.LastProcessedMtime = info.ModTime()
}

// Tick checks the watched file's mtime and, once a change has settled,
// processes the replay exactly once.
func (w *Watcher) Tick(ctx context.Context, app *state.App) {
	if w.runner == nil || !w.runner.Available() || w.cfg.LastReplayPath == "" {
		return
	}

	watch := &app.ReplayWatch
	if info, err := os.Stat(w.cfg.LastReplayPath); err == nil {
		mtime := info.ModTime()
		if !mtime.Equal(watch.LastProcessedMtime) {
			watch.LastMtime = mtime
			if watch.ChangedAt.IsZero() {
				watch.ChangedAt = w.now()
			}
		}
	}

	if watch.ChangedAt.IsZero() || w.now().Sub(watch.ChangedAt) < w.cfg.ReplaySettle {
		return
	}
	watch.ChangedAt = time.Time{}
	w.process(ctx, app)
}

func (w *Watcher) process(ctx context.Context, app *state.App) {
	watch := &app.ReplayWatch

	app.Opponent.Waiting = true
	if err := w.writer.WriteOpponent(w.cfg, app); err != nil {
		w.logger.Error().Err(err).Msg("opponent overlay write failed")
	}

	text, err := w.runner.Overview(ctx, w.cfg.LastReplayPath)
	if err != nil {
		w.logger.Error().Err(err).Msg("replay parse failed")
		return
	}

	ov := screp.ParseOverview(text)
	duration, hasDuration := screp.ParseDurationSeconds(text)

	if app.Self.Profile == nil {
		watch.LastProcessedMtime = watch.LastMtime
		return
	}
	self := *app.Self.Profile

	selfTeam := 0
	selfFound := false
	for _, p := range ov.Players {
		if strings.EqualFold(p.Name, self.Name) {
			selfTeam = p.Team
			selfFound = true
		}
	}
	if !selfFound {
		watch.LastProcessedMtime = watch.LastMtime
		return
	}

	var opponent *screp.Player
	for i, p := range ov.Players {
		if p.Team != selfTeam && p.Team != 0 {
			opponent = &ov.Players[i]
			break
		}
	}
	if opponent == nil {
		watch.LastProcessedMtime = watch.LastMtime
		return
	}

	mtimeUnix := watch.LastMtime.Unix()
	if watch.LastMtime.IsZero() {
		mtimeUnix = 0
	}

	if hasDuration && duration < constants.DodgeMaxDurationS {
		outcome, classified := classifyDodge(ov.Winner, self.Name, opponent.Name, selfTeam, opponent.Team)
		watch.LastDodgeCandidate = &state.DodgeCandidate{
			Opponent:        opponent.Name,
			ApproxTimestamp: mtimeUnix,
			Outcome:         outcome,
			Classified:      classified,
		}
		w.logger.Info().
			Str("opponent", opponent.Name).
			Int("duration", duration).
			Bool("classified", classified).
			Msg("dodge candidate recorded")
	}

	rec := app.OpponentHistory.Ensure(opponent.Name, self.Gateway)
	rec.Name = opponent.Name
	rec.Gateway = self.Gateway
	rec.ApplyRaceObservation(opponent.Race)
	if mtimeUnix > 0 {
		rec.AdvanceLastMatch(mtimeUnix)
	}

	w.refreshSelf(ctx, app, self, opponent.Name, rec)

	if err := w.oppStore.Save(app.OpponentHistory); err != nil {
		w.logger.Error().Err(err).Msg("opponent history save failed")
	}
	watch.LastProcessedMtime = watch.LastMtime
}

// refreshSelf re-fetches the local rating and profile after a game,
// scheduling the rating retry when the rating did not move yet.
func (w *Watcher) refreshSelf(ctx context.Context, app *state.App, self state.ProfileID, oppName string, rec *history.OpponentRecord) {
	api := app.APIClient
	if api == nil {
		return
	}

	info, err := api.GetToonInfo(ctx, self.Name, self.Gateway)
	if err != nil {
		w.logger.Warn().Err(err).Msg("rating refresh failed")
		w.scheduleRetry(app, app.Self.Rating)
		return
	}

	old := app.Self.Rating
	app.Self.Rating = ratingFor(info, self.Name)
	if err := w.writer.WriteRating(w.cfg, app); err != nil {
		w.logger.Error().Err(err).Msg("rating overlay write failed")
	}
	if ratingsEqual(old, app.Self.Rating) {
		w.scheduleRetry(app, old)
	} else {
		app.RatingRetry.Reset()
	}

	profile, err := api.GetScrProfile(ctx, self.Name, self.Gateway)
	if err != nil {
		w.logger.Warn().Err(err).Msg("profile refresh failed")
		return
	}

	derived := bwapi.DeriveOpponentRecord(profile, self.Name, oppName)
	rec.Wins = derived.Wins
	rec.Losses = derived.Losses
	if derived.LastMatchTS > 0 {
		rec.AdvanceLastMatch(derived.LastMatchTS)
	}
	rec.SetRaceIfUnknown(derived.LastRace)

	w.confirmDodge(app, profile, self)

	summary := bwapi.ProfileStatsLast100(profile, self.Name, bwapi.Last100Options{
		Merger:      w.profileStore,
		Key:         self.HistoryKey(),
		KnownRandom: app.OpponentHistory.KnownRandomKeys(),
	})
	app.Self.MainRace = summary.MainRace
	app.Self.MatchupLines = summary.MatchupLines
	app.Self.Results = summary.Results
	app.Self.SelfDodged = summary.SelfDodged
	app.Self.OpponentDodged = summary.OpponentDodged
}

// confirmDodge matches a pending dodge candidate against the profile's
// game results and stores the confirmed dodge.
func (w *Watcher) confirmDodge(app *state.App, profile *bwapi.ScrProfile, self state.ProfileID) {
	cand := app.ReplayWatch.LastDodgeCandidate
	if cand == nil {
		return
	}

	for _, g := range profile.GameResults {
		ts := g.Timestamp()
		if ts == 0 || absDiff(ts, cand.ApproxTimestamp) > constants.DodgeMatchWindowS {
			continue
		}
		players := twoPlayers(g)
		if players == nil {
			continue
		}
		mi := -1
		if strings.EqualFold(players[0].Toon, self.Name) {
			mi = 0
		} else if strings.EqualFold(players[1].Toon, self.Name) {
			mi = 1
		}
		if mi < 0 || !strings.EqualFold(players[1-mi].Toon, cand.Opponent) {
			continue
		}

		outcome := cand.Outcome
		if !cand.Classified {
			if strings.EqualFold(players[mi].Result, "win") {
				outcome = history.OutcomeOpponentDodged
			} else {
				outcome = history.OutcomeSelfDodged
			}
		}
		m := history.StoredMatch{
			Timestamp: ts,
			Opponent:  cand.Opponent,
			Result:    outcome,
		}
		if r := players[1-mi].Attributes.Race; r != "" {
			m.OpponentRace = race.Normalize(r)
		}
		if r := players[mi].Attributes.Race; r != "" {
			m.MainRace = race.Normalize(r)
		}
		if err := w.profileStore.UpsertMatch(self.HistoryKey(), m); err != nil {
			w.logger.Error().Err(err).Msg("dodge upsert failed")
		} else {
			w.logger.Info().
				Str("opponent", cand.Opponent).
				Str("outcome", string(outcome)).
				Msg("dodge confirmed")
		}
		app.ReplayWatch.LastDodgeCandidate = nil
		return
	}
}

// RatingRetry runs one step of the bounded post-game rating retry.
func (w *Watcher) RatingRetry(ctx context.Context, app *state.App) {
	retry := &app.RatingRetry
	if !retry.Active() || w.now().Before(retry.NextAt) {
		return
	}

	api := app.APIClient
	if api == nil || app.Self.Profile == nil {
		retry.Reset()
		return
	}
	self := *app.Self.Profile

	info, err := api.GetToonInfo(ctx, self.Name, self.Gateway)
	if err != nil {
		w.logger.Warn().Err(err).Int("retries_left", retry.Retries-1).Msg("rating retry fetch failed")
		w.decrementRetry(retry)
		return
	}

	rating := ratingFor(info, self.Name)
	if !ratingsEqual(rating, retry.Baseline) {
		app.Self.Rating = rating
		retry.Reset()
		if err := w.writer.WriteRating(w.cfg, app); err != nil {
			w.logger.Error().Err(err).Msg("rating overlay write failed")
		}
		return
	}
	w.decrementRetry(retry)
}

// decrementRetry consumes one retry; a spent budget clears the whole
// retry state, baseline included.
func (w *Watcher) decrementRetry(retry *state.RatingRetryState) {
	retry.Retries--
	if retry.Retries <= 0 {
		retry.Reset()
		return
	}
	retry.NextAt = w.now().Add(w.cfg.RatingRetryDelay)
}

func (w *Watcher) scheduleRetry(app *state.App, baseline *int) {
	app.RatingRetry.Baseline = baseline
	app.RatingRetry.Retries = w.cfg.RatingRetryMax
	app.RatingRetry.NextAt = w.now().Add(w.cfg.RatingRetryDelay)
}

var teamNumberRe = regexp.MustCompile(`(?i)team\D*(\d+)`)

// classifyDodge maps a winner label onto the dodge direction: a win for
// self means the opponent left early, and vice versa.
func classifyDodge(winner, selfName, oppName string, selfTeam, oppTeam int) (history.MatchOutcome, bool) {
	lower := strings.ToLower(winner)
	if selfName != "" && strings.Contains(lower, strings.ToLower(selfName)) {
		return history.OutcomeOpponentDodged, true
	}
	if oppName != "" && strings.Contains(lower, strings.ToLower(oppName)) {
		return history.OutcomeSelfDodged, true
	}
	if m := teamNumberRe.FindStringSubmatch(winner); m != nil {
		if team, err := strconv.Atoi(m[1]); err == nil {
			switch team {
			case selfTeam:
				return history.OutcomeOpponentDodged, true
			case oppTeam:
				return history.OutcomeSelfDodged, true
			}
		}
	}
	return "", false
}

func ratingFor(info *bwapi.ToonInfo, name string) *int {
	if rating, ok := bwapi.ComputeRatingForName(info, name); ok {
		return &rating
	}
	return nil
}

func ratingsEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func twoPlayers(g bwapi.GameResult) []bwapi.Player {
	out := make([]bwapi.Player, 0, 2)
	for _, p := range g.Players {
		if p.Attributes.Type == "player" && strings.TrimSpace(p.Toon) != "" {
			out = append(out, p)
		}
	}
	if len(out) != 2 {
		return nil
	}
	return out
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
