// Package enrich runs the API fan-out that turns an accepted opponent
// candidate into display state, and the matching self-profile bootstrap.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bw-companion/internal/bwapi"
	"bw-companion/internal/config"
	"bw-companion/internal/history"
	"bw-companion/internal/overlay"
	"bw-companion/internal/state"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Seeder backfills an empty profile-history bucket from local replays.
type Seeder interface {
	SeedMatches(ctx context.Context, selfName string) []history.StoredMatch
}

type Enricher struct {
	logger       zerolog.Logger
	cfg          *config.Config
	writer       *overlay.Writer
	oppStore     *history.OpponentStore
	profileStore *history.ProfileHistoryStore
	seeder       Seeder
}

func NewEnricher(
	logger zerolog.Logger,
	cfg *config.Config,
	writer *overlay.Writer,
	oppStore *history.OpponentStore,
	profileStore *history.ProfileHistoryStore,
	seeder Seeder,
) *Enricher {
	return &Enricher{
		logger:       logger.With().Str("component", "enrich").Logger(),
		cfg:          cfg,
		writer:       writer,
		oppStore:     oppStore,
		profileStore: profileStore,
		seeder:       seeder,
	}
}

// EnrichOpponent fetches the opponent's toons, profile summary, and toon
// info, updates the head-to-head record, and rewrites the opponent overlay.
// Only a toon-info failure fails the enrichment; the other fetches degrade
// to empty results.
func (e *Enricher) EnrichOpponent(ctx context.Context, app *state.App, opp state.ProfileID, observedAt time.Time) error {
	api := app.APIClient
	if api == nil {
		return fmt.Errorf("enrich opponent %s: no api client", opp.Name)
	}

	var (
		toons   []bwapi.ToonRating
		summary bwapi.Last100Summary
		hasProf bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		got, err := api.OpponentToonsSummary(gctx, opp.Name, opp.Gateway)
		if err != nil {
			e.logger.Warn().Err(err).Str("opponent", opp.Name).Msg("toons summary failed")
			return nil
		}
		toons = got
		return nil
	})
	g.Go(func() error {
		profile, err := api.GetScrProfile(gctx, opp.Name, opp.Gateway)
		if err != nil {
			e.logger.Warn().Err(err).Str("opponent", opp.Name).Msg("opponent profile fetch failed")
			return nil
		}
		// The opponent view is stateless: no history merge, no
		// known-random corrections.
		summary = bwapi.ProfileStatsLast100(profile, opp.Name, bwapi.Last100Options{})
		hasProf = true
		return nil
	})
	_ = g.Wait()

	info, err := api.GetToonInfo(ctx, opp.Name, opp.Gateway)
	if err != nil {
		return fmt.Errorf("enrich opponent %s: %w", opp.Name, err)
	}

	raceHint := ""
	if hasProf && summary.MainRace != "Unknown" {
		raceHint = summary.MainRace
	}

	rec := app.OpponentHistory.Ensure(opp.Name, opp.Gateway)
	rec.Name = opp.Name
	rec.Gateway = opp.Gateway
	rec.PreviousRating = rec.CurrentRating
	if rating, ok := bwapi.ComputeRatingForName(info, opp.Name); ok {
		rec.CurrentRating = &rating
	} else {
		rec.CurrentRating = nil
	}
	rec.ApplyRaceObservation(raceHint)

	if rec.Wins+rec.Losses == 0 && app.Self.Profile != nil {
		e.bootstrapHeadToHead(ctx, api, app.Self.Profile, opp.Name, rec)
	}

	app.Opponent.Profile = &opp
	app.Opponent.Race = rec.Race
	app.Opponent.Toons = toons
	if hasProf {
		app.Opponent.MatchupLines = summary.MatchupLines
	} else {
		app.Opponent.MatchupLines = nil
	}
	app.Opponent.LastIdentity = &opp
	app.Opponent.LastObservedTS = observedAt
	app.Opponent.Waiting = false

	if err := e.oppStore.Save(app.OpponentHistory); err != nil {
		e.logger.Error().Err(err).Msg("opponent history save failed")
	}
	if err := e.writer.WriteOpponent(e.cfg, app); err != nil {
		e.logger.Error().Err(err).Msg("opponent overlay write failed")
	}
	e.logger.Info().
		Str("opponent", opp.Name).
		Uint16("gateway", opp.Gateway).
		Str("race", rec.Race).
		Msg("opponent enriched")
	return nil
}

// bootstrapHeadToHead fills an empty head-to-head record from the self
// profile's game results against the opponent.
func (e *Enricher) bootstrapHeadToHead(ctx context.Context, api bwapi.API, self *state.ProfileID, oppName string, rec *history.OpponentRecord) {
	profile, err := api.GetScrProfile(ctx, self.Name, self.Gateway)
	if err != nil {
		e.logger.Warn().Err(err).Msg("head-to-head bootstrap fetch failed")
		e.foldStoredHeadToHead(self, oppName, rec)
		return
	}
	derived := bwapi.DeriveOpponentRecord(profile, self.Name, oppName)
	rec.Wins = derived.Wins
	rec.Losses = derived.Losses
	if derived.LastMatchTS > 0 {
		rec.AdvanceLastMatch(derived.LastMatchTS)
	}
	rec.SetRaceIfUnknown(derived.LastRace)
}

// foldStoredHeadToHead rebuilds the record from the stored profile
// history when the live profile is unavailable. Dodges carry no played
// game, so they count toward neither the tally nor last_match_ts.
func (e *Enricher) foldStoredHeadToHead(self *state.ProfileID, oppName string, rec *history.OpponentRecord) {
	matches := e.profileStore.Matches(self.HistoryKey())
	wins, losses := history.FoldRecord(matches, oppName)
	if wins+losses == 0 {
		return
	}
	rec.Wins = wins
	rec.Losses = losses
	rec.SetRaceIfUnknown(history.LatestRaceObservation(matches, oppName))
	for _, m := range matches {
		if strings.EqualFold(m.Opponent, oppName) && !m.Result.IsDodge() {
			rec.AdvanceLastMatch(m.Timestamp)
		}
	}
	e.logger.Info().
		Str("opponent", oppName).
		Int("wins", wins).
		Int("losses", losses).
		Msg("head-to-head rebuilt from stored history")
}

// BootstrapSelf fetches the local player's toon info and profile, fills
// ratings, owned profiles, other toons, and the last-100 summary, seeding
// the profile-history bucket from local replays when it is empty.
func (e *Enricher) BootstrapSelf(ctx context.Context, app *state.App, screpAvailable bool) error {
	api := app.APIClient
	if api == nil || app.Self.Profile == nil {
		return nil
	}
	self := *app.Self.Profile

	info, err := api.GetToonInfo(ctx, self.Name, self.Gateway)
	if err != nil {
		return fmt.Errorf("self bootstrap %s: %w", self.Name, err)
	}

	own := make(map[string]bool, len(info.Profiles))
	for _, p := range info.Profiles {
		own[strings.ToLower(p.Toon)] = true
	}
	app.Self.OwnProfiles = own

	if rating, ok := bwapi.ComputeRatingForName(info, self.Name); ok {
		app.Self.Rating = &rating
	} else {
		app.Self.Rating = nil
	}
	app.Self.OtherToons = bwapi.OtherToonsWithRatings(info, self.Name)

	key := self.HistoryKey()
	if !e.profileStore.HasMatches(key) && screpAvailable && e.seeder != nil {
		if seeded := e.seeder.SeedMatches(ctx, self.Name); len(seeded) > 0 {
			if _, err := e.profileStore.MergeMatches(key, seeded); err != nil {
				e.logger.Warn().Err(err).Msg("profile history seed failed")
			}
		}
	}

	if profile, err := api.GetScrProfile(ctx, self.Name, self.Gateway); err != nil {
		e.logger.Warn().Err(err).Msg("self profile fetch failed")
	} else {
		e.applySelfSummary(app, self, profile)
	}

	app.Self.LastRatingPoll = time.Now()
	app.Self.ProfileFetched = true
	if err := e.writer.WriteRating(e.cfg, app); err != nil {
		e.logger.Error().Err(err).Msg("rating overlay write failed")
	}
	return nil
}

// PollSelfRating is the fallback refresh used when no replay parser is
// available to trigger rating updates.
func (e *Enricher) PollSelfRating(ctx context.Context, app *state.App, screpAvailable bool) error {
	if screpAvailable {
		return nil
	}
	api := app.APIClient
	if api == nil || app.Self.Profile == nil {
		return nil
	}
	if !app.Self.LastRatingPoll.IsZero() && time.Since(app.Self.LastRatingPoll) < e.cfg.RatingPollInterval {
		return nil
	}
	self := *app.Self.Profile

	info, err := api.GetToonInfo(ctx, self.Name, self.Gateway)
	if err != nil {
		return fmt.Errorf("rating poll %s: %w", self.Name, err)
	}
	if rating, ok := bwapi.ComputeRatingForName(info, self.Name); ok {
		app.Self.Rating = &rating
	} else {
		app.Self.Rating = nil
	}
	app.Self.LastRatingPoll = time.Now()

	if profile, err := api.GetScrProfile(ctx, self.Name, self.Gateway); err != nil {
		e.logger.Warn().Err(err).Msg("self profile fetch failed")
	} else {
		e.applySelfSummary(app, self, profile)
	}
	if err := e.writer.WriteRating(e.cfg, app); err != nil {
		e.logger.Error().Err(err).Msg("rating overlay write failed")
	}
	return nil
}

// applySelfSummary rebuilds the last-100 view from an already-fetched
// profile, merging through the store with known-Random corrections.
func (e *Enricher) applySelfSummary(app *state.App, self state.ProfileID, profile *bwapi.ScrProfile) {
	summary := bwapi.ProfileStatsLast100(profile, self.Name, bwapi.Last100Options{
		Merger:      e.profileStore,
		Key:         self.HistoryKey(),
		KnownRandom: app.OpponentHistory.KnownRandomKeys(),
	})
	app.Self.MainRace = summary.MainRace
	app.Self.MatchupLines = summary.MatchupLines
	app.Self.Results = summary.Results
	app.Self.SelfDodged = summary.SelfDodged
	app.Self.OpponentDodged = summary.OpponentDodged
}
