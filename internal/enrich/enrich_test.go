package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bw-companion/internal/bwapi"
	"bw-companion/internal/config"
	"bw-companion/internal/history"
	"bw-companion/internal/logger"
	"bw-companion/internal/overlay"
	"bw-companion/internal/state"
)

type fakeAPI struct {
	toonInfo    *bwapi.ToonInfo
	toonInfoErr error
	profile     *bwapi.ScrProfile
	profileErr  error
	toons       []bwapi.ToonRating
	toonsErr    error

	profileCalls int
}

func (f *fakeAPI) Port() uint16 { return 6120 }

func (f *fakeAPI) GetToonInfo(ctx context.Context, name string, gw uint16) (*bwapi.ToonInfo, error) {
	return f.toonInfo, f.toonInfoErr
}

func (f *fakeAPI) GetMmGameLoading(ctx context.Context, name string, gw uint16) (*bwapi.MmGameLoading, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetScrProfile(ctx context.Context, name string, gw uint16) (*bwapi.ScrProfile, error) {
	f.profileCalls++
	return f.profile, f.profileErr
}

func (f *fakeAPI) GetMatchmakerPlayerInfo(ctx context.Context, matchID string) (*bwapi.MatchmakerPlayerInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) OpponentToonsSummary(ctx context.Context, name string, gw uint16) ([]bwapi.ToonRating, error) {
	return f.toons, f.toonsErr
}

type fakeSeeder struct {
	matches []history.StoredMatch
	calls   int
}

func (f *fakeSeeder) SeedMatches(ctx context.Context, selfName string) []history.StoredMatch {
	f.calls++
	return f.matches
}

func newTestEnricher(t *testing.T, seeder Seeder) (*Enricher, *config.Config, *history.ProfileHistoryStore) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		RatingOutputEnabled:   true,
		RatingOutputPath:      filepath.Join(dir, "rating.txt"),
		OpponentOutputEnabled: true,
		OpponentOutputPath:    filepath.Join(dir, "opponent.txt"),
		OpponentHistoryPath:   filepath.Join(dir, "opponents.json"),
		RatingPollInterval:    time.Minute,
	}
	profileStore := history.EmptyProfileHistoryStore(filepath.Join(dir, "profiles.json"))
	e := NewEnricher(logger.New(), cfg, overlay.NewWriter(logger.New()),
		history.NewOpponentStore(cfg.OpponentHistoryPath), profileStore, seeder)
	return e, cfg, profileStore
}

func carlToonInfo(rating int) *bwapi.ToonInfo {
	return &bwapi.ToonInfo{
		MatchmakedCurrentSeason: 9,
		Profiles:                []bwapi.ProfileEntry{{Toon: "Carl", ToonGUID: 7}},
		MatchmakedStats: []bwapi.MatchmakedStat{
			{Toon: "Carl", ToonGUID: 7, SeasonID: 9, Wins: 5, Losses: 3, Rating: rating},
		},
	}
}

func carlProfile() *bwapi.ScrProfile {
	return &bwapi.ScrProfile{GameResults: []bwapi.GameResult{{
		CreateTime: "1700000000",
		Players: []bwapi.Player{
			{Toon: "Carl", Result: "win", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "terran"}},
			{Toon: "Dana", Result: "loss", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "zerg"}},
		},
	}}}
}

func readyApp(api bwapi.API) *state.App {
	app := state.NewApp()
	app.Port = 6120
	app.LastPortUsed = 6120
	app.APIClient = api
	app.Self.Profile = &state.ProfileID{Name: "Alice", Gateway: 30}
	app.Self.OwnProfiles = map[string]bool{"alice": true}
	return app
}

func TestEnrichOpponentUpdatesRecordAndOverlay(t *testing.T) {
	api := &fakeAPI{
		toonInfo: carlToonInfo(2100),
		profile:  carlProfile(),
		toons:    []bwapi.ToonRating{{Toon: "Carl", Gateway: 30, Rating: 2100}},
	}
	e, cfg, _ := newTestEnricher(t, nil)
	app := readyApp(api)
	prev := 1990
	app.OpponentHistory["carl"] = &history.OpponentRecord{Name: "Carl", Gateway: 30, CurrentRating: &prev, Wins: 2, Losses: 1}
	observed := time.Now()

	err := e.EnrichOpponent(context.Background(), app, state.ProfileID{Name: "Carl", Gateway: 30}, observed)
	require.NoError(t, err)

	rec := app.OpponentHistory["carl"]
	require.NotNil(t, rec.CurrentRating)
	assert.Equal(t, 2100, *rec.CurrentRating)
	require.NotNil(t, rec.PreviousRating)
	assert.Equal(t, 1990, *rec.PreviousRating)
	assert.Equal(t, "Terran", rec.Race, "race hint comes from the profile summary")

	require.NotNil(t, app.Opponent.Profile)
	assert.Equal(t, "Carl", app.Opponent.Profile.Name)
	assert.False(t, app.Opponent.Waiting)
	assert.True(t, app.Opponent.LastObservedTS.Equal(observed))
	assert.NotEmpty(t, app.Opponent.MatchupLines)

	raw, err := os.ReadFile(cfg.OpponentOutputPath)
	require.NoError(t, err)
	assert.Equal(t, "Carl • Terran • 2100 • W-L 2-1", string(raw))

	_, err = os.Stat(cfg.OpponentHistoryPath)
	assert.NoError(t, err, "opponent history must be persisted")
}

func TestEnrichOpponentFailsOnToonInfoError(t *testing.T) {
	api := &fakeAPI{toonInfoErr: &bwapi.APIError{Op: "toon info", Err: errors.New("connection refused")}}
	e, _, _ := newTestEnricher(t, nil)
	app := readyApp(api)

	err := e.EnrichOpponent(context.Background(), app, state.ProfileID{Name: "Carl", Gateway: 30}, time.Now())
	require.Error(t, err)
	assert.Nil(t, app.Opponent.Profile)
}

func TestEnrichOpponentToleratesToonsAndProfileFailures(t *testing.T) {
	api := &fakeAPI{
		toonInfo:   carlToonInfo(2100),
		profileErr: errors.New("boom"),
		toonsErr:   errors.New("boom"),
	}
	e, _, _ := newTestEnricher(t, nil)
	app := readyApp(api)
	app.OpponentHistory["carl"] = &history.OpponentRecord{Name: "Carl", Gateway: 30, Wins: 1}

	err := e.EnrichOpponent(context.Background(), app, state.ProfileID{Name: "Carl", Gateway: 30}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, app.Opponent.Toons)
	assert.Empty(t, app.Opponent.MatchupLines)
	assert.Equal(t, "", app.OpponentHistory["carl"].Race)
}

func TestEnrichOpponentBootstrapsHeadToHead(t *testing.T) {
	selfProfile := &bwapi.ScrProfile{GameResults: []bwapi.GameResult{
		{CreateTime: "1700000100", Players: []bwapi.Player{
			{Toon: "Alice", Result: "win", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "protoss"}},
			{Toon: "Carl", Result: "loss", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "zerg"}},
		}},
		{CreateTime: "1700000000", Players: []bwapi.Player{
			{Toon: "Alice", Result: "loss", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "protoss"}},
			{Toon: "Carl", Result: "win", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "zerg"}},
		}},
	}}
	api := &fakeAPI{
		toonInfo:   carlToonInfo(2100),
		profile:    selfProfile,
		profileErr: nil,
	}
	e, _, _ := newTestEnricher(t, nil)
	app := readyApp(api)

	err := e.EnrichOpponent(context.Background(), app, state.ProfileID{Name: "Carl", Gateway: 30}, time.Now())
	require.NoError(t, err)

	rec := app.OpponentHistory["carl"]
	assert.Equal(t, 1, rec.Wins)
	assert.Equal(t, 1, rec.Losses)
	assert.Equal(t, int64(1700000100), rec.LastMatchTS)
}

func TestEnrichOpponentFoldsStoredHeadToHeadWhenProfileUnavailable(t *testing.T) {
	api := &fakeAPI{
		toonInfo:   carlToonInfo(2100),
		profileErr: errors.New("boom"),
		toonsErr:   errors.New("boom"),
	}
	e, _, store := newTestEnricher(t, nil)
	app := readyApp(api)
	key := history.ProfileKey{Name: "Alice", Gateway: 30}
	require.NoError(t, store.UpsertMatch(key, history.StoredMatch{
		Timestamp: 1700000000, Opponent: "Carl", OpponentRace: "Zerg", MainRace: "Protoss", Result: history.OutcomeLoss}))
	require.NoError(t, store.UpsertMatch(key, history.StoredMatch{
		Timestamp: 1700000100, Opponent: "Carl", OpponentRace: "Zerg", MainRace: "Protoss", Result: history.OutcomeWin}))
	require.NoError(t, store.UpsertMatch(key, history.StoredMatch{
		Timestamp: 1700000200, Opponent: "Carl", Result: history.OutcomeOpponentDodged}))
	require.NoError(t, store.UpsertMatch(key, history.StoredMatch{
		Timestamp: 1700000300, Opponent: "Dana", OpponentRace: "Terran", Result: history.OutcomeWin}))

	err := e.EnrichOpponent(context.Background(), app, state.ProfileID{Name: "Carl", Gateway: 30}, time.Now())
	require.NoError(t, err)

	rec := app.OpponentHistory["carl"]
	assert.Equal(t, 1, rec.Wins)
	assert.Equal(t, 1, rec.Losses)
	assert.Equal(t, "Zerg", rec.Race, "race comes from the stored observations")
	assert.Equal(t, int64(1700000100), rec.LastMatchTS, "the dodge does not count as a played game")
}

func TestBootstrapSelfFillsStateAndSeedsEmptyHistory(t *testing.T) {
	info := &bwapi.ToonInfo{
		MatchmakedCurrentSeason: 9,
		Profiles: []bwapi.ProfileEntry{
			{Toon: "Alice", ToonGUID: 1},
			{Toon: "AliceSmurf", ToonGUID: 2},
		},
		MatchmakedStats: []bwapi.MatchmakedStat{
			{Toon: "Alice", ToonGUID: 1, SeasonID: 9, Wins: 30, Losses: 20, Rating: 1900},
			{Toon: "AliceSmurf", ToonGUID: 2, SeasonID: 9, Wins: 5, Losses: 5, Rating: 2200},
		},
	}
	api := &fakeAPI{
		toonInfo: info,
		profile: &bwapi.ScrProfile{GameResults: []bwapi.GameResult{{
			CreateTime: "1700000200",
			Players: []bwapi.Player{
				{Toon: "Alice", Result: "win", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "protoss"}},
				{Toon: "Carl", Result: "loss", Attributes: bwapi.PlayerAttributes{Type: "player", Race: "terran"}},
			},
		}}},
	}
	seeder := &fakeSeeder{matches: []history.StoredMatch{
		{Timestamp: 1700000100, Opponent: "Dana", OpponentRace: "Zerg", MainRace: "Protoss", Result: history.OutcomeLoss},
	}}
	e, cfg, store := newTestEnricher(t, seeder)
	app := readyApp(api)

	err := e.BootstrapSelf(context.Background(), app, true)
	require.NoError(t, err)

	assert.True(t, app.Self.ProfileFetched)
	assert.Equal(t, map[string]bool{"alice": true, "alicesmurf": true}, app.Self.OwnProfiles)
	require.NotNil(t, app.Self.Rating)
	assert.Equal(t, 1900, *app.Self.Rating)
	require.Len(t, app.Self.OtherToons, 1)
	assert.Equal(t, "AliceSmurf", app.Self.OtherToons[0].Toon)
	assert.Equal(t, "Protoss", app.Self.MainRace)
	assert.Equal(t, 1, seeder.calls)

	// Seeded plus fetched: both matches in the bucket.
	matches := store.Matches(history.ProfileKey{Name: "Alice", Gateway: 30})
	assert.Len(t, matches, 2)

	raw, err := os.ReadFile(cfg.RatingOutputPath)
	require.NoError(t, err)
	assert.Equal(t, "1900", string(raw))
}

func TestBootstrapSelfSkipsSeedingWhenHistoryExists(t *testing.T) {
	api := &fakeAPI{toonInfo: carlToonInfo(2100), profile: &bwapi.ScrProfile{}}
	seeder := &fakeSeeder{}
	e, _, store := newTestEnricher(t, seeder)
	app := readyApp(api)
	app.Self.Profile = &state.ProfileID{Name: "Carl", Gateway: 30}
	require.NoError(t, store.UpsertMatch(history.ProfileKey{Name: "Carl", Gateway: 30},
		history.StoredMatch{Timestamp: 5, Opponent: "Dana", Result: history.OutcomeWin}))

	require.NoError(t, e.BootstrapSelf(context.Background(), app, true))
	assert.Zero(t, seeder.calls)
}

func TestBootstrapSelfSurfacesToonInfoError(t *testing.T) {
	api := &fakeAPI{toonInfoErr: errors.New("refused")}
	e, _, _ := newTestEnricher(t, nil)
	app := readyApp(api)

	err := e.BootstrapSelf(context.Background(), app, false)
	require.Error(t, err)
	assert.False(t, app.Self.ProfileFetched)
}

func TestPollSelfRatingOnlyWithoutParserAndWhenDue(t *testing.T) {
	api := &fakeAPI{toonInfo: carlToonInfo(2100), profile: &bwapi.ScrProfile{}}
	e, _, _ := newTestEnricher(t, nil)
	app := readyApp(api)
	app.Self.Profile = &state.ProfileID{Name: "Carl", Gateway: 30}

	// With a parser present the poll is a no-op.
	require.NoError(t, e.PollSelfRating(context.Background(), app, true))
	assert.Nil(t, app.Self.Rating)

	// Without one, a due poll refreshes the rating.
	require.NoError(t, e.PollSelfRating(context.Background(), app, false))
	require.NotNil(t, app.Self.Rating)
	assert.Equal(t, 2100, *app.Self.Rating)

	// Not due again immediately.
	api.toonInfo = carlToonInfo(2300)
	require.NoError(t, e.PollSelfRating(context.Background(), app, false))
	assert.Equal(t, 2100, *app.Self.Rating)
}
