package replaylib

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bw-companion/internal/bwapi"
	"bw-companion/internal/database"
	"bw-companion/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longOverview = `Replay overview
Length: 10:00
Winner: Alice

Team  R  APM  EAPM  Start  Name
1     P  120  100   10     Alice
2     Z  140  110   12     Bob
`

const shortOverview = `Replay overview
Length: 1:30
Winner: Alice

Team  R  APM  EAPM  Start  Name
1     P  120  100   10     Alice
2     Z  140  110   12     Bob
`

type fakeRunner struct {
	available bool
}

func (r *fakeRunner) Available() bool { return r.available }

func (r *fakeRunner) Overview(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.Contains(string(data), "SHORT") {
		return shortOverview, nil
	}
	return longOverview, nil
}

type fakeAPI struct {
	profile *bwapi.ScrProfile
	details map[string]*bwapi.MatchmakerPlayerInfo
}

func (f *fakeAPI) Port() uint16 { return 1234 }

func (f *fakeAPI) GetToonInfo(context.Context, string, uint16) (*bwapi.ToonInfo, error) {
	return nil, nil
}

func (f *fakeAPI) GetMmGameLoading(context.Context, string, uint16) (*bwapi.MmGameLoading, error) {
	return nil, nil
}

func (f *fakeAPI) GetScrProfile(context.Context, string, uint16) (*bwapi.ScrProfile, error) {
	return f.profile, nil
}

func (f *fakeAPI) GetMatchmakerPlayerInfo(_ context.Context, matchID string) (*bwapi.MatchmakerPlayerInfo, error) {
	return f.details[matchID], nil
}

func (f *fakeAPI) OpponentToonsSummary(context.Context, string, uint16) ([]bwapi.ToonRating, error) {
	return nil, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, logger.New()))
	return NewIndex(db, logger.New())
}

func oneVOneReplay(link, gameID string, createTime int64) bwapi.ProfileReplay {
	return bwapi.ProfileReplay{
		Link:       link,
		CreateTime: createTime,
		Attributes: bwapi.ReplayAttributes{
			GameID:            gameID,
			ReplayPlayerNames: "Alice,Bob",
			ReplayPlayerRaces: "Protoss,Zerg",
			ReplayPlayerTypes: "1,1",
		},
	}
}

func newReplayServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rep/long", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("REPLAYDATA-LONG"))
	})
	mux.HandleFunc("/rep/short", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("REPLAYDATA-SHORT"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloaderSavesFiltersAndDedupes(t *testing.T) {
	srv := newReplayServer(t)
	root := t.TempDir()
	storage := NewStorage(root)
	index := newTestIndex(t)
	d := NewDownloader(logger.New(), storage, index, &fakeRunner{available: true})

	longReplay := oneVOneReplay("match-1", "game-1", 1700000300)
	shortReplay := oneVOneReplay("match-2", "game-2", 1700000200)
	teamGame := bwapi.ProfileReplay{
		Link:       "match-3",
		CreateTime: 1700000100,
		Attributes: bwapi.ReplayAttributes{
			ReplayPlayerNames: "Alice,Bob,Carl",
			ReplayPlayerRaces: "Protoss,Zerg,Terran",
			ReplayPlayerTypes: "1,1,1",
		},
	}
	api := &fakeAPI{
		profile: &bwapi.ScrProfile{Replays: []bwapi.ProfileReplay{longReplay, shortReplay, teamGame}},
		details: map[string]*bwapi.MatchmakerPlayerInfo{
			"match-1": {Replays: []bwapi.MatchReplay{
				{URL: srv.URL + "/rep/long", MD5: "md5-long", CreateTime: 1700000000},
			}},
			"match-2": {Replays: []bwapi.MatchReplay{
				{URL: srv.URL + "/rep/short", MD5: "md5-short", CreateTime: 1700000000},
			}},
		},
	}

	summary := <-d.Spawn(context.Background(), api, Request{Toon: "Alice", Gateway: 10, Limit: 10})

	assert.Equal(t, 2, summary.Requested)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 1, summary.Saved)
	assert.Equal(t, 1, summary.FilteredShort)
	assert.Empty(t, summary.Errors)

	require.Len(t, summary.SavedPaths, 1)
	saved := summary.SavedPaths[0]
	assert.Equal(t, filepath.Join(root, "bwtools", "Alice", "All", "2023-11-14_Alice(P)_vs_Bob(Z).rep"), saved)
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "REPLAYDATA-LONG", string(data))

	exists, err := index.Has(context.Background(), "md5-long")
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := os.ReadDir(filepath.Dir(saved))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	rerun := <-d.Spawn(context.Background(), api, Request{Toon: "Alice", Gateway: 10, Limit: 10})
	assert.Equal(t, 1, rerun.SkippedExisting)
	assert.Equal(t, 0, rerun.Saved)
	assert.Equal(t, 1, rerun.FilteredShort)
}

func TestDownloaderResolvesFilenameCollision(t *testing.T) {
	srv := newReplayServer(t)
	root := t.TempDir()
	storage := NewStorage(root)
	index := newTestIndex(t)
	d := NewDownloader(logger.New(), storage, index, &fakeRunner{available: true})

	detail := func(md5 string) *bwapi.MatchmakerPlayerInfo {
		return &bwapi.MatchmakerPlayerInfo{Replays: []bwapi.MatchReplay{
			{URL: srv.URL + "/rep/long", MD5: md5, CreateTime: 1700000000},
		}}
	}

	first := &fakeAPI{
		profile: &bwapi.ScrProfile{Replays: []bwapi.ProfileReplay{oneVOneReplay("match-1", "", 1700000300)}},
		details: map[string]*bwapi.MatchmakerPlayerInfo{"match-1": detail("md5-a")},
	}
	second := &fakeAPI{
		profile: &bwapi.ScrProfile{Replays: []bwapi.ProfileReplay{oneVOneReplay("match-2", "", 1700000400)}},
		details: map[string]*bwapi.MatchmakerPlayerInfo{"match-2": detail("md5-b")},
	}

	s1 := <-d.Spawn(context.Background(), first, Request{Toon: "Alice", Limit: 5})
	require.Equal(t, 1, s1.Saved)
	s2 := <-d.Spawn(context.Background(), second, Request{Toon: "Alice", Limit: 5})
	require.Equal(t, 1, s2.Saved)

	dir := filepath.Join(root, "bwtools", "Alice", "All")
	assert.FileExists(t, filepath.Join(dir, "2023-11-14_Alice(P)_vs_Bob(Z).rep"))
	assert.FileExists(t, filepath.Join(dir, "2023-11-14_Alice(P)_vs_Bob(Z)-1.rep"))
}

func TestDownloaderMatchupFilterAndFolders(t *testing.T) {
	srv := newReplayServer(t)
	root := t.TempDir()
	storage := NewStorage(root)
	index := newTestIndex(t)
	d := NewDownloader(logger.New(), storage, index, &fakeRunner{available: true})

	pvz := oneVOneReplay("match-1", "", 1700000300)
	tvz := oneVOneReplay("match-2", "", 1700000200)
	tvz.Attributes.ReplayPlayerRaces = "Terran,Zerg"
	api := &fakeAPI{
		profile: &bwapi.ScrProfile{Replays: []bwapi.ProfileReplay{pvz, tvz}},
		details: map[string]*bwapi.MatchmakerPlayerInfo{
			"match-1": {Replays: []bwapi.MatchReplay{
				{URL: srv.URL + "/rep/long", MD5: "md5-pvz", CreateTime: 1700000000},
			}},
		},
	}

	summary := <-d.Spawn(context.Background(), api, Request{
		Toon: "Alice", Matchup: "PvZ", Alias: "Smurf", Limit: 5,
	})

	assert.Equal(t, 1, summary.Requested)
	assert.Equal(t, 1, summary.Saved)
	require.Len(t, summary.SavedPaths, 1)
	assert.Equal(t,
		filepath.Join(root, "bwtools", "Smurf", "PvZ", "2023-11-14_Alice(P)_vs_Bob(Z).rep"),
		summary.SavedPaths[0])
}

func TestDownloaderReportsParserUnavailable(t *testing.T) {
	root := t.TempDir()
	d := NewDownloader(logger.New(), NewStorage(root), newTestIndex(t), &fakeRunner{available: false})

	summary := <-d.Spawn(context.Background(), &fakeAPI{}, Request{Toon: "Alice"})

	assert.Equal(t, 0, summary.Saved)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "parser unavailable")
}
