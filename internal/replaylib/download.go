package replaylib

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bw-companion/internal/bwapi"
	"bw-companion/internal/constants"
	"bw-companion/internal/screp"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

// OverviewRunner decodes replay files; satisfied by *screp.Runner.
type OverviewRunner interface {
	Available() bool
	Overview(ctx context.Context, replayPath string) (string, error)
}

// Request asks the downloader to fetch a profile's recent 1v1 replays
// into the library. Alias overrides the library folder name, Matchup
// optionally restricts by race pair ("PvZ"), Limit caps the batch.
type Request struct {
	Toon    string
	Gateway uint16
	Matchup string
	Alias   string
	Limit   int
}

// Summary is the one-shot result of a download job.
type Summary struct {
	Requested       int
	Attempted       int
	Saved           int
	SkippedExisting int
	FilteredShort   int
	Errors          []string
	SavedPaths      []string
}

var (
	errAlreadyIndexed = errors.New("replay already downloaded")
	errTooShort       = errors.New("replay shorter than library minimum")
)

// Downloader runs replay download jobs against the game's web API.
type Downloader struct {
	logger  zerolog.Logger
	storage *Storage
	index   *Index
	runner  OverviewRunner
	http    *fasthttp.Client
	now     func() time.Time
}

func NewDownloader(logger zerolog.Logger, storage *Storage, index *Index, runner OverviewRunner) *Downloader {
	return &Downloader{
		logger:  logger.With().Str("component", "replaylib").Logger(),
		storage: storage,
		index:   index,
		runner:  runner,
		http:    &fasthttp.Client{},
		now:     time.Now,
	}
}

// Spawn starts a download job on its own goroutine and returns the
// channel its summary will be delivered on. The channel is buffered so
// the job never blocks on a slow consumer.
func (d *Downloader) Spawn(ctx context.Context, api bwapi.API, req Request) <-chan Summary {
	ch := make(chan Summary, 1)
	go func() {
		defer close(ch)
		ch <- d.run(ctx, api, req)
	}()
	return ch
}

func (d *Downloader) run(ctx context.Context, api bwapi.API, req Request) Summary {
	jobLogger := d.logger.With().Str("job_id", uuid.NewString()).Str("toon", req.Toon).Logger()
	var summary Summary

	if d.runner == nil || !d.runner.Available() {
		summary.Errors = append(summary.Errors, "replay parser unavailable")
		return summary
	}
	if err := d.storage.EnsureBaseDirs(); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("ensure replay directories: %v", err))
		return summary
	}

	profile, err := api.GetScrProfile(ctx, req.Toon, req.Gateway)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("load profile for %s: %v", req.Toon, err))
		return summary
	}

	candidates := make([]bwapi.ProfileReplay, len(profile.Replays))
	copy(candidates, profile.Replays)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreateTime > candidates[j].CreateTime
	})

	filter, hasFilter := ParseMatchupFilter(req.Matchup)
	limit := req.Limit
	if limit <= 0 || limit > constants.MaxDownloadBatch {
		limit = constants.MaxDownloadBatch
	}

	var selected []bwapi.ProfileReplay
	for _, replay := range candidates {
		if !IsOneVOne(replay) {
			continue
		}
		if hasFilter && !filter.Matches(replay.Attributes.ReplayPlayerRaces) {
			continue
		}
		selected = append(selected, replay)
		if len(selected) == limit {
			break
		}
	}

	summary.Requested = len(selected)
	if summary.Requested == 0 {
		return summary
	}

	profileLabel := strings.TrimSpace(req.Alias)
	if profileLabel == "" {
		profileLabel = req.Toon
	}
	profileLabel = SanitizeComponent(profileLabel)
	matchupLabel := strings.TrimSpace(req.Matchup)
	if matchupLabel == "" {
		matchupLabel = "All"
	}
	matchupLabel = SanitizeComponent(matchupLabel)

	dir, err := d.storage.EnsureMatchupDir(profileLabel, matchupLabel)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("prepare replay directory for %s: %v", profileLabel, err))
		return summary
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.DownloadConcurrent)

	for _, replay := range selected {
		replay := replay
		mu.Lock()
		summary.Attempted++
		mu.Unlock()

		g.Go(func() error {
			path, err := d.processReplay(gctx, api, jobLogger, &mu, replay, dir, profileLabel, matchupLabel, req.Toon)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Saved++
				summary.SavedPaths = append(summary.SavedPaths, path)
			case errors.Is(err, errAlreadyIndexed):
				summary.SkippedExisting++
			case errors.Is(err, errTooShort):
				summary.FilteredShort++
			default:
				summary.Errors = append(summary.Errors, err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	jobLogger.Info().
		Int("requested", summary.Requested).
		Int("saved", summary.Saved).
		Int("skipped_existing", summary.SkippedExisting).
		Int("filtered_short", summary.FilteredShort).
		Int("errors", len(summary.Errors)).
		Msg("replay download job finished")
	return summary
}

// processReplay downloads one replay to a temp file, gates it through
// the parser, and finalizes it under its library name. fsMu serializes
// collision checks, renames, and index inserts across workers.
func (d *Downloader) processReplay(
	ctx context.Context,
	api bwapi.API,
	logger zerolog.Logger,
	fsMu *sync.Mutex,
	replay bwapi.ProfileReplay,
	dir, profileLabel, matchupLabel, toon string,
) (string, error) {
	detail, err := api.GetMatchmakerPlayerInfo(ctx, replay.Link)
	if err != nil {
		return "", fmt.Errorf("matchmaker detail for %s: %w", replay.Link, err)
	}

	var best *bwapi.MatchReplay
	for i := range detail.Replays {
		if best == nil || detail.Replays[i].CreateTime > best.CreateTime {
			best = &detail.Replays[i]
		}
	}
	if best == nil {
		return "", fmt.Errorf("no replay URLs in matchmaker detail for %s", replay.Link)
	}

	identifier := best.MD5
	if identifier == "" {
		identifier = replay.Attributes.GameID
	}
	if identifier == "" {
		identifier = replay.Link
	}

	exists, err := d.index.Has(ctx, identifier)
	if err != nil {
		return "", err
	}
	if exists {
		return "", errAlreadyIndexed
	}
	if strings.TrimSpace(best.URL) == "" {
		return "", fmt.Errorf("empty replay url for %s", replay.Link)
	}

	tmpPath := filepath.Join(dir, ".tmp-"+truncateIdentifier(identifier)+".rep")
	if err := d.downloadToFile(best.URL, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	overview, err := d.runner.Overview(ctx, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("parse downloaded replay: %w", err)
	}
	if duration, ok := screp.ParseDurationSeconds(overview); ok && duration <= constants.LibraryMinReplayS {
		os.Remove(tmpPath)
		return "", errTooShort
	}

	mainName, mainRace, oppName, oppRace, ok := extractPlayers(overview, toon)
	if !ok {
		os.Remove(tmpPath)
		return "", fmt.Errorf("no players parsed from replay %s", replay.Link)
	}

	prefix := DatePrefix(best.CreateTime)
	if prefix == "" {
		prefix = DatePrefix(replay.CreateTime)
	}
	fileName := BuildFilename(prefix, mainName, mainRace, oppName, oppRace)

	fsMu.Lock()
	defer fsMu.Unlock()

	finalPath := filepath.Join(dir, fileName)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(finalPath); os.IsNotExist(err) {
			break
		}
		alt := fmt.Sprintf("%s-%d.rep", strings.TrimSuffix(fileName, ".rep"), counter)
		finalPath = filepath.Join(dir, alt)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalize replay: %w", err)
	}

	if err := d.index.Record(ctx, IndexEntry{
		Identifier: identifier,
		Profile:    profileLabel,
		Matchup:    matchupLabel,
		Path:       finalPath,
		SavedAt:    d.now().Unix(),
	}); err != nil {
		return "", err
	}

	logger.Debug().Str("path", finalPath).Msg("replay saved")
	return finalPath, nil
}

func (d *Downloader) downloadToFile(url, path string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := d.http.DoDeadline(req, resp, d.now().Add(constants.DownloadTimeout)); err != nil {
		return fmt.Errorf("download replay %s: %w", url, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("download replay %s: unexpected status %d", url, resp.StatusCode())
	}
	if err := os.WriteFile(path, resp.Body(), 0o644); err != nil {
		return fmt.Errorf("write replay to %s: %w", path, err)
	}
	return nil
}

// extractPlayers picks the target toon and its opponent out of a parsed
// overview, falling back to the first two distinct players when the
// target is absent.
func extractPlayers(overview, targetToon string) (mainName, mainRace, oppName, oppRace string, ok bool) {
	ov := screp.ParseOverview(overview)

	seen := make(map[string]struct{})
	type entry struct{ name, race string }
	var ordered []entry
	for _, p := range ov.Players {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		raceLabel := p.Race
		if raceLabel == "" {
			raceLabel = "Unknown"
		}
		ordered = append(ordered, entry{name: name, race: raceLabel})
	}
	if len(ordered) == 0 {
		return "", "", "", "", false
	}

	var main, opp *entry
	for i := range ordered {
		if strings.EqualFold(ordered[i].name, targetToon) {
			main = &ordered[i]
		} else if opp == nil {
			opp = &ordered[i]
		}
	}
	if main != nil {
		if opp == nil {
			return main.name, main.race, "Opponent", "Unknown", true
		}
		return main.name, main.race, opp.name, opp.race, true
	}
	if len(ordered) >= 2 {
		return ordered[0].name, ordered[0].race, ordered[1].name, ordered[1].race, true
	}
	return "", "", "", "", false
}

func truncateIdentifier(id string) string {
	if len(id) > 16 {
		id = id[:16]
	}
	return SanitizeComponent(id)
}
