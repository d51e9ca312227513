// Package tracker is the tick driver: it refreshes the cache reader on a
// cadence, runs detection, enrichment, the self bootstrap, the rating
// retry, and the replay watcher in order, keeps the debug key ring, and
// owns the replay download worker's request/summary surface.
package tracker

import (
	"context"
	"strings"
	"sync"
	"time"

	"bw-companion/internal/cachescan"
	"bw-companion/internal/config"
	"bw-companion/internal/constants"
	"bw-companion/internal/detect"
	"bw-companion/internal/enrich"
	"bw-companion/internal/overlay"
	"bw-companion/internal/replaylib"
	"bw-companion/internal/replaywatch"
	"bw-companion/internal/state"

	"github.com/rs/zerolog"
)

// availabilityProbe is the slice of the replay parser the driver needs;
// satisfied by *screp.Runner.
type availabilityProbe interface {
	Available() bool
}

type Tracker struct {
	logger     zerolog.Logger
	cfg        *config.Config
	reader     *cachescan.Reader
	detector   *detect.Detector
	enricher   *enrich.Enricher
	watcher    *replaywatch.Watcher
	writer     *overlay.Writer
	downloader *replaylib.Downloader
	runner     availabilityProbe
	app        *state.App
	now        func() time.Time

	lastRefresh time.Time
	debugKeys   []cachescan.KeyAge

	// Download request/summary surface, shared with external callers.
	dlMu        sync.Mutex
	dlPending   *replaylib.Request
	dlActive    <-chan replaylib.Summary
	dlSummary   *replaylib.Summary
	dlLastError string
}

func New(
	logger zerolog.Logger,
	cfg *config.Config,
	reader *cachescan.Reader,
	detector *detect.Detector,
	enricher *enrich.Enricher,
	watcher *replaywatch.Watcher,
	writer *overlay.Writer,
	downloader *replaylib.Downloader,
	runner availabilityProbe,
	app *state.App,
) *Tracker {
	watcher.Bootstrap(app)
	return &Tracker{
		logger:     logger.With().Str("component", "tracker").Logger(),
		cfg:        cfg,
		reader:     reader,
		detector:   detector,
		enricher:   enricher,
		watcher:    watcher,
		writer:     writer,
		downloader: downloader,
		runner:     runner,
		app:        app,
		now:        time.Now,
	}
}

// Run drives ticks at the configured cadence until the context is
// cancelled. A slow tick schedules the next one immediately.
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info().Dur("tick_rate", t.cfg.TickRate).Msg("tracker started")
	for {
		start := t.now()
		t.RunTick(ctx)

		sleep := t.cfg.TickRate - t.now().Sub(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("tracker stopped")
			return
		case <-time.After(sleep):
		}
	}
}

// RunTick executes one tick against the owned state.
func (t *Tracker) RunTick(ctx context.Context) {
	app := t.app

	if t.now().Sub(t.lastRefresh) >= t.cfg.RefreshInterval {
		if err := t.reader.Refresh(); err != nil {
			t.logger.Warn().Err(err).Msg("cache refresh failed")
		}
		t.lastRefresh = t.now()
	}

	candidate := t.detector.Tick(app)
	if candidate != nil && app.APIClient != nil {
		if err := t.enricher.EnrichOpponent(ctx, app, candidate.Profile, candidate.ObservedAt); err != nil {
			t.logger.Warn().Err(err).Str("opponent", candidate.Profile.Name).Msg("opponent enrichment failed")
		}
	}

	screpAvailable := t.runner != nil && t.runner.Available()

	if app.Ready() && !app.Self.ProfileFetched && app.APIClient != nil {
		if err := t.enricher.BootstrapSelf(ctx, app, screpAvailable); err != nil {
			t.logger.Warn().Err(err).Msg("self bootstrap failed")
		}
	}

	if app.Ready() && app.Self.ProfileFetched {
		if err := t.enricher.PollSelfRating(ctx, app, screpAvailable); err != nil {
			t.logger.Warn().Err(err).Msg("self rating poll failed")
		}
	}

	if app.Self.Profile != nil {
		t.watcher.RatingRetry(ctx, app)
	}

	t.watcher.Tick(ctx, app)

	if err := t.writer.WriteRating(t.cfg, app); err != nil {
		t.logger.Error().Err(err).Msg("rating overlay write failed")
	}
	if err := t.writer.WriteOpponent(t.cfg, app); err != nil {
		t.logger.Error().Err(err).Msg("opponent overlay write failed")
	}

	t.startPendingDownload(ctx)
	t.pollDownload()
	t.refreshDebugKeys()
}

// RequestDownload queues a replay download job; the next tick starts it.
func (t *Tracker) RequestDownload(req replaylib.Request) error {
	if strings.TrimSpace(req.Toon) == "" {
		return errEmptyToon
	}

	t.dlMu.Lock()
	defer t.dlMu.Unlock()
	if t.dlActive != nil || t.dlPending != nil {
		return errDownloadRunning
	}
	t.dlPending = &req
	t.dlSummary = nil
	t.dlLastError = ""
	return nil
}

// LastDownloadSummary returns the most recent finished job's summary.
func (t *Tracker) LastDownloadSummary() *replaylib.Summary {
	t.dlMu.Lock()
	defer t.dlMu.Unlock()
	return t.dlSummary
}

// DownloadError returns the last failure to start a job, if any.
func (t *Tracker) DownloadError() string {
	t.dlMu.Lock()
	defer t.dlMu.Unlock()
	return t.dlLastError
}

// DebugKeys returns the most recent cache keys seen within the debug
// window, newest first.
func (t *Tracker) DebugKeys() []cachescan.KeyAge {
	return t.debugKeys
}

func (t *Tracker) startPendingDownload(ctx context.Context) {
	t.dlMu.Lock()
	defer t.dlMu.Unlock()
	if t.dlPending == nil || t.dlActive != nil {
		return
	}
	req := *t.dlPending
	t.dlPending = nil

	if t.app.APIClient == nil {
		t.dlLastError = "no API port detected"
		t.logger.Warn().Str("toon", req.Toon).Msg("replay download dropped, no api client")
		return
	}
	t.dlActive = t.downloader.Spawn(ctx, t.app.APIClient, req)
	t.logger.Info().Str("toon", req.Toon).Int("limit", req.Limit).Msg("replay download started")
}

func (t *Tracker) pollDownload() {
	t.dlMu.Lock()
	defer t.dlMu.Unlock()
	if t.dlActive == nil {
		return
	}
	select {
	case summary, ok := <-t.dlActive:
		t.dlActive = nil
		if ok {
			t.dlSummary = &summary
			t.logger.Info().
				Int("saved", summary.Saved).
				Int("skipped_existing", summary.SkippedExisting).
				Int("errors", len(summary.Errors)).
				Msg("replay download finished")
		}
	default:
	}
}

func (t *Tracker) refreshDebugKeys() {
	keys, err := t.reader.RecentKeys(t.cfg.DebugWindowSecs, constants.DebugKeyRingSize)
	if err != nil {
		t.logger.Debug().Err(err).Msg("debug key scan failed")
		return
	}
	t.debugKeys = keys
	if len(keys) > 0 {
		t.logger.Debug().Int("count", len(keys)).Str("newest", keys[0].Key).Msg("recent cache keys")
	}
}
