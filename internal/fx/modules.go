package fx

import (
	"fmt"

	"bw-companion/internal/cachescan"
	"bw-companion/internal/config"
	"bw-companion/internal/database"
	"bw-companion/internal/detect"
	"bw-companion/internal/enrich"
	"bw-companion/internal/history"
	"bw-companion/internal/logger"
	"bw-companion/internal/overlay"
	"bw-companion/internal/replaylib"
	"bw-companion/internal/replaywatch"
	"bw-companion/internal/screp"
	"bw-companion/internal/state"
	"bw-companion/internal/tracker"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// lazyDiskSource defers opening the cache directory: the game creates it
// on first launch, which may happen after this process starts.
type lazyDiskSource struct {
	dir string
	src *cachescan.DiskSource
}

func (l *lazyDiskSource) Entries() ([]cachescan.Entry, error) {
	if l.src == nil {
		return nil, fmt.Errorf("cache directory %s not opened yet", l.dir)
	}
	return l.src.Entries()
}

func (l *lazyDiskSource) Refresh() error {
	if l.src == nil {
		src, err := cachescan.OpenDir(l.dir)
		if err != nil {
			return err
		}
		l.src = src
		return nil
	}
	return l.src.Refresh()
}

func ProvideReader(cfg *config.Config, log zerolog.Logger) *cachescan.Reader {
	source, err := cachescan.OpenDir(cfg.CacheDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache directory not available yet")
		return cachescan.NewReader(&lazyDiskSource{dir: cfg.CacheDir})
	}
	return cachescan.NewReader(source)
}

func ProvideScrepRunner(cfg *config.Config) *screp.Runner {
	return screp.NewRunner(cfg.ScrepCmd)
}

func ProvideOpponentStore(cfg *config.Config) *history.OpponentStore {
	return history.NewOpponentStore(cfg.OpponentHistoryPath)
}

func ProvideProfileStore(cfg *config.Config, log zerolog.Logger) *history.ProfileHistoryStore {
	return history.LoadProfileHistoryStore(cfg.ProfileHistoryPath, log)
}

func ProvideApp(store *history.OpponentStore, log zerolog.Logger) *state.App {
	app := state.NewApp()
	hist, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("opponent history load failed, starting empty")
		hist = history.OpponentHistory{}
	}
	app.OpponentHistory = hist
	return app
}

func ProvideStorage(cfg *config.Config) *replaylib.Storage {
	return replaylib.NewStorage(cfg.ReplayLibraryRoot)
}

func ProvideDownloader(log zerolog.Logger, storage *replaylib.Storage, index *replaylib.Index, runner *screp.Runner) *replaylib.Downloader {
	return replaylib.NewDownloader(log, storage, index, runner)
}

func ProvideSeeder(log zerolog.Logger, index *replaylib.Index, runner *screp.Runner) *replaylib.Seeder {
	return replaylib.NewSeeder(log, index, runner)
}

func ProvideEnricher(
	log zerolog.Logger,
	cfg *config.Config,
	writer *overlay.Writer,
	oppStore *history.OpponentStore,
	profileStore *history.ProfileHistoryStore,
	seeder *replaylib.Seeder,
) *enrich.Enricher {
	return enrich.NewEnricher(log, cfg, writer, oppStore, profileStore, seeder)
}

func ProvideWatcher(
	log zerolog.Logger,
	cfg *config.Config,
	writer *overlay.Writer,
	runner *screp.Runner,
	oppStore *history.OpponentStore,
	profileStore *history.ProfileHistoryStore,
) *replaywatch.Watcher {
	return replaywatch.NewWatcher(log, cfg, writer, runner, oppStore, profileStore)
}

func ProvideTracker(
	log zerolog.Logger,
	cfg *config.Config,
	reader *cachescan.Reader,
	detector *detect.Detector,
	enricher *enrich.Enricher,
	watcher *replaywatch.Watcher,
	writer *overlay.Writer,
	downloader *replaylib.Downloader,
	runner *screp.Runner,
	app *state.App,
) *tracker.Tracker {
	return tracker.New(log, cfg, reader, detector, enricher, watcher, writer, downloader, runner, app)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	// Re-level the root logger once the configured LOG_LEVEL is known.
	fx.Decorate(func(cfg *config.Config) zerolog.Logger {
		return logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	}),
	fx.Provide(database.New),
	// cache + parser
	fx.Provide(ProvideReader),
	fx.Provide(ProvideScrepRunner),
	// stores + state
	fx.Provide(ProvideOpponentStore),
	fx.Provide(ProvideProfileStore),
	fx.Provide(ProvideApp),
	// replay library
	fx.Provide(ProvideStorage),
	fx.Provide(replaylib.NewIndex),
	fx.Provide(ProvideDownloader),
	fx.Provide(ProvideSeeder),
	// pipeline
	fx.Provide(overlay.NewWriter),
	fx.Provide(detect.NewDetector),
	fx.Provide(ProvideEnricher),
	fx.Provide(ProvideWatcher),
	fx.Provide(ProvideTracker),
)
