package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"bw-companion/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const defaultUser = "default"

type Config struct {
	TickRate           time.Duration
	ScanWindowSecs     int64
	DebugWindowSecs    int64
	RefreshInterval    time.Duration
	RatingPollInterval time.Duration
	RatingRetryMax     int
	RatingRetryDelay   time.Duration
	ReplaySettle       time.Duration

	CacheDir       string
	LastReplayPath string
	ScrepCmd       string

	RatingOutputEnabled   bool
	RatingOutputPath      string
	OpponentOutputEnabled bool
	OpponentOutputPath    string

	OpponentHistoryPath string
	ProfileHistoryPath  string

	ReplayLibraryRoot string
	ReplayDBPath      string

	LogLevel string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		TickRate:           getEnvDurationMs("TICK_RATE_MS", constants.DefaultTickRate),
		ScanWindowSecs:     getEnvInt64("SCAN_WINDOW_SECS", constants.DefaultScanWindowSecs),
		DebugWindowSecs:    getEnvInt64("DEBUG_WINDOW_SECS", constants.DefaultDebugWindowSecs),
		RefreshInterval:    getEnvDurationMs("REFRESH_INTERVAL_MS", constants.DefaultRefreshInterval),
		RatingPollInterval: getEnvDurationSecs("RATING_POLL_INTERVAL_SECS", constants.DefaultRatingPollInterval),
		RatingRetryMax:     int(getEnvInt64("RATING_RETRY_MAX", constants.DefaultRatingRetryMax)),
		RatingRetryDelay:   getEnvDurationMs("RATING_RETRY_INTERVAL_MS", constants.DefaultRatingRetryDelay),
		ReplaySettle:       getEnvDurationMs("REPLAY_SETTLE_MS", constants.DefaultReplaySettle),

		CacheDir:       getEnv("CACHE_DIR", defaultCacheDir()),
		LastReplayPath: getEnv("LAST_REPLAY_PATH", filepath.Join(defaultReplayDir(), "LastReplay.rep")),
		ScrepCmd:       getEnv("SCREP_CMD", "screp"),

		RatingOutputEnabled:   getEnvBool("RATING_OUTPUT_ENABLED", true),
		RatingOutputPath:      getEnv("RATING_OUTPUT_PATH", filepath.Join(bundleRoot(), "overlay", "self_rating.txt")),
		OpponentOutputEnabled: getEnvBool("OPPONENT_OUTPUT_ENABLED", true),
		OpponentOutputPath:    getEnv("OPPONENT_OUTPUT_PATH", filepath.Join(bundleRoot(), "overlay", "opponent_info.txt")),

		OpponentHistoryPath: getEnv("OPPONENT_HISTORY_PATH", filepath.Join(bundleRoot(), "history", "opponents.json")),
		ProfileHistoryPath:  getEnv("PROFILE_HISTORY_PATH", filepath.Join(bundleRoot(), "history", "profile_history.json")),

		ReplayLibraryRoot: getEnv("REPLAY_LIBRARY_ROOT", defaultReplayDir()),
		ReplayDBPath:      getEnv("REPLAY_DB_PATH", filepath.Join(bundleRoot(), "history", "replay_index.db")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	logger.Info().
		Str("cache_dir", cfg.CacheDir).
		Str("last_replay_path", cfg.LastReplayPath).
		Str("screp_cmd", cfg.ScrepCmd).
		Dur("tick_rate", cfg.TickRate).
		Int64("scan_window_secs", cfg.ScanWindowSecs).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDurationMs(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return fallback
}

func getEnvDurationSecs(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return fallback
}

// The game's embedded web view writes its cache under the Windows profile;
// on other platforms the tool assumes the Wine prefix layout.
func defaultCacheDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(windowsUserProfileDir(), "AppData", "Local", "Temp", "blizzard_browser_cache")
	}
	return filepath.Join(wineUserRoot(), "AppData", "Local", "Temp", "blizzard_browser_cache")
}

func defaultReplayDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(windowsUserProfileDir(), "Documents", "StarCraft", "Maps", "Replays")
	}
	return filepath.Join(wineUserRoot(), "Documents", "StarCraft", "Maps", "Replays")
}

func bundleRoot() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func windowsUserProfileDir() string {
	if v := os.Getenv("USERPROFILE"); v != "" {
		return v
	}
	return "."
}

func wineUserRoot() string {
	home := os.Getenv("HOME")
	if home == "" {
		home = "."
	}
	user := os.Getenv("USER")
	if user == "" {
		user = defaultUser
	}
	return wineUserRootFrom(home, user)
}

func wineUserRootFrom(home, user string) string {
	return filepath.Join(home, ".wine-battlenet", "drive_c", "users", user)
}

var Module = fx.Provide(Load)
