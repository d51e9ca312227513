package constants

import "time"

const (
	DefaultTickRate           = 250 * time.Millisecond
	DefaultScanWindowSecs     = 10
	DefaultDebugWindowSecs    = 10
	DefaultRefreshInterval    = 1 * time.Second
	DefaultRatingPollInterval = 60 * time.Second
	DefaultReplaySettle       = 500 * time.Millisecond
	DefaultRatingRetryMax     = 3
	DefaultRatingRetryDelay   = 500 * time.Millisecond
)

const (
	ExternalAPITimeout = 10 * time.Second
	DownloadTimeout    = 30 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

const (
	RatingMinGames    = 5
	MaxStoredMatches  = 500
	DisplayedMatches  = 100
	DebugKeyRingSize  = 20
	DodgeMaxDurationS = 60
	DodgeMatchWindowS = 300
)

const (
	LibraryMinReplayS  = 120
	MaxDownloadBatch   = 20
	DownloadConcurrent = 2
	LibrarySeedMax     = 50
)

const (
	DBMaxOpenConns    = 4
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 30 * time.Minute
	DBMaxIdleTime     = 5 * time.Minute
)
