package tracker

import "errors"

var (
	errEmptyToon       = errors.New("download request needs a toon name")
	errDownloadRunning = errors.New("replay download already running")
)
