// Package overlay renders the plain-text files consumed by streaming
// overlay sources. Files are only rewritten when their content changes.
package overlay

import (
	"fmt"
	"strconv"

	"bw-companion/internal/atomicwrite"
	"bw-companion/internal/history"
	"bw-companion/internal/race"

	"github.com/rs/zerolog"
)

const waitingText = "Waiting for opponent..."

// Writer caches the last text written per path so unchanged overlays never
// touch the filesystem.
type Writer struct {
	logger   zerolog.Logger
	lastText map[string]string
}

func NewWriter(logger zerolog.Logger) *Writer {
	return &Writer{
		logger:   logger.With().Str("component", "overlay").Logger(),
		lastText: make(map[string]string),
	}
}

// WriteIfChanged replaces the file at path when text differs from the last
// write to that path.
func (w *Writer) WriteIfChanged(path, text string) error {
	if last, ok := w.lastText[path]; ok && last == text {
		return nil
	}
	if err := atomicwrite.WriteFile(path, []byte(text)); err != nil {
		return fmt.Errorf("write overlay: %w", err)
	}
	w.lastText[path] = text
	w.logger.Debug().Str("path", path).Msg("overlay updated")
	return nil
}

// RatingText renders the rating overlay content.
func RatingText(rating *int) string {
	if rating == nil {
		return "N/A"
	}
	return strconv.Itoa(*rating)
}

// OpponentView is the state the opponent overlay renders from.
type OpponentView struct {
	Waiting bool
	Name    string
	Race    string
	Rating  *int
	Record  *history.OpponentRecord
}

// OpponentText renders the opponent overlay content. While waiting for an
// opponent, or before one is known, a placeholder line is shown.
func OpponentText(view OpponentView) string {
	if view.Waiting || view.Name == "" {
		return waitingText
	}
	text := fmt.Sprintf("%s • %s • %s", view.Name, race.DisplayLabel(view.Race), RatingText(view.Rating))
	if rec := view.Record; rec != nil && rec.Wins+rec.Losses > 0 {
		text += fmt.Sprintf(" • W-L %d-%d", rec.Wins, rec.Losses)
	}
	return text
}
