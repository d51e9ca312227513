package overlay

import (
	"bw-companion/internal/config"
	"bw-companion/internal/state"
)

// WriteRating renders the rating overlay from app state, honoring the
// output toggle.
func (w *Writer) WriteRating(cfg *config.Config, app *state.App) error {
	if !cfg.RatingOutputEnabled {
		return nil
	}
	return w.WriteIfChanged(cfg.RatingOutputPath, RatingText(app.Self.Rating))
}

// WriteOpponent renders the opponent overlay from app state, honoring the
// output toggle.
func (w *Writer) WriteOpponent(cfg *config.Config, app *state.App) error {
	if !cfg.OpponentOutputEnabled {
		return nil
	}
	view := OpponentView{
		Waiting: app.Opponent.Waiting,
		Race:    app.Opponent.Race,
		Rating:  app.Opponent.Rating(),
		Record:  app.OpponentRecord(),
	}
	if app.Opponent.Profile != nil {
		view.Name = app.Opponent.Profile.Name
	}
	return w.WriteIfChanged(cfg.OpponentOutputPath, OpponentText(view))
}
