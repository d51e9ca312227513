// Package detect turns cache observations into state transitions: port
// discovery, self bootstrap, API client setup, self switches, and opponent
// candidates.
package detect

import (
	"time"

	"bw-companion/internal/bwapi"
	"bw-companion/internal/cachescan"
	"bw-companion/internal/config"
	"bw-companion/internal/overlay"
	"bw-companion/internal/state"

	"github.com/rs/zerolog"
)

// Candidate is an opponent identity accepted for enrichment.
type Candidate struct {
	Profile    state.ProfileID
	ObservedAt time.Time
}

// outcome is the per-tick observation bundle, computed before any of it is
// applied to state.
type outcome struct {
	port              uint16
	selfBootstrap     *state.ProfileID
	selfSwitch        *state.ProfileID
	initClient        bool
	opponentCandidate *Candidate
	observedSameAt    time.Time
}

type Detector struct {
	logger    zerolog.Logger
	cfg       *config.Config
	reader    *cachescan.Reader
	writer    *overlay.Writer
	newClient func(port uint16) bwapi.API
}

func NewDetector(logger zerolog.Logger, cfg *config.Config, reader *cachescan.Reader, writer *overlay.Writer) *Detector {
	return &Detector{
		logger:    logger.With().Str("component", "detect").Logger(),
		cfg:       cfg,
		reader:    reader,
		writer:    writer,
		newClient: func(port uint16) bwapi.API { return bwapi.NewClient(port) },
	}
}

// Tick computes this tick's observations and applies them to app. When an
// opponent candidate is accepted it is returned for enrichment.
func (d *Detector) Tick(app *state.App) *Candidate {
	out := d.observe(app)
	d.apply(app, out)
	return out.opponentCandidate
}

func (d *Detector) observe(app *state.App) outcome {
	var out outcome
	window := d.cfg.ScanWindowSecs

	if app.Port == 0 {
		port, ok, err := d.reader.ParseForPort(window)
		if err != nil {
			d.logger.Debug().Err(err).Msg("port scan failed")
		} else if ok {
			out.port = port
		}
	}

	port := app.Port
	if port == 0 {
		port = out.port
	}

	if port != 0 && app.Self.Profile == nil {
		profile, ok, err := d.reader.LatestSelfProfile(window)
		if err != nil {
			d.logger.Debug().Err(err).Msg("self profile scan failed")
		} else if ok {
			out.selfBootstrap = &state.ProfileID{Name: profile.Name, Gateway: profile.Gateway}
		}
	}

	if port != 0 && (app.APIClient == nil || app.LastPortUsed != port) {
		out.initClient = true
	}

	if app.Self.Profile != nil {
		out.selfSwitch = d.observeSelfSwitch(app, window)
		if out.selfSwitch == nil {
			out.opponentCandidate, out.observedSameAt = d.observeOpponent(app, window)
		}
	}
	return out
}

// observeSelfSwitch reports a new self identity: an owned profile seen in
// matchmaking, or a changed toon-info identity.
func (d *Detector) observeSelfSwitch(app *state.App, window int64) *state.ProfileID {
	current := *app.Self.Profile

	mm, ok, err := d.reader.LatestMMGameLoadingProfile(window)
	if err != nil {
		d.logger.Debug().Err(err).Msg("mm game loading scan failed")
	} else if ok && app.Self.IsOwnProfile(mm.Name) {
		id := state.ProfileID{Name: mm.Name, Gateway: mm.Gateway}
		if !id.Equal(current) {
			return &id
		}
	}

	self, ok, err := d.reader.LatestSelfProfile(window)
	if err != nil {
		d.logger.Debug().Err(err).Msg("self profile scan failed")
	} else if ok {
		id := state.ProfileID{Name: self.Name, Gateway: self.Gateway}
		if !id.Equal(current) {
			return &id
		}
	}
	return nil
}

// observeOpponent evaluates the newest opponent candidate. The second
// return carries the observation timestamp when the identity matches the
// current opponent and only the guard timestamp should advance.
func (d *Detector) observeOpponent(app *state.App, window int64) (*Candidate, time.Time) {
	profile, observedAt, ok, err := d.reader.LatestOpponentProfile(app.Self.Profile.Name, window)
	if err != nil {
		d.logger.Debug().Err(err).Msg("opponent scan failed")
		return nil, time.Time{}
	}
	if !ok || app.Self.IsOwnProfile(profile.Name) {
		return nil, time.Time{}
	}
	if !app.Opponent.LastObservedTS.IsZero() && !observedAt.After(app.Opponent.LastObservedTS) {
		return nil, time.Time{}
	}

	id := state.ProfileID{Name: profile.Name, Gateway: profile.Gateway}
	if app.Opponent.LastIdentity != nil && id.Equal(*app.Opponent.LastIdentity) {
		return nil, observedAt
	}
	return &Candidate{Profile: id, ObservedAt: observedAt}, time.Time{}
}

func (d *Detector) apply(app *state.App, out outcome) {
	if out.port != 0 {
		app.Port = out.port
		d.logger.Info().Uint16("port", out.port).Msg("api port discovered")
	}

	if out.initClient && app.Port != 0 {
		app.APIClient = d.newClient(app.Port)
		app.LastPortUsed = app.Port
		d.logger.Info().Uint16("port", app.Port).Msg("api client initialized")
	}

	if out.selfBootstrap != nil {
		app.Self.Profile = out.selfBootstrap
		d.logger.Info().
			Str("name", out.selfBootstrap.Name).
			Uint16("gateway", out.selfBootstrap.Gateway).
			Msg("self profile detected")
	}

	if out.selfSwitch != nil {
		d.logger.Info().
			Str("name", out.selfSwitch.Name).
			Uint16("gateway", out.selfSwitch.Gateway).
			Msg("self profile switched")
		app.ApplySelfSwitch(*out.selfSwitch)
		if err := d.writer.WriteRating(d.cfg, app); err != nil {
			d.logger.Error().Err(err).Msg("rating overlay write failed")
		}
		return
	}

	if !out.observedSameAt.IsZero() {
		app.Opponent.LastObservedTS = out.observedSameAt
		if app.Opponent.Waiting && app.Opponent.Profile != nil {
			app.Opponent.Waiting = false
			if err := d.writer.WriteOpponent(d.cfg, app); err != nil {
				d.logger.Error().Err(err).Msg("opponent overlay write failed")
			}
		}
	}
}
