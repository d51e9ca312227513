// Package state holds the non-persistent observed state owned by the tick
// loop. Nothing here is saved to disk; the persistent stores live in the
// history package.
package state

import (
	"strings"
	"time"

	"bw-companion/internal/bwapi"
	"bw-companion/internal/history"
)

// ProfileID identifies a toon on a gateway. Names compare
// case-insensitively, gateways exactly.
type ProfileID struct {
	Name    string
	Gateway uint16
}

// Equal compares two identities under the profile equality rule.
func (p ProfileID) Equal(other ProfileID) bool {
	return strings.EqualFold(p.Name, other.Name) && p.Gateway == other.Gateway
}

// Key returns the lowercased map key for the identity's name.
func (p ProfileID) Key() string {
	return strings.ToLower(p.Name)
}

// HistoryKey returns the identity's profile-history bucket key.
func (p ProfileID) HistoryKey() history.ProfileKey {
	return history.ProfileKey{Name: p.Name, Gateway: p.Gateway}
}

// SelfState tracks the local player.
type SelfState struct {
	Profile        *ProfileID
	Rating         *int
	ProfileFetched bool
	OwnProfiles    map[string]bool
	MainRace       string
	MatchupLines   []string
	Results        []bool
	SelfDodged     int
	OpponentDodged int
	OtherToons     []bwapi.ToonRating
	LastRatingPoll time.Time
}

// IsOwnProfile reports whether name belongs to the local account.
func (s *SelfState) IsOwnProfile(name string) bool {
	return s.OwnProfiles[strings.ToLower(name)]
}

// OpponentState tracks the currently displayed opponent.
type OpponentState struct {
	Profile      *ProfileID
	Race         string
	Toons        []bwapi.ToonRating
	MatchupLines []string

	LastIdentity   *ProfileID
	LastObservedTS time.Time

	// Waiting is true between a replay-file change and the next opponent
	// identity.
	Waiting bool
}

// Rating returns the opponent's own toon rating from the toons summary.
func (o *OpponentState) Rating() *int {
	if o.Profile == nil {
		return nil
	}
	for _, t := range o.Toons {
		if strings.EqualFold(t.Toon, o.Profile.Name) {
			rating := t.Rating
			return &rating
		}
	}
	return nil
}

// Reset clears the opponent display while keeping the observation guards.
func (o *OpponentState) Reset() {
	o.Profile = nil
	o.Race = ""
	o.Toons = nil
	o.MatchupLines = nil
	o.Waiting = false
}

// DodgeCandidate is a short replay awaiting confirmation against the
// profile's game results.
type DodgeCandidate struct {
	Opponent        string
	ApproxTimestamp int64
	Outcome         history.MatchOutcome
	Classified      bool
}

// ReplayWatchState tracks the last-replay file between ticks.
type ReplayWatchState struct {
	LastMtime          time.Time
	LastProcessedMtime time.Time
	ChangedAt          time.Time
	LastDodgeCandidate *DodgeCandidate
}

// RatingRetryState is the bounded retry after a replay-triggered rating
// refresh came back unchanged.
type RatingRetryState struct {
	Retries  int
	NextAt   time.Time
	Baseline *int
}

// Active reports whether a retry is pending.
func (r *RatingRetryState) Active() bool {
	return r.Retries > 0
}

// Reset abandons the retry.
func (r *RatingRetryState) Reset() {
	r.Retries = 0
	r.NextAt = time.Time{}
	r.Baseline = nil
}

// App is the full observed state of the tick loop.
type App struct {
	Port         uint16
	APIClient    bwapi.API
	LastPortUsed uint16

	Self     SelfState
	Opponent OpponentState

	ReplayWatch ReplayWatchState
	RatingRetry RatingRetryState

	OpponentHistory history.OpponentHistory
}

func NewApp() *App {
	return &App{
		Self:            SelfState{OwnProfiles: make(map[string]bool)},
		OpponentHistory: history.OpponentHistory{},
	}
}

// Ready reports whether detection has produced a port and a self identity.
func (a *App) Ready() bool {
	return a.Port != 0 && a.Self.Profile != nil
}

// ApplySelfSwitch installs a new self identity and clears everything
// derived from the previous one.
func (a *App) ApplySelfSwitch(profile ProfileID) {
	a.Self.Profile = &profile
	a.Self.Rating = nil
	a.Self.ProfileFetched = false
	a.Self.MainRace = ""
	a.Self.MatchupLines = nil
	a.Self.Results = nil
	a.Self.SelfDodged = 0
	a.Self.OpponentDodged = 0
	a.Self.OtherToons = nil
	a.Self.LastRatingPoll = time.Time{}
	a.RatingRetry.Reset()

	a.Opponent.Reset()
	a.Opponent.LastIdentity = nil
	a.Opponent.LastObservedTS = time.Time{}
}

// OpponentRecord returns the stored head-to-head record for the current
// opponent, if any.
func (a *App) OpponentRecord() *history.OpponentRecord {
	if a.Opponent.Profile == nil {
		return nil
	}
	rec, ok := a.OpponentHistory.Lookup(a.Opponent.Profile.Name)
	if !ok {
		return nil
	}
	return rec
}
