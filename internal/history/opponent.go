// Package history owns the two persistent stores: the per-opponent
// head-to-head records and the per-profile rolling match log. Both are
// pretty-printed JSON documents replaced atomically on every mutation.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"bw-companion/internal/atomicwrite"
	"bw-companion/internal/race"
)

// OpponentRecord is one head-to-head record keyed by lowercased opponent
// name. PreviousRating carries the value CurrentRating held immediately
// before the last refresh; it is absent when no prior sample existed.
type OpponentRecord struct {
	Name           string `json:"name"`
	Gateway        uint16 `json:"gateway"`
	Race           string `json:"race,omitempty"`
	CurrentRating  *int   `json:"current_rating,omitempty"`
	PreviousRating *int   `json:"previous_rating,omitempty"`
	Wins           int    `json:"wins"`
	Losses         int    `json:"losses"`
	LastMatchTS    int64  `json:"last_match_ts,omitempty"`
}

// ApplyRaceObservation updates the race under the sticky-Random policy: an
// unset race accepts anything, a fixed race is only replaced by Random.
func (r *OpponentRecord) ApplyRaceObservation(incoming string) {
	if incoming == "" {
		return
	}
	if race.ShouldReplace(r.Race, incoming) {
		r.Race = race.Normalize(incoming)
	}
}

// SetRaceIfUnknown fills the race only when no value is present.
func (r *OpponentRecord) SetRaceIfUnknown(incoming string) {
	if r.Race == "" && incoming != "" {
		r.Race = race.Normalize(incoming)
	}
}

// AdvanceLastMatch moves LastMatchTS forward, never backward.
func (r *OpponentRecord) AdvanceLastMatch(ts int64) {
	if ts > r.LastMatchTS {
		r.LastMatchTS = ts
	}
}

// OpponentHistory maps lowercased opponent name to record.
type OpponentHistory map[string]*OpponentRecord

// Lookup returns the record for a display name, if any.
func (h OpponentHistory) Lookup(name string) (*OpponentRecord, bool) {
	rec, ok := h[strings.ToLower(name)]
	return rec, ok
}

// Ensure returns the record for name, creating a zero record when absent.
func (h OpponentHistory) Ensure(name string, gw uint16) *OpponentRecord {
	key := strings.ToLower(name)
	if rec, ok := h[key]; ok {
		return rec
	}
	rec := &OpponentRecord{Name: name, Gateway: gw}
	h[key] = rec
	return rec
}

// KnownRandomKeys returns the lowercased names recorded as Random, used to
// correct opponent races in the last-100 summary.
func (h OpponentHistory) KnownRandomKeys() map[string]bool {
	out := make(map[string]bool)
	for key, rec := range h {
		if race.IsRandom(rec.Race) {
			out[key] = true
		}
	}
	return out
}

// OpponentStore persists an OpponentHistory as one pretty JSON document.
type OpponentStore struct {
	path string
}

func NewOpponentStore(path string) *OpponentStore {
	return &OpponentStore{path: path}
}

// Load reads the store; a missing file yields an empty history.
func (s *OpponentStore) Load() (OpponentHistory, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return OpponentHistory{}, nil
		}
		return nil, fmt.Errorf("read opponent history %s: %w", s.path, err)
	}

	var hist OpponentHistory
	if err := json.Unmarshal(raw, &hist); err != nil {
		return nil, fmt.Errorf("deserialize opponent history %s: %w", s.path, err)
	}
	if hist == nil {
		hist = OpponentHistory{}
	}
	return hist, nil
}

func (s *OpponentStore) Save(hist OpponentHistory) error {
	data, err := json.MarshalIndent(hist, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize opponent history: %w", err)
	}
	if err := atomicwrite.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("write opponent history: %w", err)
	}
	return nil
}
