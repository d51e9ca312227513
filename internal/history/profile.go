package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"bw-companion/internal/atomicwrite"
	"bw-companion/internal/constants"
	"bw-companion/internal/race"

	"github.com/rs/zerolog"
)

// MatchOutcome is the recorded result of one stored match from the local
// player's perspective.
type MatchOutcome string

const (
	OutcomeWin            MatchOutcome = "Win"
	OutcomeLoss           MatchOutcome = "Loss"
	OutcomeSelfDodged     MatchOutcome = "SelfDodged"
	OutcomeOpponentDodged MatchOutcome = "OpponentDodged"
)

// IsDodge reports whether the outcome is a dodge rather than a played game.
func (o MatchOutcome) IsDodge() bool {
	return o == OutcomeSelfDodged || o == OutcomeOpponentDodged
}

// StoredMatch is one match in a profile's rolling log.
type StoredMatch struct {
	Timestamp    int64        `json:"timestamp"`
	Opponent     string       `json:"opponent"`
	OpponentRace string       `json:"opponent_race,omitempty"`
	MainRace     string       `json:"main_race,omitempty"`
	Result       MatchOutcome `json:"result"`
}

// ProfileKey identifies a profile's bucket in the store.
type ProfileKey struct {
	Name    string
	Gateway uint16
}

// StorageKey renders the bucket key, lowercasing the name so lookups are
// case-insensitive.
func (k ProfileKey) StorageKey() string {
	return fmt.Sprintf("%s#%d", strings.ToLower(k.Name), k.Gateway)
}

type profileHistoryDoc struct {
	Profiles map[string][]StoredMatch `json:"profiles"`
}

// ProfileHistoryStore keeps a rolling per-profile match log, capped at
// MaxStoredMatches per bucket and persisted atomically on every mutation.
type ProfileHistoryStore struct {
	path     string
	profiles map[string][]StoredMatch
}

// NewProfileHistoryStore loads the store at path. A missing file yields an
// empty store; a malformed one is an error so the caller can decide whether
// to continue with Empty.
func NewProfileHistoryStore(path string) (*ProfileHistoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EmptyProfileHistoryStore(path), nil
		}
		return nil, fmt.Errorf("read profile history %s: %w", path, err)
	}

	var doc profileHistoryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("deserialize profile history %s: %w", path, err)
	}
	if doc.Profiles == nil {
		doc.Profiles = map[string][]StoredMatch{}
	}
	return &ProfileHistoryStore{path: path, profiles: doc.Profiles}, nil
}

// EmptyProfileHistoryStore returns a store with no matches that will write
// to path.
func EmptyProfileHistoryStore(path string) *ProfileHistoryStore {
	return &ProfileHistoryStore{path: path, profiles: map[string][]StoredMatch{}}
}

// LoadProfileHistoryStore is NewProfileHistoryStore with the malformed-file
// fallback applied: a corrupt store is logged and replaced by an empty one.
func LoadProfileHistoryStore(path string, logger zerolog.Logger) *ProfileHistoryStore {
	store, err := NewProfileHistoryStore(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("profile history unreadable, starting empty")
		return EmptyProfileHistoryStore(path)
	}
	return store
}

// HasMatches reports whether the bucket for key holds any stored matches.
func (s *ProfileHistoryStore) HasMatches(key ProfileKey) bool {
	return len(s.profiles[key.StorageKey()]) > 0
}

// Matches returns up to DisplayedMatches stored matches for key, newest
// first.
func (s *ProfileHistoryStore) Matches(key ProfileKey) []StoredMatch {
	stored := s.profiles[key.StorageKey()]
	n := len(stored)
	if n > constants.DisplayedMatches {
		n = constants.DisplayedMatches
	}
	out := make([]StoredMatch, n)
	copy(out, stored[:n])
	return out
}

// MergeMatches folds incoming matches into the bucket for key. A duplicate
// (same timestamp, case-insensitive opponent) only fills races the stored
// row is missing; zero timestamps are dropped. The bucket is kept newest
// first and capped, persisted when anything changed, and the merged view is
// returned truncated for display.
func (s *ProfileHistoryStore) MergeMatches(key ProfileKey, incoming []StoredMatch) ([]StoredMatch, error) {
	bucket := key.StorageKey()
	stored := s.profiles[bucket]
	changed := false

	sorted := make([]StoredMatch, len(incoming))
	copy(sorted, incoming)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp > sorted[j].Timestamp })

	for _, m := range sorted {
		if m.Timestamp == 0 {
			continue
		}
		idx := findMatch(stored, m.Timestamp, m.Opponent)
		if idx < 0 {
			stored = append(stored, m)
			changed = true
			continue
		}
		if stored[idx].MainRace == "" && m.MainRace != "" {
			stored[idx].MainRace = m.MainRace
			changed = true
		}
		if stored[idx].OpponentRace == "" && m.OpponentRace != "" {
			stored[idx].OpponentRace = m.OpponentRace
			changed = true
		}
	}

	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Timestamp > stored[j].Timestamp })
	if len(stored) > constants.MaxStoredMatches {
		stored = stored[:constants.MaxStoredMatches]
		changed = true
	}
	s.profiles[bucket] = stored

	if changed {
		if err := s.save(); err != nil {
			return nil, err
		}
	}

	n := len(stored)
	if n > constants.DisplayedMatches {
		n = constants.DisplayedMatches
	}
	out := make([]StoredMatch, n)
	copy(out, stored[:n])
	return out, nil
}

// UpsertMatch inserts m into the bucket for key. An existing row with the
// same timestamp and opponent is replaced only when a field differs, so a
// repeat of the same observation does not rewrite the file.
func (s *ProfileHistoryStore) UpsertMatch(key ProfileKey, m StoredMatch) error {
	if m.Timestamp == 0 {
		return nil
	}
	bucket := key.StorageKey()
	stored := s.profiles[bucket]
	changed := false

	idx := findMatch(stored, m.Timestamp, m.Opponent)
	if idx >= 0 {
		if stored[idx] != m {
			stored[idx] = m
			changed = true
		}
	} else {
		stored = append(stored, m)
		changed = true
	}
	if !changed {
		return nil
	}

	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Timestamp > stored[j].Timestamp })
	if len(stored) > constants.MaxStoredMatches {
		stored = stored[:constants.MaxStoredMatches]
	}
	s.profiles[bucket] = stored
	return s.save()
}

func findMatch(stored []StoredMatch, ts int64, opponent string) int {
	for i := range stored {
		if stored[i].Timestamp == ts && strings.EqualFold(stored[i].Opponent, opponent) {
			return i
		}
	}
	return -1
}

func (s *ProfileHistoryStore) save() error {
	data, err := json.MarshalIndent(profileHistoryDoc{Profiles: s.profiles}, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize profile history: %w", err)
	}
	if err := atomicwrite.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("write profile history: %w", err)
	}
	return nil
}

// FoldRecord tallies wins and losses from matches against opponent,
// ignoring dodges.
func FoldRecord(matches []StoredMatch, opponent string) (wins, losses int) {
	for _, m := range matches {
		if !strings.EqualFold(m.Opponent, opponent) {
			continue
		}
		switch m.Result {
		case OutcomeWin:
			wins++
		case OutcomeLoss:
			losses++
		}
	}
	return wins, losses
}

// LatestRaceObservation returns the most recent non-empty opponent race in
// matches against opponent, or "" when none is recorded.
func LatestRaceObservation(matches []StoredMatch, opponent string) string {
	best := ""
	bestTS := int64(0)
	for _, m := range matches {
		if !strings.EqualFold(m.Opponent, opponent) || m.OpponentRace == "" {
			continue
		}
		if m.Timestamp > bestTS {
			best, bestTS = race.Normalize(m.OpponentRace), m.Timestamp
		}
	}
	return best
}
