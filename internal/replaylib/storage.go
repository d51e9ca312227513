// Package replaylib manages the on-disk replay library: its directory
// layout, the sqlite dedup index, the background download worker, and
// the profile-history seeder that reads the library back.
package replaylib

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"bw-companion/internal/bwapi"
)

// Storage lays out the library tree <root>/bwtools/<profile>/<matchup>/.
type Storage struct {
	root string
}

func NewStorage(root string) *Storage {
	return &Storage{root: root}
}

func (s *Storage) BwtoolsRoot() string {
	return filepath.Join(s.root, "bwtools")
}

func (s *Storage) MatchupDir(profile, matchup string) string {
	return filepath.Join(s.BwtoolsRoot(), profile, matchup)
}

func (s *Storage) EnsureBaseDirs() error {
	return os.MkdirAll(s.BwtoolsRoot(), 0o755)
}

func (s *Storage) EnsureMatchupDir(profile, matchup string) (string, error) {
	dir := s.MatchupDir(profile, matchup)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SanitizeComponent makes a string safe as a single path component.
// Filesystem-reserved characters and control characters become
// underscores; an empty result falls back to "Unknown".
func SanitizeComponent(input string) string {
	trimmed := strings.TrimSpace(input)
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, ch := range trimmed {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, ch), ch < 0x20, ch == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(ch)
		}
	}
	cleaned := strings.TrimSpace(strings.Trim(b.String(), "."))
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}

// RaceLetter reduces a race label to its single uppercase initial, "U"
// when the label is blank.
func RaceLetter(race string) string {
	trimmed := strings.TrimSpace(race)
	if trimmed == "" {
		return "U"
	}
	return strings.ToUpper(trimmed[:1])
}

// BuildFilename composes the library file name, for example
// "2026-03-01_Alice(P)_vs_Bob(Z).rep". An empty prefix drops the
// leading date.
func BuildFilename(prefix, p1, r1, p2, r2 string) string {
	base := SanitizeComponent(p1) + "(" + SanitizeComponent(RaceLetter(r1)) + ")_vs_" +
		SanitizeComponent(p2) + "(" + SanitizeComponent(RaceLetter(r2)) + ")"
	if prefix != "" {
		return SanitizeComponent(prefix) + "_" + base + ".rep"
	}
	return base + ".rep"
}

// DatePrefix formats a unix timestamp as a YYYY-MM-DD file prefix.
// Zero and the u32 sentinel the game writes for unknown times yield "".
func DatePrefix(ts int64) string {
	if ts <= 0 || ts == int64(^uint32(0)) {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

// MatchupFilter is a pair of race initials, order-insensitive.
type MatchupFilter struct {
	A, B byte
}

// ParseMatchupFilter accepts forms like "PvZ", "p,z", "T/P" or "tz".
func ParseMatchupFilter(input string) (MatchupFilter, bool) {
	s := strings.ToUpper(strings.TrimSpace(input))
	for _, sep := range []string{"V", ",", "/"} {
		if left, right, found := strings.Cut(s, sep); found {
			a, aok := firstLetter(left)
			b, bok := firstLetter(right)
			if aok && bok {
				return MatchupFilter{A: a, B: b}, true
			}
			return MatchupFilter{}, false
		}
	}
	letters := make([]byte, 0, 2)
	for i := 0; i < len(s) && len(letters) < 2; i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			letters = append(letters, s[i])
		}
	}
	if len(letters) == 2 {
		return MatchupFilter{A: letters[0], B: letters[1]}, true
	}
	return MatchupFilter{}, false
}

func firstLetter(s string) (byte, bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			if c >= 'a' {
				c -= 'a' - 'A'
			}
			return c, true
		}
	}
	return 0, false
}

// Matches reports whether a comma-separated race list matches the
// filter in either player order.
func (f MatchupFilter) Matches(races string) bool {
	parts := splitNonEmpty(races)
	if len(parts) < 2 {
		return false
	}
	a, aok := firstLetter(parts[0])
	b, bok := firstLetter(parts[1])
	if !aok || !bok {
		return false
	}
	return (a == f.A && b == f.B) || (a == f.B && b == f.A)
}

// IsOneVOne checks the replay attribute columns for exactly two human
// players.
func IsOneVOne(r bwapi.ProfileReplay) bool {
	names := splitNonEmpty(r.Attributes.ReplayPlayerNames)
	if len(names) != 2 {
		return false
	}
	races := splitNonEmpty(r.Attributes.ReplayPlayerRaces)
	if len(races) != 2 {
		return false
	}
	human := 0
	for _, t := range splitNonEmpty(r.Attributes.ReplayPlayerTypes) {
		if t == "1" {
			human++
		}
	}
	return human == 2
}

func splitNonEmpty(input string) []string {
	out := make([]string, 0, 2)
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
