// Package race canonicalizes race labels coming from the web API and the
// replay parser, and carries the replacement policy applied to stored
// opponent records.
package race

import "strings"

// Normalize canonicalizes the capitalization of known race labels and
// passes unknown labels through unchanged.
func Normalize(raw string) string {
	switch strings.ToLower(raw) {
	case "protoss":
		return "Protoss"
	case "terran":
		return "Terran"
	case "zerg":
		return "Zerg"
	case "random":
		return "Random"
	default:
		return raw
	}
}

// LowerKey returns the lowercased form used as a map key.
func LowerKey(raw string) string {
	return strings.ToLower(raw)
}

// IsRandom reports whether a label names the Random race, case-insensitively.
func IsRandom(raw string) bool {
	return strings.EqualFold(raw, "random")
}

// ShouldReplace implements the sticky-Random policy: a missing race is
// replaced by any observation, and a non-Random race is replaced only by a
// Random observation. Once Random, a record never reverts to a fixed race.
func ShouldReplace(existing, incoming string) bool {
	if existing == "" {
		return true
	}
	return IsRandom(incoming) && !IsRandom(existing)
}

// Initial returns the single-letter matchup initial for a race, "?" for
// anything outside the closed set.
func Initial(raw string) string {
	switch strings.ToLower(raw) {
	case "protoss":
		return "P"
	case "terran":
		return "T"
	case "zerg":
		return "Z"
	case "random":
		return "R"
	default:
		return "?"
	}
}

// DisplayLabel returns the display form of a race, "Unknown" for anything
// outside the closed set.
func DisplayLabel(raw string) string {
	switch strings.ToLower(raw) {
	case "protoss":
		return "Protoss"
	case "terran":
		return "Terran"
	case "zerg":
		return "Zerg"
	case "random":
		return "Random"
	default:
		return "Unknown"
	}
}
