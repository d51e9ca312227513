// Package gateway maps the closed set of Battle.net region codes used by
// the game's web API and provides the fixed cyclic order the UI and the
// replay download request rotate through.
package gateway

import "fmt"

// Gateway is a region code from the closed set {10, 11, 20, 30, 45}.
type Gateway uint16

const (
	USWest Gateway = 10
	USEast Gateway = 11
	Europe Gateway = 20
	Korea  Gateway = 30
	Asia   Gateway = 45
)

// Cycle is the fixed rotation order for gateway selection.
var Cycle = [5]uint16{10, 11, 20, 30, 45}

// Map returns the typed gateway for a numeric code, or an error for codes
// outside the closed set.
func Map(num uint16) (Gateway, error) {
	switch num {
	case 10, 11, 20, 30, 45:
		return Gateway(num), nil
	default:
		return 0, fmt.Errorf("unknown gateway: %d", num)
	}
}

// Label returns the human region string for a code, "Unknown" otherwise.
func Label(num uint16) string {
	switch num {
	case 10:
		return "US West"
	case 11:
		return "US East"
	case 20:
		return "Europe"
	case 30:
		return "Korea"
	case 45:
		return "Asia"
	default:
		return "Unknown"
	}
}

// Next rotates forward through the cycle. Codes outside the cycle wrap to
// the first element.
func Next(current uint16) uint16 {
	return rotate(current, 1)
}

// Prev rotates backward through the cycle. Codes outside the cycle wrap to
// the last element.
func Prev(current uint16) uint16 {
	return rotate(current, -1)
}

func rotate(current uint16, direction int) uint16 {
	idx := -1
	for i, gw := range Cycle {
		if gw == current {
			idx = i
			break
		}
	}
	if idx == -1 {
		// Unknown codes land on the cycle boundary for the direction.
		if direction > 0 {
			idx = len(Cycle) - 1
		} else {
			idx = 0
		}
	}
	n := len(Cycle)
	return Cycle[(idx+direction+n)%n]
}
