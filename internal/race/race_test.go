package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCanonicalizesKnownRaces(t *testing.T) {
	assert.Equal(t, "Terran", Normalize("terran"))
	assert.Equal(t, "Random", Normalize("RANDOM"))
	assert.Equal(t, "weird", Normalize("weird"))
}

func TestShouldReplacePrefersRandomAndMissing(t *testing.T) {
	assert.True(t, ShouldReplace("", "Terran"))
	assert.True(t, ShouldReplace("Terran", "Random"))
	assert.False(t, ShouldReplace("Random", "Zerg"))
	assert.False(t, ShouldReplace("Protoss", "Terran"))
	assert.False(t, ShouldReplace("Random", "random"))
}

func TestInitialAndDisplayLabel(t *testing.T) {
	assert.Equal(t, "P", Initial("protoss"))
	assert.Equal(t, "R", Initial("Random"))
	assert.Equal(t, "?", Initial("observer"))
	assert.Equal(t, "Zerg", DisplayLabel("zerg"))
	assert.Equal(t, "Unknown", DisplayLabel("observer"))
}
