package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestSetLevelAppliesLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, SetLevel(zerolog.DebugLevel).GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, SetLevel(zerolog.ErrorLevel).GetLevel())
}

func TestNewDefaultsToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, New().GetLevel())
}
