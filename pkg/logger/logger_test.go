package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsToInfoAndConsole(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, l)
	require.True(t, l.Core().Enabled(zapcore.InfoLevel))
	require.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewHonorsDebugLevel(t *testing.T) {
	l, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewAcceptsJSONFormat(t *testing.T) {
	l, err := New(Config{Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestFromStringRejectsUnknownLevel(t *testing.T) {
	_, err := FromString("verbose")
	require.ErrorIs(t, err, LevelError)
}

func TestFromStringParsesEveryKnownLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for raw, want := range cases {
		got, err := FromString(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
