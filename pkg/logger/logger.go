// Package logger builds a *zap.Logger the way the teacher's cmd/* binaries
// do (cmd/kmsServer/main.go: logger.NewLogger(&logger.LoggerConfig{...})),
// driven by TRUSTEDGE_LOG_LEVEL / TRUSTEDGE_LOG_FORMAT (see pkg/config).
// Console-encoded output suits local development; JSON output suits
// ingestion by a log pipeline in a fleet deployment.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger's verbosity and encoding.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info"
	// when empty or unrecognized.
	Level string
	// Format is "console" (default) or "json".
	Format string
}

// New builds a *zap.Logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	l := zap.New(core, zap.AddCaller())
	return l, nil
}

// NewNop returns a logger that discards everything, for tests and
// embedders that haven't wired logging yet.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

func parseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "", "info":
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

// LevelError is returned by FromString for an unrecognized level, kept
// distinct from the silent info fallback New uses, for callers that want
// to reject bad configuration outright instead of defaulting.
var LevelError = fmt.Errorf("logger: unrecognized level")

// FromString strictly parses a level name, for callers (e.g. CLI flag
// validation) that want to fail fast on a typo instead of silently
// defaulting to info the way New does.
func FromString(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("%w: %q", LevelError, raw)
	}
}
