// Package logging provides log levels and adapters that satisfy the modkit
// Logger interface on top of zap and log/slog.
package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ErrUnknownLevel is returned by ParseLevel for unrecognised names.
var ErrUnknownLevel = errors.New("unknown log level")

// Level orders log severities from the most verbose to the least.
type Level int8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelCritical
	// LevelNone disables logging.
	LevelNone
)

var levelNames = map[Level]string{
	LevelTrace:       "trace",
	LevelDebug:       "debug",
	LevelInformation: "information",
	LevelWarning:     "warning",
	LevelError:       "error",
	LevelCritical:    "critical",
	LevelNone:        "none",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

// ParseLevel accepts the level names plus the usual short forms
// ("info", "warn", "fatal", "off").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "information":
		return LevelInformation, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	case "none", "off", "silent":
		return LevelNone, nil
	}
	return LevelNone, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so levels can be read from
// configuration files.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Enabled reports whether a message at msg passes a logger set to l.
func (l Level) Enabled(msg Level) bool {
	return l != LevelNone && msg >= l
}

// ZapLevel maps l onto zap. zap has no trace level, so trace logs at debug;
// critical maps to error so that it never panics or exits.
func (l Level) ZapLevel() zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelInformation:
		return zapcore.InfoLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError, LevelCritical:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel + 1
	}
}

// SlogLevel maps l onto log/slog.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelTrace:
		return slog.LevelDebug - 4
	case LevelDebug:
		return slog.LevelDebug
	case LevelInformation:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelCritical:
		return slog.LevelError + 4
	default:
		return slog.LevelError + 8
	}
}
