package logger

import (
	"context"
	"strings"

	"github.com/asticode/go-astiav"
)

func LogLevelToAstiav(level Level) astiav.LogLevel {
	switch level {
	case LevelFatal:
		return astiav.LogLevelFatal
	case LevelPanic:
		return astiav.LogLevelPanic
	case LevelError:
		return astiav.LogLevelError
	case LevelWarning:
		return astiav.LogLevelWarning
	case LevelInfo:
		return astiav.LogLevelInfo
	case LevelDebug:
		return astiav.LogLevelVerbose
	case LevelTrace:
		return astiav.LogLevelDebug
	default:
		return astiav.LogLevelQuiet
	}
}

func LogLevelFromAstiav(level astiav.LogLevel) Level {
	switch {
	case level <= astiav.LogLevelPanic:
		return LevelPanic
	case level <= astiav.LogLevelFatal:
		return LevelFatal
	case level <= astiav.LogLevelError:
		return LevelError
	case level <= astiav.LogLevelWarning:
		return LevelWarning
	case level <= astiav.LogLevelInfo:
		return LevelInfo
	case level <= astiav.LogLevelVerbose:
		return LevelDebug
	default:
		return LevelTrace
	}
}

// RouteAstiavLogs makes libav* messages go through the logger in ctx.
//
// A libav panic is reported as an error: it never should tear down the player.
func RouteAstiavLogs(ctx context.Context, level Level) {
	astiav.SetLogLevel(LogLevelToAstiav(level))
	astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		lvl := LogLevelFromAstiav(l)
		if lvl < LevelError {
			lvl = LevelError
		}
		Logf(ctx, lvl, "%s%s", strings.TrimSpace(msg), cs)
	})
}
