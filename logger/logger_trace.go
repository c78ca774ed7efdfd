//go:build debug_trace
// +build debug_trace

package logger

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Tracef is just a shorthand for Logf(ctx, LevelTrace, ...)
//
// The decode loop calls it several times per iteration, thus it is
// compiled in only with the "debug_trace" build tag.
func Tracef(ctx context.Context, format string, args ...any) {
	logger.Tracef(ctx, format, args...)
}
