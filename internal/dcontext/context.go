// Package dcontext carries a structured logger through a context.Context,
// the same way the teacher registry threads a logrus.FieldLogger through
// request-scoped contexts instead of passing a logger parameter everywhere.
package dcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger stored in ctx, or logrus.StandardLogger if none was set.
func GetLogger(ctx context.Context) logrus.FieldLogger {
	if logger, ok := ctx.Value(loggerKey{}).(logrus.FieldLogger); ok {
		return logger
	}
	return logrus.StandardLogger()
}

// GetLoggerWithField returns GetLogger(ctx) with a single field attached.
func GetLoggerWithField(ctx context.Context, key string, value interface{}) logrus.FieldLogger {
	return GetLogger(ctx).WithField(key, value)
}

// GetLoggerWithFields returns GetLogger(ctx) with the given fields attached.
func GetLoggerWithFields(ctx context.Context, fields logrus.Fields) logrus.FieldLogger {
	return GetLogger(ctx).WithFields(fields)
}

// Background returns a context carrying the standard logger, for use
// outside of a request (CLI commands, startup sweeps).
func Background() context.Context {
	return WithLogger(context.Background(), logrus.StandardLogger())
}
