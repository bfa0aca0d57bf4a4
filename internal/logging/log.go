// Package logging provides the zap logger shared by the engine and CLI.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
)

// NewLogger returns a new zap.SugaredLogger. Setting EVENTAGG_DEBUG=true
// switches to the development configuration. Logs go to stderr so that
// report output on stdout stays machine readable.
func NewLogger() *zap.SugaredLogger {
	return newLogger(debugFromEnv())
}

// NewLoggerWithDebug returns a logger, forcing debug output when debug is set.
func NewLoggerWithDebug(debug bool) *zap.SugaredLogger {
	return newLogger(debug || debugFromEnv())
}

func debugFromEnv() bool {
	v, ok := os.LookupEnv("EVENTAGG_DEBUG")
	return ok && v == "true"
}

func newLogger(debug bool) *zap.SugaredLogger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("eventagg").Sugar()
}

type loggerKey struct{}

// WithLogger returns a copy of parent context in which the
// value associated with logger key is the supplied logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger in the context, or a new logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger()
}
