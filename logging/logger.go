package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger = *logrus.Entry

type ctxKey int

const loggerCtxKey ctxKey = iota

func New() Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logrus.NewEntry(logger)
}

func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

func LoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(Logger); ok {
		return logger
	}
	return New()
}
