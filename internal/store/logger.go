package store

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm/logger"
)

// slogWriter adapts a slog.Logger to gorm's logger.Writer.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.log.Debug(fmt.Sprintf(format, args...), "component", "gorm")
}

// newGormLogger routes gorm's SQL and slow-query logging through log.
func newGormLogger(log *slog.Logger) logger.Interface {
	return logger.New(slogWriter{log: log}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
