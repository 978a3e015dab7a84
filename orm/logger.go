package orm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the interface for query logging.
type Logger interface {
	LogQuery(ctx context.Context, query string, args []any, elapsed time.Duration, err error)
}

func logQuery(l Logger, ctx context.Context, query string, args []any, start time.Time, err error) {
	if l == nil {
		return
	}
	l.LogQuery(ctx, query, args, time.Since(start), err)
}

// ZerologLogger logs queries through a zerolog.Logger.
// Failed queries log at error level, queries slower than SlowThreshold
// at warn level, everything else at debug level.
type ZerologLogger struct {
	Logger        zerolog.Logger
	SlowThreshold time.Duration
}

// NewZerologLogger wraps a zerolog.Logger for use with DB.Debug.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{Logger: logger}
}

func (l *ZerologLogger) LogQuery(ctx context.Context, query string, args []any, elapsed time.Duration, err error) {
	var event *zerolog.Event
	switch {
	case err != nil:
		event = l.Logger.Error().Err(err)
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold:
		event = l.Logger.Warn().Str("slow_threshold", l.SlowThreshold.String())
	default:
		event = l.Logger.Debug()
	}

	event = event.
		Str("sql", query).
		Dur("duration", elapsed)
	if len(args) > 0 {
		event = event.Interface("args", args)
	}
	if ctx != nil {
		event = event.Ctx(ctx)
	}
	event.Msg("query")
}
