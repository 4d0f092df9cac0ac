package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

type queryLogger struct{}

var _ bun.QueryHook = queryLogger{}

func (queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	var ev *zerolog.Event
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		ev = log.Warn().Err(event.Err)
	} else {
		ev = log.Debug()
	}
	ev.Str("operation", event.Operation()).
		Dur("elapsed", time.Since(event.StartTime)).
		Str("query", event.Query).
		Msg("sql")
}
