package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"hostria.io/internal/ids"
)

// ZapSink writes events as structured log lines. It is the default sink.
type ZapSink struct {
	log *zap.Logger
	now func() time.Time
}

// NewZapSink constructs a sink over the given logger.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log, now: time.Now}
}

var _ Emitter = (*ZapSink)(nil)

// Emit logs the event at info level under the "audit" marker.
func (s *ZapSink) Emit(ctx context.Context, event Event) error {
	event.Normalize(s.now)
	s.log.Info("security event",
		zap.String("type", "audit"),
		zap.String("action", event.Action),
		zap.String("actor", event.Actor),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Any("detail", contextDetail(ctx, event)),
	)
	return nil
}

// PGSink appends events to the security_events table. Rows are never
// updated or deleted by this package.
type PGSink struct {
	db  *sql.DB
	now func() time.Time
}

// NewPGSink constructs a postgres-backed sink.
func NewPGSink(db *sql.DB) (*PGSink, error) {
	if db == nil {
		return nil, errors.New("audit: db handle is required")
	}
	return &PGSink{db: db, now: time.Now}, nil
}

var _ Emitter = (*PGSink)(nil)

// Emit inserts one append-only row.
func (s *PGSink) Emit(ctx context.Context, event Event) error {
	event.Normalize(s.now)
	detail, err := json.Marshal(contextDetail(ctx, event))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into security_events(id, action, actor, detail, occurred_at) values($1,$2,$3,$4,$5)`,
		ids.New(), event.Action, event.Actor, detail, event.OccurredAt,
	)
	return err
}

// MultiEmitter fans an event out to every sink. All sinks are attempted;
// the first error is returned.
type MultiEmitter []Emitter

var _ Emitter = (MultiEmitter)(nil)

// Emit delivers the event to each sink in order.
func (m MultiEmitter) Emit(ctx context.Context, event Event) error {
	var first error
	for _, sink := range m {
		if err := sink.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
