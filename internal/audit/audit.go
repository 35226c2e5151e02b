package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventWaitlistQueued           = "WAITLIST_QUEUED"
	EventWaitlistPromoted         = "WAITLIST_PROMOTED"
	EventWaitlistStatusChanged    = "WAITLIST_STATUS_CHANGED"
	EventPlaceholderCreated       = "DIRECTORY_PLACEHOLDER_CREATED"
)

type EventLog struct {
	ID        int64
	EventType string
	SubjectID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Sink stores event logs.
type Sink interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Recorder is the best-effort front of a Sink: marshalling or insert
// failures are logged and never fail the calling operation.
type Recorder struct {
	sink Sink
	log  zerolog.Logger
}

func NewRecorder(sink Sink, log zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, log: log}
}

// Record must be called after the unit of work has committed; the sink
// writes through the pool, not the caller's transaction.
func (r *Recorder) Record(ctx context.Context, subjectID uuid.UUID, eventType string, payload map[string]any) {
	if r == nil || r.sink == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	id := subjectID
	ev := EventLog{
		EventType: eventType,
		SubjectID: &id,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := r.sink.InsertEvent(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("event", eventType).Stringer("subject_id", subjectID).Msg("insert event log")
	}
}

type PgSink struct {
	pool *pgxpool.Pool
}

func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

func (s *PgSink) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, subject_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.SubjectID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
