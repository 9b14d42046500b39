package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"staffline/internal/db"
	"staffline/internal/domain"
)

// Event types written to the outbox.
const (
	ProjectCreated       = "project.created"
	ProjectStatusChanged = "project.status_changed"
	SeatCreated          = "seat.created"
	SeatSearchOpened     = "seat.search_opened"
	SeatOffered          = "seat.offered"
	SeatAccepted         = "seat.accepted"
	SeatDeclined         = "seat.declined"
	SeatReopened         = "seat.reopened"
	SeatCancelled        = "seat.cancelled"
	SeatCompleted        = "seat.completed"
	CandidateUpserted    = "candidate.upserted"
)

// outboxLockKey names the postgres advisory lock that orders outbox inserts.
const outboxLockKey int64 = 0x73746166666c6e

// Writer appends events to the outbox inside the caller's transaction.
// On postgres the first append takes a transaction-scoped advisory lock, so event ids
// become visible in id order and a reader following the highest id never skips a row.
type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := domain.FormatTime(now())
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if w.Dialect == db.Postgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, outboxLockKey); err != nil {
			return fmt.Errorf("lock outbox: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
