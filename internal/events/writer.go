package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Types written to the journal.
const (
	TypeTransition = "view.transition"
	TypeSeed       = "store.seed"
)

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	Generation uint64 `json:"generation"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Payload    string `json:"payload"`
}

type EventPayload map[string]any

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes e inside tx, or directly when tx is nil. ID and TS are
// assigned here.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Event, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	var db execer = w.DB
	if tx != nil {
		db = tx
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	_, err = db.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,generation,from_state,to_state,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, e.Type, nullableInt64Ptr(e.ProjectID), e.Generation, e.From, e.To, string(data))
	return err
}

// Filter narrows Latest. Zero values match everything.
type Filter struct {
	Type      string
	ProjectID *int64
	Limit     int
}

// Latest returns the newest events first.
func (w Writer) Latest(ctx context.Context, f Filter) ([]Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.ProjectID != nil {
		clauses = append(clauses, "project_id=?")
		args = append(args, *f.ProjectID)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,generation,from_state,to_state,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var (
			e         Event
			projectID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.Generation, &e.From, &e.To, &e.Payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			id := projectID.Int64
			e.ProjectID = &id
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
