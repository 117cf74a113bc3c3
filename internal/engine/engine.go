package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"projectdesk/internal/domain"
	"projectdesk/internal/events"
	"projectdesk/internal/logging"
	"projectdesk/internal/repo"
	"projectdesk/internal/view"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Log    logging.Logger
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Log:    logging.Nop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() logging.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logging.Nop()
}

// SeedProjects stores ps, replacing rows with the same id, and journals one
// seed event. It returns the number of rows written.
func (e Engine) SeedProjects(ctx context.Context, ps []domain.Project, source string) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(ps))
	for _, p := range ps {
		if err := e.Repo.UpsertProjectTx(ctx, tx, p); err != nil {
			return 0, fmt.Errorf("seed project %q: %w", p.Name, err)
		}
		ids = append(ids, *p.ID)
	}
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, tx, events.Event{Type: events.TypeSeed}, events.EventPayload{"source": source, "ids": ids}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.log().Info(ctx, "store seeded", "source", source, "count", len(ids))
	return len(ids), nil
}

// RecordTransition journals one applied view transition.
func (e Engine) RecordTransition(ctx context.Context, tr view.Transition) error {
	ev := events.Event{
		Type:       events.TypeTransition,
		Generation: tr.Generation,
		From:       tr.From.String(),
		To:         tr.To.String(),
	}
	payload := events.EventPayload{"branch": view.SelectBranch(tr.To).String()}
	switch s := tr.To.(type) {
	case view.Loading:
		ev.ProjectID = domain.Int64(s.ID)
	case view.Loaded:
		ev.ProjectID = domain.Int64(s.ID)
		payload["name"] = s.Project.Name
	case view.Failed:
		ev.ProjectID = domain.Int64(s.ID)
		payload["reason"] = s.Reason
	}
	w := e.Events
	w.Now = func() time.Time { return tr.At }
	return w.Append(ctx, nil, ev, payload)
}

// Journal returns a view observer that records every transition. Write
// failures are logged and dropped.
func (e Engine) Journal(ctx context.Context) func(view.Transition) {
	return func(tr view.Transition) {
		if err := e.RecordTransition(ctx, tr); err != nil {
			e.log().Warn(ctx, "journal write failed", "error", err)
		}
	}
}
