package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"projectdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

const projectColumns = `id,name,description,image_url,contract_type_id,contract_signed_on,budget,is_active`

func scanProject(row scanner) (domain.Project, error) {
	var (
		p        domain.Project
		id       int64
		typeID   sql.NullInt64
		signedOn string
		active   int
	)
	err := row.Scan(&id, &p.Name, &p.Description, &p.ImageURL, &typeID, &signedOn, &p.Budget, &active)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.ID = domain.Int64(id)
	if typeID.Valid {
		p.ContractTypeID = domain.Int64(typeID.Int64)
	}
	p.ContractSignedOn, err = time.Parse(time.RFC3339Nano, signedOn)
	if err != nil {
		return p, fmt.Errorf("project %d: bad contract_signed_on %q: %w", id, signedOn, err)
	}
	p.IsActive = active != 0
	return p, nil
}

// UpsertProjectTx inserts p or replaces the stored row with the same id.
func (r Repo) UpsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	return upsertProject(ctx, tx, p)
}

func upsertProject(ctx context.Context, db execer, p domain.Project) error {
	if p.IsNew() {
		return errors.New("project id is required")
	}
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		*p.ID, p.Name, p.Description, p.ImageURL, nullableInt64Ptr(p.ContractTypeID),
		p.ContractSignedOn.UTC().Format(time.RFC3339Nano), p.Budget, boolInt(p.IsActive))
	return err
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// FetchProject makes Repo usable as a view fetcher.
func (r Repo) FetchProject(ctx context.Context, id int64) (domain.Project, error) {
	return r.GetProject(ctx, id)
}

// CountProjects returns the number of stored projects.
func (r Repo) CountProjects(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n)
	return n, err
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
