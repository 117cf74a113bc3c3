// Package fixtures is an in-memory project store used as a fetch source and
// as the seed for the sqlite store.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-memdb"
	"gopkg.in/yaml.v3"

	"projectdesk/internal/domain"
)

const table = "project"

var ErrNotFound = errors.New("not found")

// row is the indexed form of a project; memdb cannot index a pointer field.
type row struct {
	ID      int64
	Project domain.Project
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

// Store holds projects keyed by id.
type Store struct {
	db *memdb.MemDB
}

// New returns an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("fixtures schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Seeded returns a store holding MockProjects.
func Seeded() (*Store, error) {
	s, err := New()
	if err != nil {
		return nil, err
	}
	if err := s.Put(MockProjects()...); err != nil {
		return nil, err
	}
	return s, nil
}

// Put inserts or replaces projects. Every project needs an id.
func (s *Store) Put(ps ...domain.Project) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for i, p := range ps {
		if p.IsNew() {
			return fmt.Errorf("fixture %d (%q) has no id", i, p.Name)
		}
		if err := txn.Insert(table, &row{ID: *p.ID, Project: p}); err != nil {
			return fmt.Errorf("insert fixture %d: %w", *p.ID, err)
		}
	}
	txn.Commit()
	return nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return domain.Project{}, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(table, "id", id)
	if err != nil {
		return domain.Project{}, err
	}
	if raw == nil {
		return domain.Project{}, ErrNotFound
	}
	return raw.(*row).Project, nil
}

// FetchProject makes Store usable as a view fetcher.
func (s *Store) FetchProject(ctx context.Context, id int64) (domain.Project, error) {
	return s.GetProject(ctx, id)
}

type fixtureFile struct {
	Projects []map[string]any `yaml:"projects"`
}

// LoadYAML reads a fixture document of the form
//
//	projects:
//	  - id: 1
//	    name: Johnson - Kutch
//
// Each entry is hydrated with mode.
func LoadYAML(r io.Reader, mode domain.Hydration) ([]domain.Project, error) {
	var f fixtureFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	res := make([]domain.Project, 0, len(f.Projects))
	for _, src := range f.Projects {
		res = append(res, domain.NewProjectWith(src, mode))
	}
	return res, nil
}

// LoadFile is LoadYAML over the file at path.
func LoadFile(path string, mode domain.Hydration) ([]domain.Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadYAML(f, mode)
}
