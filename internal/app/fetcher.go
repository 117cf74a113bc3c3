// Package app wires configuration to concrete fetch collaborators.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"projectdesk/internal/config"
	"projectdesk/internal/db"
	"projectdesk/internal/fixtures"
	"projectdesk/internal/migrate"
	"projectdesk/internal/repo"
	"projectdesk/internal/view"
	projectdesksdk "projectdesk/sdk/go"
)

// TokenEnv overrides api.token from the environment.
const TokenEnv = "PROJECTDESK_API_TOKEN"

// Fetcher is a view fetcher plus whatever it holds open.
type Fetcher struct {
	view.Fetcher
	Source string

	// DB is set for the sqlite source.
	DB *sql.DB
}

// Close releases the fetcher's resources.
func (f *Fetcher) Close() error {
	if f.DB != nil {
		return f.DB.Close()
	}
	return nil
}

// NewFetcher builds the collaborator named by cfg.Source. source overrides
// cfg.Source when non-empty.
func NewFetcher(ctx context.Context, workspace, source string, cfg *config.Config) (*Fetcher, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if source == "" {
		source = cfg.Source
	}
	switch source {
	case config.SourceHTTP:
		token := strings.TrimSpace(os.Getenv(TokenEnv))
		if token == "" {
			token = cfg.API.Token
		}
		if strings.TrimSpace(cfg.API.BaseURL) == "" {
			return nil, fmt.Errorf("api.base_url is required for source http")
		}
		client := projectdesksdk.New(cfg.API.BaseURL, token)
		client.Timeout = cfg.Fetch.Timeout
		client.Hydration = cfg.HydrationMode()
		return &Fetcher{Fetcher: client, Source: source}, nil
	case config.SourceSQLite:
		conn, err := OpenStore(ctx, workspace)
		if err != nil {
			return nil, err
		}
		return &Fetcher{Fetcher: repo.Repo{DB: conn}, Source: source, DB: conn}, nil
	case config.SourceFixtures:
		store, err := FixtureStore(cfg)
		if err != nil {
			return nil, err
		}
		return &Fetcher{Fetcher: store, Source: source}, nil
	default:
		return nil, fmt.Errorf("unknown source %q (want http, sqlite or fixtures)", source)
	}
}

// OpenStore opens and migrates the workspace database.
func OpenStore(ctx context.Context, workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// FixtureStore returns the built-in projects, or those from
// cfg.Fixtures.File when set.
func FixtureStore(cfg *config.Config) (*fixtures.Store, error) {
	if cfg.Fixtures.File == "" {
		return fixtures.Seeded()
	}
	ps, err := fixtures.LoadFile(cfg.Fixtures.File, cfg.HydrationMode())
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	store, err := fixtures.New()
	if err != nil {
		return nil, err
	}
	if err := store.Put(ps...); err != nil {
		return nil, err
	}
	return store, nil
}
