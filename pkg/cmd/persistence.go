package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cryptodashboard/reportgen/pkg/persistence"
	"github.com/cryptodashboard/reportgen/pkg/persistence/postgresql"
	"github.com/cryptodashboard/reportgen/pkg/persistence/sqlite"
)

// NewPersistence opens the report store named by databaseURL.
//
//	postgres://... or postgresql://...  PostgreSQL
//	sqlite:///path/to/reports.db        SQLite file
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "sqlite":
		return sqlite.NewPersistence(ctx, logger, rest)
	default:
		return nil, fmt.Errorf("unsupported database url scheme %q", provider)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", databaseURL
	}

	return strings.ToLower(provider), rest
}
