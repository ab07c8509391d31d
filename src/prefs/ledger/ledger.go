// Package ledger records which items each user consumed per domain and the
// free-text preference summaries. It feeds exclusion sets and activity
// counts to the composer and the recommender.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-prefs/src/config"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// Ledger is the activity store. Implementations do not batch, cache or retry.
type Ledger interface {
	// Activity returns the user's row, or model.ErrUserNotFound.
	Activity(ctx context.Context, userID string) (model.Activity, error)
	// AppendItem adds itemID to the domain's consumed set. Appending an id
	// already present is a no-op reported as added=false.
	AppendItem(ctx context.Context, userID string, domain model.Domain, itemID string) (added bool, err error)
	// SetSummary replaces the domain's preference summary.
	SetSummary(ctx context.Context, userID string, domain model.Domain, text string) error
	// EnsureUser creates an empty row when the user has none.
	EnsureUser(ctx context.Context, userID string) error
	Close() error
}

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(ctx, cfg.DSN)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	case "neo4j":
		return NewNeo4j(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}

func checkUser(op, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return model.Validation(op, userID, "user id is empty")
	}
	return nil
}

func checkArgs(op, userID string, domain model.Domain) error {
	if err := checkUser(op, userID); err != nil {
		return err
	}
	if !domain.Valid() {
		return model.Validation(op, userID, "unknown domain %q", domain)
	}
	return nil
}

func notFound(op, userID string) error {
	return &model.Error{Op: op, UserID: userID, Kind: model.ErrUserNotFound}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
