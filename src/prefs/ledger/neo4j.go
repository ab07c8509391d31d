package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the subset of session configuration the ledger needs.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the driver so tests can script sessions without a server.
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	BeginTransaction(ctx context.Context) (neo4jTransaction, error)
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jTransaction interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4j keeps activity as a graph:
//
//	(:User {id, movie_pref_summary, music_pref_summary, product_pref_summary})
//	    -[:CONSUMED {domain, seq}]->(:Item {id, domain})
//
// MERGE on the relationship makes AppendItem idempotent.
type Neo4j struct {
	driver   neo4jDriver
	database string
}

var _ Ledger = (*Neo4j)(nil)

// ErrNeo4jUnavailable is returned when no driver is configured.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

func newNeo4jLedger(driver neo4jDriver, database string) (*Neo4j, error) {
	if driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	return &Neo4j{driver: driver, database: database}, nil
}

// CreateSchema adds the uniqueness constraints the MERGE statements rely on.
func (n *Neo4j) CreateSchema(ctx context.Context) error {
	session, err := n.session(ctx, AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	for _, q := range []string{
		"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
		"CREATE CONSTRAINT item_key IF NOT EXISTS FOR (i:Item) REQUIRE (i.id, i.domain) IS UNIQUE",
	} {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("neo4j schema query: %w", err)
		}
		_ = res.Close(ctx)
	}
	return nil
}

func (n *Neo4j) Activity(ctx context.Context, userID string) (model.Activity, error) {
	const op = "read activity"
	session, err := n.session(ctx, AccessModeRead)
	if err != nil {
		return model.Activity{}, model.External(op, userID, err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
        MATCH (u:User {id: $id})
        RETURN u.movie_pref_summary AS movie, u.music_pref_summary AS music, u.product_pref_summary AS product`,
		map[string]any{"id": userID})
	if err != nil {
		return model.Activity{}, model.External(op, userID, err)
	}
	if !res.Next(ctx) {
		err := res.Err()
		_ = res.Close(ctx)
		if err != nil {
			return model.Activity{}, model.External(op, userID, err)
		}
		return model.Activity{}, notFound(op, userID)
	}
	rec := res.Record()
	a := model.Activity{
		UserID:         userID,
		MovieSummary:   recordString(rec, "movie"),
		MusicSummary:   recordString(rec, "music"),
		ProductSummary: recordString(rec, "product"),
	}
	_ = res.Close(ctx)

	res, err = session.Run(ctx, `
        MATCH (:User {id: $id})-[c:CONSUMED]->(i:Item)
        RETURN i.domain AS domain, i.id AS id
        ORDER BY c.seq, i.id`,
		map[string]any{"id": userID})
	if err != nil {
		return model.Activity{}, model.External(op, userID, err)
	}
	defer res.Close(ctx)
	for res.Next(ctx) {
		rec := res.Record()
		d := model.Domain(recordString(rec, "domain"))
		if !d.Valid() {
			continue
		}
		a.SetItems(d, append(a.Items(d), recordString(rec, "id")))
	}
	if err := res.Err(); err != nil {
		return model.Activity{}, model.External(op, userID, err)
	}
	return a, nil
}

func (n *Neo4j) AppendItem(ctx context.Context, userID string, domain model.Domain, itemID string) (bool, error) {
	const op = "append item"
	if err := checkArgs(op, userID, domain); err != nil {
		return false, err
	}
	var added bool
	err := n.write(ctx, func(tx neo4jTransaction) error {
		res, err := tx.Run(ctx, `
            MATCH (u:User {id: $user})
            OPTIONAL MATCH (u)-[prev:CONSUMED]->()
            WITH u, count(prev) AS n
            MERGE (i:Item {id: $item, domain: $domain})
            MERGE (u)-[c:CONSUMED {domain: $domain}]->(i)
            ON CREATE SET c.seq = n, c.fresh = true
            WITH c, coalesce(c.fresh, false) AS added
            REMOVE c.fresh
            RETURN added`,
			map[string]any{"user": userID, "item": itemID, "domain": string(domain)})
		if err != nil {
			return err
		}
		defer res.Close(ctx)
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return err
			}
			return notFound(op, userID)
		}
		v, _ := res.Record().Get("added")
		added, _ = v.(bool)
		return nil
	})
	if err != nil {
		return false, model.External(op, userID, err)
	}
	return added, nil
}

func (n *Neo4j) SetSummary(ctx context.Context, userID string, domain model.Domain, text string) error {
	const op = "set summary"
	if err := checkArgs(op, userID, domain); err != nil {
		return err
	}
	err := n.write(ctx, func(tx neo4jTransaction) error {
		res, err := tx.Run(ctx, `
            MATCH (u:User {id: $id})
            SET u.`+domain.SummaryField()+` = $text
            RETURN u.id AS id`,
			map[string]any{"id": userID, "text": text})
		if err != nil {
			return err
		}
		defer res.Close(ctx)
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return err
			}
			return notFound(op, userID)
		}
		return nil
	})
	return model.External(op, userID, err)
}

func (n *Neo4j) EnsureUser(ctx context.Context, userID string) error {
	if err := checkUser("ensure user", userID); err != nil {
		return err
	}
	err := n.write(ctx, func(tx neo4jTransaction) error {
		res, err := tx.Run(ctx, `
            MERGE (u:User {id: $id})
            ON CREATE SET u.movie_pref_summary = '', u.music_pref_summary = '', u.product_pref_summary = ''`,
			map[string]any{"id": userID})
		if err != nil {
			return err
		}
		return res.Close(ctx)
	})
	return model.External("ensure user", userID, err)
}

func (n *Neo4j) Close() error {
	return n.driver.Close(context.Background())
}

func (n *Neo4j) session(ctx context.Context, mode Neo4jAccessMode) (neo4jSession, error) {
	s, err := n.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: mode, DatabaseName: n.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	return s, nil
}

func (n *Neo4j) write(ctx context.Context, fn func(neo4jTransaction) error) error {
	session, err := n.session(ctx, AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("neo4j begin tx: %w", err)
	}
	defer tx.Close(ctx)
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func recordString(rec neo4jRecord, key string) string {
	if rec == nil {
		return ""
	}
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
