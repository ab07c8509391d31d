package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// The consumed-id columns hold JSON arrays; older rows may carry numeric
// movie ids, which are read back as strings.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_activity (
    user_id TEXT PRIMARY KEY,
    movies_watched TEXT,
    products_purchased TEXT,
    listened_music TEXT,
    music_pref_summary TEXT,
    movie_pref_summary TEXT,
    product_pref_summary TEXT
)`

// SQLite is a Ledger over a single user_activity table.
type SQLite struct {
	db *sql.DB
}

var _ Ledger = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at dsn, which is either a
// file path or a "file:" URI.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if dsn == "" {
		return nil, errors.New("sqlite path required")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create user_activity: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Activity(ctx context.Context, userID string) (model.Activity, error) {
	const op = "read activity"
	var (
		movies, products, music                    sql.NullString
		musicSummary, movieSummary, productSummary sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT movies_watched, products_purchased, listened_music,
               music_pref_summary, movie_pref_summary, product_pref_summary
        FROM user_activity WHERE user_id = ?`, userID).
		Scan(&movies, &products, &music, &musicSummary, &movieSummary, &productSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Activity{}, notFound(op, userID)
	}
	if err != nil {
		return model.Activity{}, model.External(op, userID, err)
	}
	a := model.Activity{
		UserID:         userID,
		MovieSummary:   movieSummary.String,
		MusicSummary:   musicSummary.String,
		ProductSummary: productSummary.String,
	}
	for d, raw := range map[model.Domain]sql.NullString{
		model.DomainMovie:   movies,
		model.DomainMusic:   music,
		model.DomainProduct: products,
	} {
		ids, err := decodeIDs(raw.String)
		if err != nil {
			return model.Activity{}, model.External(op, userID, fmt.Errorf("%s: %w", d.ItemsField(), err))
		}
		a.SetItems(d, ids)
	}
	return a, nil
}

func (s *SQLite) AppendItem(ctx context.Context, userID string, domain model.Domain, itemID string) (bool, error) {
	const op = "append item"
	if err := checkArgs(op, userID, domain); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, model.External(op, userID, err)
	}
	defer tx.Rollback()

	field := domain.ItemsField()
	var raw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT `+field+` FROM user_activity WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound(op, userID)
	}
	if err != nil {
		return false, model.External(op, userID, err)
	}
	ids, err := decodeIDs(raw.String)
	if err != nil {
		return false, model.External(op, userID, err)
	}
	if contains(ids, itemID) {
		return false, nil
	}
	encoded, err := json.Marshal(append(ids, itemID))
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_activity SET `+field+` = ? WHERE user_id = ?`, string(encoded), userID); err != nil {
		return false, model.External(op, userID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, model.External(op, userID, err)
	}
	return true, nil
}

func (s *SQLite) SetSummary(ctx context.Context, userID string, domain model.Domain, text string) error {
	const op = "set summary"
	if err := checkArgs(op, userID, domain); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE user_activity SET `+domain.SummaryField()+` = ? WHERE user_id = ?`, text, userID)
	if err != nil {
		return model.External(op, userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(op, userID)
	}
	return nil
}

func (s *SQLite) EnsureUser(ctx context.Context, userID string) error {
	if err := checkUser("ensure user", userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO user_activity (user_id, movies_watched, products_purchased, listened_music,
                                   music_pref_summary, movie_pref_summary, product_pref_summary)
        VALUES (?, '[]', '[]', '[]', '', '', '')
        ON CONFLICT(user_id) DO NOTHING`, userID)
	return model.External("ensure user", userID, err)
}

func (s *SQLite) Close() error { return s.db.Close() }

// decodeIDs reads a JSON array of strings or numbers.
func decodeIDs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var values []any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		ids = append(ids, fmt.Sprint(v))
	}
	return ids, nil
}
