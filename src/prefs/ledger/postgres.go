package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS user_activity (
    user_id              TEXT PRIMARY KEY,
    movies_watched       TEXT[] NOT NULL DEFAULT '{}',
    products_purchased   TEXT[] NOT NULL DEFAULT '{}',
    listened_music       TEXT[] NOT NULL DEFAULT '{}',
    music_pref_summary   TEXT NOT NULL DEFAULT '',
    movie_pref_summary   TEXT NOT NULL DEFAULT '',
    product_pref_summary TEXT NOT NULL DEFAULT ''
)`

// Postgres is a Ledger over user_activity with TEXT[] id columns.
type Postgres struct {
	DB *pgxpool.Pool
}

var _ Ledger = (*Postgres)(nil)

func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create user_activity: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Activity(ctx context.Context, userID string) (model.Activity, error) {
	const op = "read activity"
	a := model.Activity{UserID: userID}
	err := p.DB.QueryRow(ctx, `
        SELECT movies_watched, listened_music, products_purchased,
               movie_pref_summary, music_pref_summary, product_pref_summary
        FROM user_activity WHERE user_id = $1`, userID).
		Scan(&a.MoviesWatched, &a.ListenedMusic, &a.ProductsPurchased,
			&a.MovieSummary, &a.MusicSummary, &a.ProductSummary)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Activity{}, notFound(op, userID)
	}
	if err != nil {
		return model.Activity{}, model.External(op, userID, err)
	}
	return a, nil
}

// AppendItem appends in one statement. The guard in WHERE makes a repeat a
// no-op, so zero rows affected means either a duplicate or a missing user.
func (p *Postgres) AppendItem(ctx context.Context, userID string, domain model.Domain, itemID string) (bool, error) {
	const op = "append item"
	if err := checkArgs(op, userID, domain); err != nil {
		return false, err
	}
	field := domain.ItemsField()
	tag, err := p.DB.Exec(ctx, `
        UPDATE user_activity
        SET `+field+` = array_append(`+field+`, $2)
        WHERE user_id = $1 AND NOT ($2 = ANY(`+field+`))`, userID, itemID)
	if err != nil {
		return false, model.External(op, userID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := p.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_activity WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return false, model.External(op, userID, err)
	}
	if !exists {
		return false, notFound(op, userID)
	}
	return false, nil
}

func (p *Postgres) SetSummary(ctx context.Context, userID string, domain model.Domain, text string) error {
	const op = "set summary"
	if err := checkArgs(op, userID, domain); err != nil {
		return err
	}
	tag, err := p.DB.Exec(ctx, `UPDATE user_activity SET `+domain.SummaryField()+` = $2 WHERE user_id = $1`, userID, text)
	if err != nil {
		return model.External(op, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(op, userID)
	}
	return nil
}

func (p *Postgres) EnsureUser(ctx context.Context, userID string) error {
	if err := checkUser("ensure user", userID); err != nil {
		return err
	}
	_, err := p.DB.Exec(ctx, `INSERT INTO user_activity (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return model.External("ensure user", userID, err)
}

func (p *Postgres) Close() error {
	if p.DB != nil {
		p.DB.Close()
	}
	return nil
}
