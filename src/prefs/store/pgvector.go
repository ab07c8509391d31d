package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

const pgvectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS vector_items (
    index_name TEXT NOT NULL,
    id         TEXT NOT NULL,
    embedding  vector NOT NULL,
    metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (index_name, id)
);
CREATE INDEX IF NOT EXISTS vector_items_metadata_idx ON vector_items USING GIN (metadata);
`

// PgVectorIndex stores every named index in one pgvector table. Filters use
// JSONB containment, so conditions match exact values.
type PgVectorIndex struct {
	DB *pgxpool.Pool
}

var _ VectorIndex = (*PgVectorIndex)(nil)

func NewPgVectorIndex(ctx context.Context, connStr string) (*PgVectorIndex, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PgVectorIndex{DB: db}, nil
}

// CreateSchema installs the extension and the vector_items table.
func (p *PgVectorIndex) CreateSchema(ctx context.Context) error {
	_, err := p.DB.Exec(ctx, pgvectorSchema)
	return err
}

func (p *PgVectorIndex) Upsert(ctx context.Context, index, id string, vector []float32, metadata map[string]any) error {
	meta, err := metadataJSON(metadata)
	if err != nil {
		return err
	}
	_, err = p.DB.Exec(ctx, `
        INSERT INTO vector_items (index_name, id, embedding, metadata)
        VALUES ($1, $2, $3::vector, $4::jsonb)
        ON CONFLICT (index_name, id)
        DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata
        `, index, id, formatVector(vector), meta)
	return err
}

func (p *PgVectorIndex) Query(ctx context.Context, index string, vector []float32, filter Filter, topK int) ([]model.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	cond, err := metadataJSON(filter)
	if err != nil {
		return nil, err
	}
	var rows pgx.Rows
	if vector == nil {
		rows, err = p.DB.Query(ctx, `
        SELECT id, metadata::text, 0::float8
        FROM vector_items
        WHERE index_name = $1 AND metadata @> $2::jsonb
        ORDER BY id
        LIMIT $3
        `, index, cond, topK)
	} else {
		rows, err = p.DB.Query(ctx, `
        SELECT id, metadata::text, 1 - (embedding <=> $2::vector) AS score
        FROM vector_items
        WHERE index_name = $1 AND metadata @> $3::jsonb
        ORDER BY embedding <=> $2::vector, id
        LIMIT $4
        `, index, formatVector(vector), cond, topK)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		var (
			m        model.Match
			metaText string
		)
		if err := rows.Scan(&m.ID, &metaText, &m.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaText), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PgVectorIndex) Fetch(ctx context.Context, index, id string) ([]float32, bool, error) {
	var text string
	err := p.DB.QueryRow(ctx, `
        SELECT embedding::text FROM vector_items WHERE index_name = $1 AND id = $2
        `, index, id).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := parseVector(text)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (p *PgVectorIndex) Close() error {
	if p.DB != nil {
		p.DB.Close()
	}
	return nil
}

func metadataJSON(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// formatVector renders the pgvector text form, e.g. [0.1,0.2].
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(text string) ([]float32, error) {
	text = strings.Trim(strings.TrimSpace(text), "[]")
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
