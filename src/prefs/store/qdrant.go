package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// ItemIDKey is the payload field holding the caller's id; Qdrant point ids
// must be integers or UUIDs.
const ItemIDKey = "item_id"

var qdrantNamespace = uuid.MustParse("6f1c3e4a-9b2d-4c8e-a7f5-2d1b0e9c8a34")

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  []float32       `json:"vector"`
}

type qdrantScrollResult struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

// QdrantIndex talks to the Qdrant REST API. Each index name is a collection.
type QdrantIndex struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ VectorIndex = (*QdrantIndex)(nil)

func NewQdrantIndex(baseURL, apiKey string, timeout time.Duration) *QdrantIndex {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// PointID maps an arbitrary string id to its deterministic point UUID.
func PointID(id string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(id)).String()
}

// EnsureCollection creates a cosine collection of dim dimensions. An existing
// collection is not an error.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, index string, dim int) error {
	req := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	err := q.do(ctx, http.MethodPut, collectionPath(index, ""), req, nil)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

func (q *QdrantIndex) Upsert(ctx context.Context, index, id string, vector []float32, metadata map[string]any) error {
	payload := cloneMetadata(metadata)
	if payload == nil {
		payload = map[string]any{}
	}
	payload[ItemIDKey] = id
	req := map[string]any{
		"points": []map[string]any{{
			"id":      PointID(id),
			"vector":  vector,
			"payload": payload,
		}},
	}
	var resp qdrantEnvelope[json.RawMessage]
	if err := q.do(ctx, http.MethodPut, collectionPath(index, "/points?wait=true"), req, &resp); err != nil {
		return err
	}
	if resp.Status.Error != "" {
		return errors.New(resp.Status.Error)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, index string, vector []float32, filter Filter, topK int) ([]model.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"limit":        topK,
		"with_payload": true,
	}
	if f := toQdrantFilter(filter); f != nil {
		req["filter"] = f
	}
	var points []qdrantPoint
	if vector == nil {
		var resp qdrantEnvelope[qdrantScrollResult]
		if err := q.do(ctx, http.MethodPost, collectionPath(index, "/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		points = resp.Result.Points
	} else {
		req["vector"] = vector
		var resp qdrantEnvelope[[]qdrantPoint]
		if err := q.do(ctx, http.MethodPost, collectionPath(index, "/points/search"), req, &resp); err != nil {
			return nil, err
		}
		points = resp.Result
	}
	out := make([]model.Match, 0, len(points))
	for _, p := range points {
		meta := cloneMetadata(p.Payload)
		id, ok := meta[ItemIDKey].(string)
		if !ok {
			id = strings.Trim(string(p.ID), `"`)
		}
		delete(meta, ItemIDKey)
		out = append(out, model.Match{Item: model.Item{ID: id, Metadata: meta}, Score: p.Score})
	}
	return out, nil
}

func (q *QdrantIndex) Fetch(ctx context.Context, index, id string) ([]float32, bool, error) {
	req := map[string]any{
		"ids":          []string{PointID(id)},
		"with_vector":  true,
		"with_payload": false,
	}
	var resp qdrantEnvelope[[]qdrantPoint]
	if err := q.do(ctx, http.MethodPost, collectionPath(index, "/points"), req, &resp); err != nil {
		return nil, false, err
	}
	if len(resp.Result) == 0 {
		return nil, false, nil
	}
	return resp.Result[0].Vector, true, nil
}

func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body any, out any) error {
	u := q.baseURL + path
	var buf io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if resp.StatusCode >= 400 {
		var env qdrantEnvelope[json.RawMessage]
		if json.Unmarshal(payload, &env) == nil && env.Status.Error != "" {
			return fmt.Errorf("qdrant %s %s -> http %d: %s", method, path, resp.StatusCode, env.Status.Error)
		}
		return fmt.Errorf("qdrant %s %s -> http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}

func collectionPath(index, suffix string) string {
	return "/collections/" + url.PathEscape(index) + suffix
}

func toQdrantFilter(f Filter) *qdrantFilter {
	if len(f) == 0 {
		return nil
	}
	out := &qdrantFilter{Must: make([]qdrantCondition, 0, len(f))}
	for k, v := range f {
		c := qdrantCondition{Key: k}
		c.Match.Value = v
		out.Must = append(out.Must, c)
	}
	return out
}
