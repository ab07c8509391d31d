package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

const mongoCloseTimeout = 5 * time.Second

// MongoIndex maps each index name to a collection and queries it with the
// Atlas $vectorSearch stage. Every collection needs a vector search index
// (named by searchIndex) over "embedding" with the metadata.* filter fields.
type MongoIndex struct {
	client      *mongo.Client
	db          *mongo.Database
	searchIndex string
}

var _ VectorIndex = (*MongoIndex)(nil)

type mongoDoc struct {
	ID        string         `bson:"_id"`
	Embedding []float64      `bson:"embedding,omitempty"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	Score     float64        `bson:"score,omitempty"`
}

func NewMongoIndex(ctx context.Context, uri, database, searchIndex string) (*MongoIndex, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if searchIndex == "" {
		searchIndex = "vector_index"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoIndex{client: client, db: client.Database(database), searchIndex: searchIndex}, nil
}

func (mi *MongoIndex) Upsert(ctx context.Context, index, id string, vector []float32, metadata map[string]any) error {
	doc := mongoDoc{ID: id, Embedding: float64Embedding(vector), Metadata: metadata}
	_, err := mi.db.Collection(index).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (mi *MongoIndex) Query(ctx context.Context, index string, vector []float32, filter Filter, topK int) ([]model.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	coll := mi.db.Collection(index)
	var (
		cursor *mongo.Cursor
		err    error
	)
	if vector == nil {
		opts := options.Find().
			SetLimit(int64(topK)).
			SetSort(bson.D{{Key: "_id", Value: 1}}).
			SetProjection(bson.M{"embedding": 0})
		cursor, err = coll.Find(ctx, mongoFilter(filter), opts)
	} else {
		cursor, err = coll.Aggregate(ctx, vectorSearchPipeline(mi.searchIndex, vector, filter, topK))
	}
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mongoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Match, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.Match{Item: model.Item{ID: d.ID, Metadata: d.Metadata}, Score: d.Score})
	}
	return out, nil
}

func (mi *MongoIndex) Fetch(ctx context.Context, index, id string) ([]float32, bool, error) {
	var doc mongoDoc
	err := mi.db.Collection(index).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := make([]float32, len(doc.Embedding))
	for i, v := range doc.Embedding {
		out[i] = float32(v)
	}
	return out, true, nil
}

func (mi *MongoIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return mi.client.Disconnect(ctx)
}

// vectorSearchPipeline oversamples candidates tenfold and surfaces the
// similarity as "score".
func vectorSearchPipeline(searchIndex string, vector []float32, filter Filter, topK int) mongo.Pipeline {
	search := bson.D{
		{Key: "index", Value: searchIndex},
		{Key: "path", Value: "embedding"},
		{Key: "queryVector", Value: float64Embedding(vector)},
		{Key: "numCandidates", Value: int64(topK * 10)},
		{Key: "limit", Value: int64(topK)},
	}
	if len(filter) > 0 {
		search = append(search, bson.E{Key: "filter", Value: mongoFilter(filter)})
	}
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.D{
			{Key: "metadata", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func mongoFilter(f Filter) bson.D {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := bson.D{}
	for _, k := range keys {
		out = append(out, bson.E{Key: "metadata." + k, Value: f[k]})
	}
	return out
}

func float64Embedding(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
