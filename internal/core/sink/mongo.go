package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

var _ core.OutcomeSink = (*MongoSink)(nil)

type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoSink(ctx context.Context, uri, database, collection string) (*MongoSink, error) {
	ctxConn, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctxConn, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctxConn, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	s := &MongoSink{client: client, collection: client.Database(database).Collection(collection)}

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.collection.Indexes().CreateOne(ctxConn, indexModel); err != nil {
		slog.Warn("Failed to create url index", "collection", collection, "error", err)
	}
	return s, nil
}

// outcomeDoc is the stored shape of an outcome.
type outcomeDoc struct {
	URL           string                  `bson:"url"`
	RunID         string                  `bson:"run_id"`
	Title         *string                 `bson:"title"`
	Date          *string                 `bson:"date"`
	Format        *string                 `bson:"format,omitempty"`
	Categories    []string                `bson:"categories"`
	Languages     []string                `bson:"languages"`
	Sources       []string                `bson:"sources"`
	Fingerprint   *string                 `bson:"fingerprint"`
	Status        string                  `bson:"status"`
	FailureReason string                  `bson:"failure_reason,omitempty"`
	HTTPStatus    int                     `bson:"http_status,omitempty"`
	Extracted     *models.ExtractedRecord `bson:"extracted,omitempty"`
	Cached        bool                    `bson:"cached"`
	DurationMS    int64                   `bson:"duration_ms"`
	CompletedAt   time.Time               `bson:"completed_at"`
}

func toDoc(o *models.Outcome) outcomeDoc {
	return outcomeDoc{
		URL:           o.URL,
		RunID:         o.RunID,
		Title:         o.Title,
		Date:          o.Date,
		Format:        o.Format,
		Categories:    o.Categories.Sorted(),
		Languages:     o.Languages.Sorted(),
		Sources:       o.Sources.Sorted(),
		Fingerprint:   o.Fingerprint,
		Status:        string(o.Status),
		FailureReason: o.FailureReason,
		HTTPStatus:    o.HTTPStatus,
		Extracted:     o.Extracted,
		Cached:        o.Cached,
		DurationMS:    o.DurationMS,
		CompletedAt:   o.CompletedAt,
	}
}

// Write upserts the outcome keyed by url.
func (s *MongoSink) Write(ctx context.Context, o *models.Outcome) error {
	ctxWrite, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctxWrite, bson.M{"url": o.URL}, toDoc(o), opts)
	return err
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
