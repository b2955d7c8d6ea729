package pricestore

import (
	"context"
	"fmt"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoPriceCollection = "daily_price"
	mongoBatchSize       = 500
)

// mongoBar is one (code, date) document
type mongoBar struct {
	ID        string    `bson:"_id"`
	Code      string    `bson:"code"`
	Date      string    `bson:"date"`
	Open      float64   `bson:"open"`
	High      float64   `bson:"high"`
	Low       float64   `bson:"low"`
	Close     float64   `bson:"close"`
	Volume    int64     `bson:"volume"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps daily prices in MongoDB, one document per bar
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects to uri and prepares the price collection
func OpenMongo(ctx context.Context, uri, database string, logger *applog.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGODB_URI is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	collection := client.Database(database).Collection(mongoPriceCollection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}, {Key: "date", Value: -1}},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create mongodb index")
	}

	logger.Info().Str("database", database).Msg("mongodb price store ready")
	return &MongoStore{client: client, collection: collection}, nil
}

func mongoID(code, date string) string {
	return code + "|" + date
}

// Upsert replaces documents by (code, date) in batches
func (s *MongoStore) Upsert(ctx context.Context, code string, rows []models.DailyBar) error {
	now := time.Now()
	operations := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		id := mongoID(code, r.Date)
		doc := mongoBar{
			ID: id, Code: code, Date: r.Date,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, UpdatedAt: now,
		}
		operations = append(operations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	for i := 0; i < len(operations); i += mongoBatchSize {
		end := i + mongoBatchSize
		if end > len(operations) {
			end = len(operations)
		}
		if _, err := s.collection.BulkWrite(ctx, operations[i:end], options.BulkWrite().SetOrdered(false)); err != nil {
			return fmt.Errorf("bulk upsert %s: %w", code, err)
		}
	}
	return nil
}

// Query returns up to limit rows for code, newest first
func (s *MongoStore) Query(ctx context.Context, code string, limit int) ([]models.DailyBar, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cursor, err := s.collection.Find(ctx, bson.M{"code": code}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mongoBar
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]models.DailyBar, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.DailyBar{
			Date: d.Date, Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, Volume: d.Volume,
		})
	}
	return out, nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
