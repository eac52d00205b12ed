package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
)

// readingDoc is the persisted form of a reading. _id doubles as the
// insertion sequence used to break RecordedAt ties.
type readingDoc struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	SensorName string        `bson:"sensorName"`
	Value      float64       `bson:"value"`
	RecordedAt time.Time     `bson:"recordedAt"`
}

type averageDoc struct {
	Avg   float64 `bson:"avg"`
	Count int64   `bson:"count"`
}

type bucketDoc struct {
	ID struct {
		SensorName string    `bson:"sensorName"`
		Bucket     time.Time `bson:"bucket"`
	} `bson:"_id"`
	Avg   float64 `bson:"avg"`
	Count int64   `bson:"count"`
}

// MongoStore keeps readings in a single MongoDB collection with a TTL index
// on recordedAt, so eviction is handled by the server.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoConnection connects to MongoDB and verifies the primary is reachable.
func NewMongoConnection(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// NewMongoStore opens the readings collection and ensures its indexes.
// retention <= 0 disables the TTL index.
func NewMongoStore(ctx context.Context, client *mongo.Client, database, collection string, retention time.Duration) (*MongoStore, error) {
	coll := client.Database(database).Collection(collection)

	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := coll.Indexes().CreateMany(indexCtx, indexModels(retention)); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
	}, nil
}

func indexModels(retention time.Duration) []mongo.IndexModel {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "sensorName", Value: 1},
				{Key: "recordedAt", Value: -1},
			},
		},
	}
	if retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "recordedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		})
	}
	return models
}

// Insert stores one reading.
func (m *MongoStore) Insert(ctx context.Context, r sensor.Reading) error {
	_, err := m.collection.InsertOne(ctx, toDoc(r))
	return err
}

// InsertAll stores the batch inside a multi-document transaction. This needs
// a replica set or sharded cluster.
func (m *MongoStore) InsertAll(ctx context.Context, rs []sensor.Reading) error {
	if len(rs) == 0 {
		return nil
	}

	docs := make([]any, len(rs))
	for i, r := range rs {
		docs[i] = toDoc(r)
	}

	sess, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return m.collection.InsertMany(txCtx, docs)
	})
	return err
}

// Average returns mean and count for name in [from, to).
func (m *MongoStore) Average(ctx context.Context, name string, from, to time.Time) (sensor.RangeAverage, error) {
	cursor, err := m.collection.Aggregate(ctx, averagePipeline(name, from, to))
	if err != nil {
		return sensor.RangeAverage{}, err
	}
	defer cursor.Close(ctx)

	var results []averageDoc
	if err := cursor.All(ctx, &results); err != nil {
		return sensor.RangeAverage{}, err
	}
	if len(results) == 0 || results[0].Count == 0 {
		return sensor.RangeAverage{}, nil
	}
	return sensor.RangeAverage{Mean: results[0].Avg, Count: results[0].Count}, nil
}

// AverageBuckets answers every (sensor, bucket) pair of [from, to) with one pipeline.
func (m *MongoStore) AverageBuckets(ctx context.Context, names []string, unit sensor.Unit, from, to time.Time) (map[string]map[int64]sensor.RangeAverage, error) {
	cursor, err := m.collection.Aggregate(ctx, bucketPipeline(names, unit, from, to))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []bucketDoc
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	out := make(map[string]map[int64]sensor.RangeAverage, len(names))
	for _, d := range results {
		byStart, ok := out[d.ID.SensorName]
		if !ok {
			byStart = make(map[int64]sensor.RangeAverage)
			out[d.ID.SensorName] = byStart
		}
		byStart[d.ID.Bucket.Unix()] = sensor.RangeAverage{Mean: d.Avg, Count: d.Count}
	}
	return out, nil
}

// Names returns the distinct sensor names in the collection.
func (m *MongoStore) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := m.collection.Distinct(ctx, "sensorName", bson.D{}).Decode(&names); err != nil {
		return nil, err
	}
	return names, nil
}

// Latest returns the newest reading for name.
func (m *MongoStore) Latest(ctx context.Context, name string) (sensor.Reading, bool, error) {
	opts := options.FindOne().SetSort(bson.D{
		{Key: "recordedAt", Value: -1},
		{Key: "_id", Value: -1},
	})

	var doc readingDoc
	err := m.collection.FindOne(ctx, bson.D{{Key: "sensorName", Value: name}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sensor.Reading{}, false, nil
	}
	if err != nil {
		return sensor.Reading{}, false, err
	}
	return sensor.Reading{
		SensorName: doc.SensorName,
		Value:      doc.Value,
		RecordedAt: doc.RecordedAt.UTC(),
	}, true, nil
}

// Close disconnects the underlying client.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func toDoc(r sensor.Reading) readingDoc {
	return readingDoc{
		SensorName: r.SensorName,
		Value:      r.Value,
		RecordedAt: r.RecordedAt.UTC(),
	}
}

func rangeFilter(from, to time.Time) bson.D {
	return bson.D{
		{Key: "$gte", Value: from.UTC()},
		{Key: "$lt", Value: to.UTC()},
	}
}

func averagePipeline(name string, from, to time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "sensorName", Value: name},
			{Key: "recordedAt", Value: rangeFilter(from, to)},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$value"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}

// bucketPipeline groups readings by sensor and by the unit they fall in.
// $dateTrunc needs MongoDB 5.0 or newer.
func bucketPipeline(names []string, unit sensor.Unit, from, to time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "sensorName", Value: bson.D{{Key: "$in", Value: names}}},
			{Key: "recordedAt", Value: rangeFilter(from, to)},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "sensorName", Value: "$sensorName"},
				{Key: "bucket", Value: bson.D{{Key: "$dateTrunc", Value: bson.D{
					{Key: "date", Value: "$recordedAt"},
					{Key: "unit", Value: unit.String()},
					{Key: "timezone", Value: "UTC"},
				}}}},
			}},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$value"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}
