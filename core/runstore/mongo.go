package runstore

import (
	"context"
	"errors"
	"time"

	"cloudarb/core/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists optimization runs in MongoDB so named runs survive
// restarts.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo connects to MongoDB and prepares the runs collection.
func NewMongo(ctx context.Context, uri, dbName, collName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, run models.OptimizationRun) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.coll.InsertOne(ctx, run)
	return err
}

// Update implements Store.
func (s *MongoStore) Update(ctx context.Context, run models.OptimizationRun) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": run.ID}, run)
	return err
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, id string) (models.OptimizationRun, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res := s.coll.FindOne(ctx, bson.M{"_id": id})
	if errors.Is(res.Err(), mongo.ErrNoDocuments) {
		return models.OptimizationRun{}, models.NewError(models.CodeRunNotFound, "optimization run not found: "+id)
	}
	if res.Err() != nil {
		return models.OptimizationRun{}, res.Err()
	}

	var run models.OptimizationRun
	if err := res.Decode(&run); err != nil {
		return models.OptimizationRun{}, err
	}
	return run, nil
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
