package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/BlackMission/authrelay/internal/domain"
)

const (
	DefaultMongoDatabase   = "RedirectManager"
	DefaultMongoCollection = "discord_redirect_urls"

	mongoSelectionTimeout = 10 * time.Second
)

// MongoRegistry reads tenant documents of the form
// {app_name: <tenantID>, user_data_post_url: <destination>}.
type MongoRegistry struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects to MongoDB and selects the tenant collection.
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoRegistry, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(mongoSelectionTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoRegistry{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Resolve returns the destination URL for tenantID.
func (m *MongoRegistry) Resolve(ctx context.Context, tenantID string) (string, error) {
	if err := checkID(tenantID); err != nil {
		return "", err
	}
	var rec domain.TenantRecord
	err := m.collection.FindOne(ctx, bson.M{"app_name": tenantID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", notFound(tenantID)
		}
		return "", unavailable("find tenant", err)
	}
	return destination(tenantID, rec.DestinationURL)
}

func (m *MongoRegistry) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoRegistry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
