//go:build integration

package tenant

import (
	"context"
	"database/sql"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BlackMission/authrelay/internal/domain"
)

func assertRegistryContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	dest, err := store.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example/hook", dest)

	for _, id := range []string{"", "ACME", "nonexistent", "initech"} {
		_, err := store.Resolve(ctx, id)
		assert.ErrorIs(t, err, domain.ErrUnknownTenant, "tenant %q", id)
	}

	require.NoError(t, store.Close())
	_, err = store.Resolve(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
}

func TestIntegration_Postgres(t *testing.T) {
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("authrelay"),
		tcpostgres.WithUsername("authrelay"),
		tcpostgres.WithPassword("authrelay_test_password"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	admin, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer admin.Close()
	_, err = admin.ExecContext(ctx, Schema)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, `INSERT INTO tenants (tenant_id, destination_url) VALUES
		('acme', 'https://acme.example/hook'), ('initech', NULL)`)
	require.NoError(t, err)

	store, err := Open(ctx, dsn, Options{})
	require.NoError(t, err)
	assertRegistryContract(t, store)
}

func TestIntegration_Redis(t *testing.T) {
	ctx := context.Background()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	admin := redis.NewClient(opts)
	defer admin.Close()
	require.NoError(t, admin.Set(ctx, "tenant:acme", "https://acme.example/hook", 0).Err())
	require.NoError(t, admin.Set(ctx, "tenant:initech", "", 0).Err())

	store, err := Open(ctx, uri, Options{})
	require.NoError(t, err)
	assertRegistryContract(t, store)
}

func TestIntegration_Mongo(t *testing.T) {
	ctx := context.Background()
	ctr, err := tcmongo.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	admin, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer admin.Disconnect(ctx)
	coll := admin.Database(DefaultMongoDatabase).Collection(DefaultMongoCollection)
	_, err = coll.InsertMany(ctx, []any{
		bson.M{"app_name": "acme", "user_data_post_url": "https://acme.example/hook"},
		bson.M{"app_name": "initech"},
	})
	require.NoError(t, err)

	store, err := Open(ctx, uri, Options{})
	require.NoError(t, err)
	assertRegistryContract(t, store)
}
