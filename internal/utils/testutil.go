package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var testMongoURI string

func init() {
	loadTestEnv()
}

// loadTestEnv resolves MONGO_URI for integration tests, preferring the
// project root .env so tests behave the same from any package directory.
func loadTestEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		godotenv.Load()
	}

	testMongoURI = os.Getenv("MONGO_URI")
	if testMongoURI == "" {
		panic("MONGO_URI environment variable is required for tests")
	}
}

// SetupTestDB connects to the test MongoDB instance and drops the given
// collections so each test starts from a clean slate.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(testMongoURI))
	require.NoError(t, err, "Failed to connect to MongoDB")
	db := client.Database(dbName)

	for _, collection := range collections {
		_ = db.Collection(collection).Drop(context.Background())
	}

	return db
}
