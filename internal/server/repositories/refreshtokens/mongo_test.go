package refreshtokens

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Runs the registry contract against a live MongoDB when MONGODB_TEST_URI is
// set, e.g. mongodb://127.0.0.1:27017.
func newMongoHarness(t *testing.T) harness {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database("authcore_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	start := time.Now().UTC().Truncate(time.Millisecond)
	clk := &testClock{t: start}
	reg := NewMongoRegistry(db)
	reg.now = clk.Now
	require.NoError(t, reg.EnsureIndexes(context.Background()))

	return harness{reg: reg, start: start, advance: clk.Advance}
}

func TestMongoRegistryContract(t *testing.T) {
	if os.Getenv("MONGODB_TEST_URI") == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	runContract(t, newMongoHarness)
}
