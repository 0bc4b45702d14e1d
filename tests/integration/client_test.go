package integration

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/paged-api-client/internal/testutil"
	"github.com/Sternrassler/paged-api-client/pkg/cache"
	"github.com/Sternrassler/paged-api-client/pkg/client"
	"github.com/Sternrassler/paged-api-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(context.Background())
	})

	return redisClient
}

// TestFullTraversalWithRedisCache runs the complete flow against a
// real Redis backend: Gate -> Backoff Window -> Redis Cache ->
// Upstream, with the pagination stream on top.
func TestFullTraversalWithRedisCache(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetPages("/v1/items", map[string]testutil.MockResponse{
		"":   testutil.NewPageResponse([]string{`"A"`, `"B"`}, "c1"),
		"c1": testutil.NewPageResponse([]string{`"C"`}, ""),
	})

	store := cache.NewRedis[*client.Response](redisClient, "itest")
	dispatcher, err := client.New(client.Config{
		Cache:          store,
		MaxConcurrency: 4,
		CacheTTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	ctx := context.Background()
	fetcher := pagination.NewFetcher[string](dispatcher)

	items, err := fetcher.FetchItems(ctx, mock.URL()+"/v1/items").Collect()
	if err != nil {
		t.Fatalf("first traversal failed: %v", err)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
	if got := mock.RequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}

	// A second traversal within the TTL is served entirely from
	// Redis: no new upstream requests.
	items, err = fetcher.FetchItems(ctx, mock.URL()+"/v1/items").Collect()
	if err != nil {
		t.Fatalf("second traversal failed: %v", err)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(items, want) {
		t.Errorf("cached items = %v, want %v", items, want)
	}
	if got := mock.RequestCount(); got != 2 {
		t.Errorf("requests after cached traversal = %d, want still 2", got)
	}
}

// TestRedisCacheSharedAcrossDispatchers verifies that two dispatcher
// instances sharing one Redis see each other's cached responses, the
// way several proxy replicas would.
func TestRedisCacheSharedAcrossDispatchers(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetPages("/v1/items", map[string]testutil.MockResponse{
		"": testutil.NewPageResponse([]string{`"solo"`}, ""),
	})

	newDispatcher := func() *client.Client {
		t.Helper()
		d, err := client.New(client.Config{
			Cache:    cache.NewRedis[*client.Response](redisClient, "shared"),
			CacheTTL: time.Minute,
		})
		if err != nil {
			t.Fatalf("client.New failed: %v", err)
		}
		return d
	}

	ctx := context.Background()

	first := pagination.NewFetcher[string](newDispatcher())
	if _, err := first.FetchItems(ctx, mock.URL()+"/v1/items").Collect(); err != nil {
		t.Fatalf("first dispatcher traversal failed: %v", err)
	}

	second := pagination.NewFetcher[string](newDispatcher())
	items, err := second.FetchItems(ctx, mock.URL()+"/v1/items").Collect()
	if err != nil {
		t.Fatalf("second dispatcher traversal failed: %v", err)
	}

	if want := []string{"solo"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
	if got := mock.RequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1 (second dispatcher served from shared Redis)", got)
	}
}

// TestRateLimitRecoveryEndToEnd verifies the 429 path through the full
// stack: the backoff window pauses the traversal, then it completes.
func TestRateLimitRecoveryEndToEnd(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetHandler("/v1/items", testutil.FailFirst(1,
		testutil.NewRateLimitResponse("1"),
		testutil.NewPageResponse([]string{`"ok"`}, ""),
	))

	dispatcher, err := client.New(client.Config{
		Cache:    cache.NewRedis[*client.Response](redisClient, "itest429"),
		CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	start := time.Now()
	items, err := pagination.NewFetcher[string](dispatcher).
		FetchItems(context.Background(), mock.URL()+"/v1/items").Collect()
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	elapsed := time.Since(start)

	if want := []string{"ok"}; !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
	if elapsed < 900*time.Millisecond {
		t.Errorf("traversal took %v, want the 1s Retry-After honored", elapsed)
	}
}
