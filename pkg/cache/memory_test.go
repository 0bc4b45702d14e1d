package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_GetOrAdd(t *testing.T) {
	store := NewMemory[string]()
	ctx := context.Background()

	calls := 0
	factory := func(context.Context) (string, error) {
		calls++
		return "value", nil
	}

	v, err := store.GetOrAdd(ctx, "key", time.Minute, factory)
	if err != nil {
		t.Fatalf("GetOrAdd failed: %v", err)
	}
	if v != "value" {
		t.Errorf("value = %q, want %q", v, "value")
	}

	// Second call within the TTL must not invoke the factory.
	v, err = store.GetOrAdd(ctx, "key", time.Minute, factory)
	if err != nil {
		t.Fatalf("second GetOrAdd failed: %v", err)
	}
	if v != "value" {
		t.Errorf("cached value = %q, want %q", v, "value")
	}
	if calls != 1 {
		t.Errorf("factory calls = %d, want 1", calls)
	}
}

func TestMemory_Expiry(t *testing.T) {
	store := NewMemory[int]()
	ctx := context.Background()

	calls := 0
	factory := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	if _, err := store.GetOrAdd(ctx, "key", 30*time.Millisecond, factory); err != nil {
		t.Fatalf("GetOrAdd failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	v, err := store.GetOrAdd(ctx, "key", 30*time.Millisecond, factory)
	if err != nil {
		t.Fatalf("GetOrAdd after expiry failed: %v", err)
	}
	if v != 2 {
		t.Errorf("value after expiry = %d, want fresh factory result 2", v)
	}
	if calls != 2 {
		t.Errorf("factory calls = %d, want 2 (entry expired)", calls)
	}
}

func TestMemory_SingleFlight(t *testing.T) {
	store := NewMemory[string]()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	factory := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 10
	results := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.GetOrAdd(ctx, "key", time.Minute, factory)
			if err != nil {
				t.Errorf("GetOrAdd failed: %v", err)
				return
			}
			results <- v
		}()
	}

	// Give every caller time to join the in-flight population, then
	// let the single factory call finish.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for v := range results {
		if v != "shared" {
			t.Errorf("waiter got %q, want %q", v, "shared")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("factory calls = %d, want exactly 1 for concurrent callers", got)
	}
}

func TestMemory_FactoryErrorNotCached(t *testing.T) {
	store := NewMemory[string]()
	ctx := context.Background()

	boom := errors.New("boom")
	calls := 0
	factory := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "recovered", nil
	}

	if _, err := store.GetOrAdd(ctx, "key", time.Minute, factory); !errors.Is(err, boom) {
		t.Fatalf("first GetOrAdd error = %v, want %v", err, boom)
	}

	// The failure left nothing cached; the next call retries.
	v, err := store.GetOrAdd(ctx, "key", time.Minute, factory)
	if err != nil {
		t.Fatalf("second GetOrAdd failed: %v", err)
	}
	if v != "recovered" {
		t.Errorf("value = %q, want %q", v, "recovered")
	}
	if calls != 2 {
		t.Errorf("factory calls = %d, want 2", calls)
	}
}

func TestMemory_ErrorSharedWithWaiters(t *testing.T) {
	store := NewMemory[string]()
	ctx := context.Background()

	boom := errors.New("boom")
	var calls atomic.Int32
	release := make(chan struct{})
	factory := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "", boom
	}

	const callers = 5
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.GetOrAdd(ctx, "key", time.Minute, factory)
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("waiter error = %v, want %v", err, boom)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("factory calls = %d, want 1 (failure shared with all waiters)", got)
	}
}

func TestMemory_WaiterCancellation(t *testing.T) {
	store := NewMemory[string]()

	release := make(chan struct{})
	defer close(release)
	factory := func(context.Context) (string, error) {
		<-release
		return "late", nil
	}

	// First caller starts the population and stays blocked.
	go func() {
		_, _ = store.GetOrAdd(context.Background(), "key", time.Minute, factory)
	}()
	time.Sleep(10 * time.Millisecond)

	// A second caller with a short deadline must unblock on its own
	// context instead of waiting for the factory.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := store.GetOrAdd(ctx, "key", time.Minute, factory)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("canceled waiter error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("canceled waiter took %v, want prompt return", elapsed)
	}
}

func TestMemory_DistinctKeys(t *testing.T) {
	store := NewMemory[string]()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		want := fmt.Sprintf("value-%d", i)
		v, err := store.GetOrAdd(ctx, key, time.Minute, func(context.Context) (string, error) {
			return want, nil
		})
		if err != nil {
			t.Fatalf("GetOrAdd(%q) failed: %v", key, err)
		}
		if v != want {
			t.Errorf("GetOrAdd(%q) = %q, want %q", key, v, want)
		}
	}

	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}

	store.Delete("key-0")
	if store.Len() != 4 {
		t.Errorf("Len() after Delete = %d, want 4", store.Len())
	}

	store.Flush()
	if store.Len() != 0 {
		t.Errorf("Len() after Flush = %d, want 0", store.Len())
	}
}
