package tastytrade

import (
	"context"
	"testing"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
)

func TestTokenBucketWithinCapacity(t *testing.T) {
	bucket := NewTokenBucket(5, 1)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := bucket.Acquire(ctx, 1); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("acquires within capacity should not block, took %s", elapsed)
	}
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	bucket := NewTokenBucket(1, 1000)

	ctx := context.Background()
	if err := bucket.Acquire(ctx, 1); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Empty; the refill rate of 1000/s makes the wait short.
	start := time.Now()
	if err := bucket.Acquire(ctx, 1); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("refill took too long: %s", elapsed)
	}
}

func TestTokenBucketContextCancel(t *testing.T) {
	bucket := NewTokenBucket(1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	if err := bucket.Acquire(ctx, 1); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	cancel()

	if err := bucket.Acquire(ctx, 1); err == nil {
		t.Error("expected context error on cancelled acquire")
	}
}

func TestRateLimiterUnknownCategoryPasses(t *testing.T) {
	rl := NewRateLimiter()
	if err := rl.Acquire(context.Background(), domain.EndpointAccount, 1); err != nil {
		t.Errorf("unconfigured category should pass through, got %v", err)
	}
}

func TestRateLimiterIndependentBuckets(t *testing.T) {
	rl := NewRateLimiter()
	rl.AddBucket(domain.EndpointMarketData, 1, 1)
	rl.AddBucket(domain.EndpointOrderPlace, 5, 1)

	ctx := context.Background()
	if err := rl.Acquire(ctx, domain.EndpointMarketData, 1); err != nil {
		t.Fatalf("market data acquire: %v", err)
	}

	// Market data bucket is empty; order placement must still be instant.
	start := time.Now()
	if err := rl.Acquire(ctx, domain.EndpointOrderPlace, 1); err != nil {
		t.Fatalf("order acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("order bucket should be independent, took %s", elapsed)
	}
}
