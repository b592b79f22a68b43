package pairs

import (
	"context"
	"regexp"
	"sync"
	"testing"
)

var skuRe = regexp.MustCompile(`^[A-F0-9]{2}-[A-F0-9]{4}-[A-F0-9]{4}$`)

func TestGenerateSKUFormat(t *testing.T) {
	sku, err := GenerateSKU(context.Background(), func(ctx context.Context, sku string) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("GenerateSKU: %v", err)
	}
	if !skuRe.MatchString(sku) {
		t.Fatalf("unexpected sku format %q", sku)
	}
}

func TestGenerateSKURetriesOnCollision(t *testing.T) {
	collisions := 0
	sku, err := GenerateSKU(context.Background(), func(ctx context.Context, sku string) (bool, error) {
		if collisions < 3 {
			collisions++
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("GenerateSKU: %v", err)
	}
	if collisions != 3 {
		t.Fatalf("expected 3 collision re-checks, got %d", collisions)
	}
	if sku == "" {
		t.Fatal("expected a sku after collisions resolved")
	}
}

func TestGenerateSKUGivesUpEventually(t *testing.T) {
	_, err := GenerateSKU(context.Background(), func(ctx context.Context, sku string) (bool, error) {
		return true, nil
	})
	if err == nil {
		t.Fatal("expected error when every candidate collides")
	}
}

func TestGenerateSKUConcurrentUniqueness(t *testing.T) {
	var mu sync.Mutex
	taken := map[string]bool{}

	exists := func(ctx context.Context, sku string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		return taken[sku], nil
	}

	const n = 50
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			sku, err := GenerateSKU(context.Background(), exists)
			if err != nil {
				t.Errorf("GenerateSKU: %v", err)
				return
			}
			mu.Lock()
			taken[sku] = true
			mu.Unlock()
			results[i] = sku
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, sku := range results {
		if sku == "" {
			continue
		}
		if seen[sku] {
			t.Fatalf("duplicate sku generated: %s", sku)
		}
		seen[sku] = true
	}
}
