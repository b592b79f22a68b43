package buyer

import (
	"testing"
)

func TestAllocateCheapestFirstWithSpill(t *testing.T) {
	quotes := []listingQuote{
		{id: "200000000002", price: 12.50, stock: 10},
		{id: "200000000001", price: 9.99, stock: 2},
	}
	got := allocate(5, quotes)

	if len(got) != 2 {
		t.Fatalf("expected spill across 2 listings, got %d", len(got))
	}
	if got[0].ListingID != "200000000001" || got[0].Quantity != 2 {
		t.Fatalf("expected cheapest listing drained first, got %+v", got[0])
	}
	if got[1].ListingID != "200000000002" || got[1].Quantity != 3 {
		t.Fatalf("expected remainder spilled, got %+v", got[1])
	}
}

func TestAllocateTieBreaksOnID(t *testing.T) {
	quotes := []listingQuote{
		{id: "200000000009", price: 10, stock: 5},
		{id: "200000000001", price: 10, stock: 2},
	}
	got := allocate(3, quotes)

	if got[0].ListingID != "200000000001" || got[0].Quantity != 2 {
		t.Fatalf("expected lower id to win the price tie, got %+v", got[0])
	}
	if got[1].ListingID != "200000000009" || got[1].Quantity != 1 {
		t.Fatalf("expected one unit spilled, got %+v", got[1])
	}
}

func TestAllocateSkipsEmptyStockAndStopsWhenShort(t *testing.T) {
	quotes := []listingQuote{
		{id: "200000000001", price: 5, stock: 0},
		{id: "200000000002", price: 7, stock: 2},
	}
	got := allocate(6, quotes)

	if len(got) != 1 {
		t.Fatalf("expected single partial allocation, got %+v", got)
	}
	if got[0].Quantity != 2 {
		t.Fatalf("expected allocation capped at available stock, got %d", got[0].Quantity)
	}
}
