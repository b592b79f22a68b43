package ebay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/rs/zerolog"
)

type fakeTransport struct {
	searchResults []SearchItem
	searchErrs    []error
	searchCalls   int

	items map[string]Item
}

func (f *fakeTransport) Search(ctx context.Context, query string) ([]SearchItem, error) {
	call := f.searchCalls
	f.searchCalls++
	if call < len(f.searchErrs) && f.searchErrs[call] != nil {
		return nil, f.searchErrs[call]
	}
	return f.searchResults, nil
}

func (f *fakeTransport) GetItem(ctx context.Context, itemID string) (Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return Item{}, apperrors.New(apperrors.CodeApplication, "invalid item id")
	}
	return item, nil
}

func newTestGateway(t *testing.T, transport Transport) *Gateway {
	t.Helper()
	gw, err := NewGateway(GatewayParams{
		Transport: transport,
		Logger:    logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard}),
		Config:    config.EbayConfig{RetryAttempts: 3, RetryDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return gw
}

func TestSearchDeduplicatesPreservingOrder(t *testing.T) {
	transport := &fakeTransport{
		searchResults: []SearchItem{
			{ItemID: "111111111111"},
			{ItemID: "222222222222"},
			{ItemID: "111111111111"},
			{ItemID: ""},
			{ItemID: "333333333333"},
		},
	}
	gw := newTestGateway(t, transport)

	items, err := gw.Search(context.Background(), "usb c hub")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 unique ids, got %d", len(items))
	}
	want := []string{"111111111111", "222222222222", "333333333333"}
	for i, id := range want {
		if items[i].ItemID != id {
			t.Fatalf("order not preserved: position %d got %s", i, items[i].ItemID)
		}
	}
}

func TestSearchRetriesConnectivity(t *testing.T) {
	transport := &fakeTransport{
		searchErrs:    []error{errors.New("tls handshake timeout")},
		searchResults: []SearchItem{{ItemID: "111111111111"}},
	}
	gw := newTestGateway(t, transport)

	items, err := gw.Search(context.Background(), "usb c hub")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if len(items) != 1 || transport.searchCalls != 2 {
		t.Fatalf("expected 2 attempts and 1 result, got calls=%d results=%d", transport.searchCalls, len(items))
	}
}

func TestGetListingSurfacesVariationRejection(t *testing.T) {
	transport := &fakeTransport{
		items: map[string]Item{
			"440044004400": {ItemID: "440044004400", HasVariations: true},
		},
	}
	gw := newTestGateway(t, transport)

	_, err := gw.GetListing(context.Background(), "440044004400")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestGetItemDoesNotRetryApplicationError(t *testing.T) {
	transport := &fakeTransport{items: map[string]Item{}}
	gw := newTestGateway(t, transport)

	_, err := gw.GetItem(context.Background(), "missing")
	if !apperrors.IsCode(err, apperrors.CodeApplication) {
		t.Fatalf("expected application error, got %v", err)
	}
}
