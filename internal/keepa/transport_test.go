package keepa

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
)

func newHistoryTransport(t *testing.T, handler http.HandlerFunc) *HTTPTransport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	transport, err := NewHTTPTransport(config.KeepaConfig{APIKey: "key-1"})
	if err != nil {
		t.Fatalf("NewHTTPTransport: %v", err)
	}
	transport.endpoint = server.URL
	return transport
}

func TestQueryDecodesSeries(t *testing.T) {
	transport := newHistoryTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("asin"); got != "B001,B002" {
			t.Errorf("asin param = %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "key-1" {
			t.Errorf("key param = %q", got)
		}
		// Series index 0 is the platform price, 3 the sales rank,
		// 11 the new-offer count. Value -1 marks a gap.
		io.WriteString(w, `{"products":[
  {"asin":"B001","csv":[
    [7000000,1599,7001000,-1],
    null,null,
    [7000000,120000,7002000,90000],
    null,null,null,null,null,null,null,
    [7000000,5,7002000,7]
  ]},
  {"asin":"B002","csv":[null,null,null,[7000000,40000]]}
]}`)
	})

	histories, err := transport.Query(context.Background(), []string{"B001", "B002"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(histories) != 2 {
		t.Fatalf("histories = %d", len(histories))
	}

	first := histories[0]
	if first.ASIN != "B001" {
		t.Fatalf("asin = %q", first.ASIN)
	}
	if len(first.SalesRank) != 2 || first.SalesRank[0].Value != 120000 || first.SalesRank[1].Value != 90000 {
		t.Fatalf("sales rank not decoded: %+v", first.SalesRank)
	}
	if len(first.OfferCounts) != 2 || first.OfferCounts[1].Value != 7 {
		t.Fatalf("offer counts not decoded: %+v", first.OfferCounts)
	}
	if first.LastPlatformSale == nil {
		t.Fatal("platform sale not detected")
	}
	want := time.Unix((7000000+epochOffsetMinutes)*60, 0).UTC()
	if !first.LastPlatformSale.Equal(want) {
		t.Fatalf("platform sale = %v, want %v", first.LastPlatformSale, want)
	}

	second := histories[1]
	if second.LastPlatformSale != nil {
		t.Fatalf("platform never sold B002, got %v", second.LastPlatformSale)
	}
	if len(second.SalesRank) != 1 || second.SalesRank[0].Value != 40000 {
		t.Fatalf("sales rank not decoded: %+v", second.SalesRank)
	}
}

func TestQueryEmptyBatchSkipsCall(t *testing.T) {
	transport := newHistoryTransport(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	histories, err := transport.Query(context.Background(), nil)
	if err != nil || histories != nil {
		t.Fatalf("Query = %v, %v", histories, err)
	}
}

func TestQueryTokenExhaustionIsConnectivity(t *testing.T) {
	transport := newHistoryTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := transport.Query(context.Background(), []string{"B001"})
	if !apperrors.IsCode(err, apperrors.CodeConnectivity) {
		t.Fatalf("want connectivity error, got %v", err)
	}
}

func TestQueryAPIErrorIsApplication(t *testing.T) {
	transport := newHistoryTransport(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":{"message":"invalid asin"}}`)
	})
	_, err := transport.Query(context.Background(), []string{"no-such"})
	if !apperrors.IsCode(err, apperrors.CodeApplication) {
		t.Fatalf("want application error, got %v", err)
	}
}
