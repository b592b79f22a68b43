package buyer

import (
	"testing"

	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
)

func TestPrepareShipping(t *testing.T) {
	info := models.ShippingInfo{
		BuyerName:     "Pat Doe",
		StateOrRegion: "New York",
		Phone:         "+1 (512) 555-0134",
	}
	got := prepareShipping(info)

	if got.Name != "Pat Doe" {
		t.Fatalf("expected buyer name fallback, got %q", got.Name)
	}
	if got.StateOrRegion != "NY" {
		t.Fatalf("expected state abbreviated, got %q", got.StateOrRegion)
	}
	if got.Phone != "15125550134" {
		t.Fatalf("expected digits-only phone, got %q", got.Phone)
	}
}

func TestNormalizeState(t *testing.T) {
	cases := []struct{ in, want string }{
		{"tx", "TX"},
		{"Texas", "TX"},
		{"district of columbia", "DC"},
		{"Bavaria", "Bavaria"},
		{" CA ", "CA"},
	}
	for _, tc := range cases {
		if got := normalizeState(tc.in); got != tc.want {
			t.Errorf("normalizeState(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
