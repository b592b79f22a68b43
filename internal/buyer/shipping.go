package buyer

import (
	"strings"

	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
)

var stateAbbreviations = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
	"puerto rico": "PR",
}

// prepareShipping normalizes an order's shipping block into the form the
// purchase bot submits: full state names collapse to two-letter codes,
// phone keeps digits only, and the recipient name falls back to the
// buyer name when the address block omits one.
func prepareShipping(info models.ShippingInfo) models.ShippingInfo {
	out := info
	if out.Name == "" {
		out.Name = out.BuyerName
	}
	out.StateOrRegion = normalizeState(out.StateOrRegion)
	out.Phone = phoneDigits(out.Phone)
	return out
}

func normalizeState(state string) string {
	trimmed := strings.TrimSpace(state)
	if len(trimmed) == 2 {
		return strings.ToUpper(trimmed)
	}
	if abbr, ok := stateAbbreviations[strings.ToLower(trimmed)]; ok {
		return abbr
	}
	return trimmed
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
