package keepa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
)

const (
	historyEndpoint = "https://api.keepa.com/product"

	// Time values in the history API are minutes offset from this base.
	epochOffsetMinutes = 21564000

	// Indexes into the per-product series array.
	seriesPlatformPrice = 0
	seriesSalesRank     = 3
	seriesOfferCount    = 11
)

// HTTPTransport queries the sales-history API. One request covers a
// whole batch of ASINs.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	domain   string
	client   *http.Client
}

func NewHTTPTransport(cfg config.KeepaConfig) (*HTTPTransport, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("keepa api key is required")
	}
	return &HTTPTransport{
		endpoint: historyEndpoint,
		apiKey:   cfg.APIKey,
		domain:   "1",
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (t *HTTPTransport) Query(ctx context.Context, asins []string) ([]ProductHistory, error) {
	if len(asins) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("key", t.apiKey)
	query.Set("domain", t.domain)
	query.Set("asin", strings.Join(asins, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeApplication, err, "building request")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConnectivity, err, "request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConnectivity, err, "reading response")
	}
	// Token exhaustion is transient, the bucket refills over time.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, apperrors.New(apperrors.CodeConnectivity, fmt.Sprintf("server error: %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperrors.New(apperrors.CodeApplication, fmt.Sprintf("request rejected: %d", resp.StatusCode))
	}

	var reply productResponse
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeApplication, err, "decoding response")
	}
	if reply.Error != nil && reply.Error.Message != "" {
		return nil, apperrors.New(apperrors.CodeApplication, "history query rejected: "+reply.Error.Message)
	}

	out := make([]ProductHistory, 0, len(reply.Products))
	for _, product := range reply.Products {
		out = append(out, product.toHistory())
	}
	return out, nil
}

type productResponse struct {
	Products []productJSON `json:"products"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type productJSON struct {
	ASIN string `json:"asin"`
	// Series are flat [time, value, time, value, ...] pairs, indexed by
	// series kind. Value -1 marks a gap.
	Series []json.RawMessage `json:"csv"`
}

func (p productJSON) toHistory() ProductHistory {
	history := ProductHistory{
		ASIN:        p.ASIN,
		SalesRank:   decodeSeries(p.series(seriesSalesRank)),
		OfferCounts: decodeSeries(p.series(seriesOfferCount)),
	}
	// The platform sells the item whenever its own price series has a
	// value; the last such point approximates the last platform sale.
	for _, sample := range decodeSeries(p.series(seriesPlatformPrice)) {
		when := sample.Time
		history.LastPlatformSale = &when
	}
	return history
}

func (p productJSON) series(index int) []int64 {
	if index >= len(p.Series) {
		return nil
	}
	var pairs []int64
	if err := json.Unmarshal(p.Series[index], &pairs); err != nil {
		return nil
	}
	return pairs
}

func decodeSeries(pairs []int64) []Sample {
	var samples []Sample
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] < 0 {
			continue
		}
		samples = append(samples, Sample{
			Time:  time.Unix((pairs[i]+epochOffsetMinutes)*60, 0).UTC(),
			Value: int(pairs[i+1]),
		})
	}
	return samples
}
