package finder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

// HTTPCatalog enumerates a paginated catalog endpoint. Each page is a
// JSON document with the item rows and a continuation flag.
type HTTPCatalog struct {
	url    string
	client *http.Client
}

func NewHTTPCatalog(catalogURL string) (*HTTPCatalog, error) {
	if catalogURL == "" {
		return nil, fmt.Errorf("catalog url is required")
	}
	if _, err := url.Parse(catalogURL); err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	return &HTTPCatalog{
		url:    catalogURL,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *HTTPCatalog) FetchPage(ctx context.Context, proxy string, page int) ([]CatalogItem, bool, error) {
	target, err := url.Parse(c.url)
	if err != nil {
		return nil, false, err
	}
	query := target.Query()
	query.Set("page", strconv.Itoa(page))
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, false, err
	}

	client := c.client
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, false, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		client = &http.Client{
			Timeout:   c.client.Timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("catalog page %d: status %d", page, resp.StatusCode)
	}

	var body struct {
		Items []struct {
			ASIN  string `json:"asin"`
			Title string `json:"title"`
		} `json:"items"`
		HasMore bool `json:"has_more"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("decoding catalog page %d: %w", page, err)
	}

	items := make([]CatalogItem, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, CatalogItem{ASIN: item.ASIN, Title: item.Title})
	}
	return items, body.HasMore, nil
}

// RotatingProxies hands out pool members round-robin after a liveness
// probe. A proxy that fails its probe is skipped for the call; the
// finder's try budget decides when to give up.
type RotatingProxies struct {
	pool     []string
	probeURL string
	client   *http.Client
	next     atomic.Uint64
}

func NewRotatingProxies(pool []string, probeURL string) (*RotatingProxies, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("proxy pool is empty")
	}
	return &RotatingProxies{
		pool:     pool,
		probeURL: probeURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (r *RotatingProxies) Select(ctx context.Context) (string, error) {
	proxy := r.pool[int(r.next.Add(1)-1)%len(r.pool)]
	if r.probeURL == "" {
		return proxy, nil
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return "", fmt.Errorf("invalid proxy %q: %w", proxy, err)
	}
	client := &http.Client{
		Timeout:   r.client.Timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.probeURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("proxy %s failed probe: %w", proxy, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("proxy %s failed probe: status %d", proxy, resp.StatusCode)
	}
	return proxy, nil
}
