package buyer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crossmkt/arbitrage-backend/pkg/config"
	"github.com/crossmkt/arbitrage-backend/pkg/db/models"
	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
)

// HTTPBot delegates a single checkout to the external purchase
// automation service.
type HTTPBot struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPBot(cfg config.BuyerConfig) (*HTTPBot, error) {
	if cfg.BotURL == "" {
		return nil, fmt.Errorf("purchase bot url is required")
	}
	timeout := cfg.BotTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPBot{
		url:    cfg.BotURL,
		apiKey: cfg.BotAPIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type botRequest struct {
	ListingID string              `json:"listing_id"`
	Quantity  int                 `json:"quantity"`
	Shipping  models.ShippingInfo `json:"shipping"`
}

type botResponse struct {
	Status string  `json:"status"`
	Spend  float64 `json:"spend"`
	Reason string  `json:"reason"`
}

// Purchase runs one checkout and returns the realized spend. A "stopped"
// reply means the bot aborted deliberately (price moved, out of stock,
// captcha wall) and maps to the purchase-stopped error code.
func (b *HTTPBot) Purchase(ctx context.Context, destinationID string, quantity int, ship models.ShippingInfo) (float64, error) {
	body, err := json.Marshal(botRequest{
		ListingID: destinationID,
		Quantity:  quantity,
		Shipping:  ship,
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeApplication, err, "building purchase request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeApplication, err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeConnectivity, err, "request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeConnectivity, err, "reading response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return 0, apperrors.New(apperrors.CodeConnectivity, fmt.Sprintf("server error: %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, apperrors.New(apperrors.CodeApplication, fmt.Sprintf("request rejected: %d", resp.StatusCode))
	}

	var reply botResponse
	if err := json.Unmarshal(payload, &reply); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeApplication, err, "decoding response")
	}
	if reply.Status == "stopped" {
		reason := reply.Reason
		if reason == "" {
			reason = "purchase stopped by bot"
		}
		return 0, apperrors.New(apperrors.CodePurchaseStopped, reason)
	}
	if reply.Status != "completed" {
		return 0, apperrors.New(apperrors.CodeApplication, fmt.Sprintf("unexpected bot status %q", reply.Status))
	}
	return reply.Spend, nil
}
