// internal/services/gateway_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/javajoker/digistore/internal/config"
)

const maxGatewayResponseBytes = 1 << 20

var ErrMissingCredential = errors.New("seller has no gateway credential")

// GatewayPayment is the gateway's authoritative view of one payment.
type GatewayPayment struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	StatusDetail string          `json:"status_detail"`
	Raw          json.RawMessage `json:"-"`
}

// GatewayClient looks up payment status at the gateway. Implementations must
// honour ctx and may fail at any time.
type GatewayClient interface {
	GetPaymentStatus(ctx context.Context, paymentID, accessToken string) (*GatewayPayment, error)
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// MercadoPagoClient queries GET /v1/payments/{id} with a seller bearer token.
type MercadoPagoClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewMercadoPagoClient(cfg config.GatewayConfig) *MercadoPagoClient {
	return &MercadoPagoClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

func (c *MercadoPagoClient) GetPaymentStatus(ctx context.Context, paymentID, accessToken string) (*GatewayPayment, error) {
	if accessToken == "" {
		return nil, ErrMissingCredential
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gateway rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(paymentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: message}
	}

	var payload struct {
		ID           interface{} `json:"id"`
		Status       string      `json:"status"`
		StatusDetail string      `json:"status_detail"`
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if payload.Status == "" {
		return nil, errors.New("gateway response has no status")
	}

	return &GatewayPayment{
		ID:           gatewayID(payload.ID, paymentID),
		Status:       payload.Status,
		StatusDetail: payload.StatusDetail,
		Raw:          json.RawMessage(body),
	}, nil
}

// Gateway ids arrive as JSON numbers or strings.
func gatewayID(raw interface{}, fallback string) string {
	if raw == nil {
		return fallback
	}
	return fmt.Sprint(raw)
}
