package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"

	"github.com/rs/zerolog"
)

// tokenHolder is the cached bearer token plus its issuance time. The
// provider publishes no expiry; the token is reused until a call fails,
// then refreshed through the single-retry rule in GenerateQR.
type tokenHolder struct {
	token    string
	issuedAt time.Time
}

// Client talks to the bank's QR-generation API.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	mu         sync.RWMutex
	holder     tokenHolder
	log        zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Gateway.Timeout,
		},
		log: logger.Get(),
	}
}

// Authenticate exchanges the configured credentials for a bearer token and
// caches it.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	authData := map[string]string{
		"accountId":     c.cfg.Gateway.AccountID,
		"accountSecret": c.cfg.Gateway.AccountSecret,
	}

	jsonData, err := json.Marshal(authData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth data: %w", err)
	}

	url := c.cfg.Gateway.BaseURL + c.cfg.Gateway.AuthEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", errors.ErrAuthenticationFailed, resp.StatusCode)
	}

	var authResp model.GatewayAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}

	c.mu.Lock()
	c.holder = tokenHolder{token: authResp.Token, issuedAt: time.Now()}
	c.mu.Unlock()

	c.log.Debug().Msg("Gateway token refreshed")

	return authResp.Token, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.holder.token
	c.mu.RUnlock()

	if token != "" {
		return token, nil
	}

	return c.Authenticate(ctx)
}

// GenerateQR creates a single-use payment QR. When the provider rejects the
// call, exactly one re-authentication and one retry of the same request run
// before the failure surfaces; this bounds retry amplification under token
// expiry.
func (c *Client) GenerateQR(ctx context.Context, qrReq *model.QRRequest) (*model.QRResponse, error) {
	if qrReq.Amount <= 0 {
		return nil, errors.ErrInvalidAmount
	}

	currency := NormalizeCurrency(qrReq.Currency)

	payload := map[string]interface{}{
		"payerName":          qrReq.PayerName,
		"payerDocument":      qrReq.PayerDocument,
		"amount":             qrReq.Amount,
		"currency":           currency,
		"description":        qrReq.Description,
		"expirationDate":     qrReq.ExpirationDate.Format("2006-01-02"),
		"destinationAccount": c.destinationAccount(currency),
		"singleUse":          true,
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.sendQRRequest(ctx, token, payload)
	if err == nil {
		return resp, nil
	}

	c.log.Warn().Err(err).Msg("QR generation failed, re-authenticating once")

	token, authErr := c.Authenticate(ctx)
	if authErr != nil {
		return nil, authErr
	}

	return c.sendQRRequest(ctx, token, payload)
}

func (c *Client) sendQRRequest(ctx context.Context, token string, payload map[string]interface{}) (*model.QRResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal QR request: %w", err)
	}

	url := c.cfg.Gateway.BaseURL + c.cfg.Gateway.QREndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create QR request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("QR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.NewRetryableError(
			fmt.Errorf("gateway returned status %d", resp.StatusCode),
			"gateway unavailable")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var qrResp model.QRResponse
	if err := json.NewDecoder(resp.Body).Decode(&qrResp); err != nil {
		return nil, fmt.Errorf("failed to decode QR response: %w", err)
	}

	if !qrResp.Success {
		return nil, fmt.Errorf("gateway rejected QR generation: %s", qrResp.Message)
	}

	return &qrResp, nil
}

func (c *Client) destinationAccount(currency string) string {
	if currency == "USD" {
		return c.cfg.Gateway.DestinationAccUSD
	}
	return c.cfg.Gateway.DestinationAccBOB
}

// NormalizeCurrency expands the single-letter codes the rails send into
// their three-letter equivalents.
func NormalizeCurrency(currency string) string {
	switch currency {
	case "B":
		return "BOB"
	case "U", "$":
		return "USD"
	default:
		return currency
	}
}
