package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"

	"github.com/rs/zerolog"
)

// Client posts payment notifications through the downstream connector
// service instead of the ERP Service Layer directly. The connector accepts
// the same logical request and answers with a code/message pair plus the
// document ids it created.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	log        zerolog.Logger
}

type connectorResponse struct {
	Code            int    `json:"code"`
	Message         string `json:"message"`
	InvoiceDocEntry *int64 `json:"invoice_doc_entry,omitempty"`
	InvoiceDocNum   *int64 `json:"invoice_doc_num,omitempty"`
	PaymentDocEntry *int64 `json:"payment_doc_entry,omitempty"`
	PaymentDocNum   *int64 `json:"payment_doc_num,omitempty"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Connector.Timeout,
		},
		log: logger.Get(),
	}
}

func (c *Client) ProcessPaymentNotification(ctx context.Context, postingReq *model.PostingRequest) (*model.PaymentProcessResult, error) {
	jsonData, err := json.Marshal(postingReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal posting request: %w", err)
	}

	url := c.cfg.Connector.BaseURL + c.cfg.Connector.PaymentEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.Connector.APIKey)

	c.log.Debug().Int64("notification_id", postingReq.NotificationID).Msg("Posting through connector")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connector request failed: %w", err)
	}
	defer resp.Body.Close()

	// 5xx means the connector itself is down, not that it rejected the
	// posting; the caller may resubmit the same request unchanged.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.NewRetryableError(
			fmt.Errorf("connector returned status %d", resp.StatusCode),
			"connector unavailable")
	}

	var connResp connectorResponse
	if err := json.NewDecoder(resp.Body).Decode(&connResp); err != nil {
		return nil, fmt.Errorf("failed to decode connector response: %w", err)
	}

	result := &model.PaymentProcessResult{
		Success:         resp.StatusCode == http.StatusOK && connResp.Code == 0,
		InvoiceDocEntry: connResp.InvoiceDocEntry,
		InvoiceDocNum:   connResp.InvoiceDocNum,
		PaymentDocEntry: connResp.PaymentDocEntry,
		PaymentDocNum:   connResp.PaymentDocNum,
		Message:         connResp.Message,
	}

	if !result.Success {
		return result, fmt.Errorf("connector rejected posting: %s", connResp.Message)
	}

	return result, nil
}
