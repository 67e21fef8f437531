package erp

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

// Client posts accounting documents to the ERP. A payment notification
// becomes two documents: an invoice closing the referenced order lines, then
// an incoming payment applied in full to that invoice.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	sessions   *SessionManager
	log        zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.ERP.Timeout,
		},
		sessions: NewSessionManager(cfg),
		log:      logger.Get(),
	}
}

// ProcessPaymentNotification runs the two-step posting. When the payment
// step fails after the invoice was created, the result reports
// Success=false while still carrying the invoice ids: the invoice is a real,
// uncompensated side effect that the caller must persist so a retry resumes
// at the payment step instead of creating a second invoice.
func (c *Client) ProcessPaymentNotification(ctx context.Context, req *model.PostingRequest) (*model.PaymentProcessResult, error) {
	result := &model.PaymentProcessResult{}

	invoiceDocEntry := req.InvoiceDocEntry
	invoiceDocNum := req.InvoiceDocNum

	if invoiceDocEntry == nil {
		invoice, err := c.CreateInvoiceFromOrder(ctx, req.PayerCode, req.Currency, req.Detail, req.Reference)
		if err != nil {
			result.Message = fmt.Sprintf("invoice creation failed: %v", err)
			return result, err
		}
		invoiceDocEntry = &invoice.DocEntry
		invoiceDocNum = &invoice.DocNum
	} else {
		c.log.Info().
			Int64("invoice_doc_entry", *invoiceDocEntry).
			Msg("Resuming posting at payment step, invoice already exists")
	}

	result.InvoiceDocEntry = invoiceDocEntry
	result.InvoiceDocNum = invoiceDocNum

	payment, err := c.CreateIncomingPayment(ctx, req.PayerCode, req.TotalAmount,
		req.TransferAccount, *invoiceDocEntry, req.Reference)
	if err != nil {
		result.Message = fmt.Sprintf("payment creation failed: %v", err)
		return result, errors.PartialPostingError{
			InvoiceDocEntry: *invoiceDocEntry,
			InvoiceDocNum:   *invoiceDocNum,
			Err:             err,
		}
	}

	result.Success = true
	result.PaymentDocEntry = &payment.DocEntry
	result.PaymentDocNum = &payment.DocNum

	return result, nil
}

// CreateInvoiceFromOrder posts an invoice whose lines copy pre-existing
// sales-order lines, closing them in the source ledger.
func (c *Client) CreateInvoiceFromOrder(ctx context.Context, payerCode, currency string, detail []model.StudentDebt, reference string) (*model.ERPDocumentResponse, error) {
	var lines []model.ERPInvoiceLine
	for _, student := range detail {
		for _, line := range student.Lines {
			lines = append(lines, model.ERPInvoiceLine{
				BaseType:  17,
				BaseEntry: line.OrderDocEntry,
				BaseLine:  line.LineNum,
			})
		}
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("no order lines to invoice")
	}

	invoice := model.ERPInvoiceRequest{
		CardCode:      payerCode,
		Comments:      reference,
		DocCurrency:   currency,
		DocumentLines: lines,
	}

	var doc model.ERPDocumentResponse
	if err := c.post(ctx, "/Invoices", invoice, &doc); err != nil {
		return nil, err
	}

	c.log.Info().
		Str("payer", payerCode).
		Int64("doc_entry", doc.DocEntry).
		Int64("doc_num", doc.DocNum).
		Msg("Invoice created")

	return &doc, nil
}

// CreateIncomingPayment posts a bank-transfer payment applied in full to the
// given invoice.
func (c *Client) CreateIncomingPayment(ctx context.Context, payerCode string, amount float64, transferAccount string, invoiceDocEntry int64, reference string) (*model.ERPDocumentResponse, error) {
	payment := model.ERPIncomingPaymentRequest{
		CardCode:        payerCode,
		Remarks:         reference,
		TransferAccount: transferAccount,
		TransferSum:     amount,
		PaymentInvoices: []model.ERPPaymentInvoice{
			{
				DocEntry:    invoiceDocEntry,
				SumApplied:  amount,
				InvoiceType: "it_Invoice",
			},
		},
	}

	var doc model.ERPDocumentResponse
	if err := c.post(ctx, "/IncomingPayments", payment, &doc); err != nil {
		return nil, err
	}

	c.log.Info().
		Str("payer", payerCode).
		Float64("amount", amount).
		Int64("doc_entry", doc.DocEntry).
		Msg("Incoming payment created")

	return &doc, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	sessionID, err := c.sessions.GetSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ERP session: %w", err)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ERP.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "B1SESSION", Value: sessionID})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.sessions.Invalidate()
		return errors.ErrSessionExpired
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var erpErr model.ERPErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&erpErr); decodeErr == nil && erpErr.Error.Message.Value != "" {
			return fmt.Errorf("erp rejected %s: %s", path, erpErr.Error.Message.Value)
		}
		return fmt.Errorf("erp returned status %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
