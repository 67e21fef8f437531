package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
)

type erpServer struct {
	loginCount   int
	invoiceCount int
	paymentCount int
	failInvoice  bool
	failPayment  bool

	lastInvoice model.ERPInvoiceRequest
	lastPayment model.ERPIncomingPaymentRequest
}

func (s *erpServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/Login", func(w http.ResponseWriter, r *http.Request) {
		s.loginCount++
		http.SetCookie(w, &http.Cookie{Name: "B1SESSION", Value: "session-1"})
		json.NewEncoder(w).Encode(model.ERPLoginResponse{SessionID: "session-1", SessionTimeout: 30})
	})

	mux.HandleFunc("/Invoices", func(w http.ResponseWriter, r *http.Request) {
		s.invoiceCount++
		if s.failInvoice {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":{"value":"order line already closed"}}}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&s.lastInvoice)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.ERPDocumentResponse{DocEntry: 900, DocNum: 1900})
	})

	mux.HandleFunc("/IncomingPayments", func(w http.ResponseWriter, r *http.Request) {
		s.paymentCount++
		if s.failPayment {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":{"value":"transfer account is locked"}}}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&s.lastPayment)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.ERPDocumentResponse{DocEntry: 901, DocNum: 2900})
	})

	return mux
}

func erpTestConfig(baseURL string) *config.Config {
	return &config.Config{
		ERP: config.ERPConfig{
			BaseURL:         baseURL,
			CompanyDB:       "SBO_COLEGIO",
			Username:        "integration",
			Password:        "secret",
			SessionLifetime: 30 * time.Minute,
			Timeout:         5 * time.Second,
		},
	}
}

func postingRequest() *model.PostingRequest {
	return &model.PostingRequest{
		NotificationID:  1,
		PayerCode:       "C001",
		Currency:        "BOB",
		TotalAmount:     50.00,
		TransferAccount: "1100101",
		Reference:       "PN-1/TX1",
		Detail: []model.StudentDebt{
			{StudentCode: "S1", Lines: []model.DebtLine{{OrderDocEntry: 100, LineNum: 0, Amount: 50.00}}},
		},
	}
}

func TestProcessPaymentNotificationTwoSteps(t *testing.T) {
	server := &erpServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := NewClient(erpTestConfig(ts.URL))

	result, err := client.ProcessPaymentNotification(context.Background(), postingRequest())

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(900), *result.InvoiceDocEntry)
	assert.Equal(t, int64(1900), *result.InvoiceDocNum)
	assert.Equal(t, int64(901), *result.PaymentDocEntry)
	assert.Equal(t, int64(2900), *result.PaymentDocNum)

	assert.Equal(t, 1, server.loginCount)
	assert.Equal(t, 1, server.invoiceCount)
	assert.Equal(t, 1, server.paymentCount)

	// Invoice lines must reference the order lines, closing them.
	assert.Len(t, server.lastInvoice.DocumentLines, 1)
	assert.Equal(t, 17, server.lastInvoice.DocumentLines[0].BaseType)
	assert.Equal(t, int64(100), server.lastInvoice.DocumentLines[0].BaseEntry)

	// Payment applies the full amount to the created invoice.
	assert.Len(t, server.lastPayment.PaymentInvoices, 1)
	assert.Equal(t, int64(900), server.lastPayment.PaymentInvoices[0].DocEntry)
	assert.Equal(t, 50.00, server.lastPayment.PaymentInvoices[0].SumApplied)
}

func TestInvoiceFailureSkipsPayment(t *testing.T) {
	server := &erpServer{failInvoice: true}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := NewClient(erpTestConfig(ts.URL))

	result, err := client.ProcessPaymentNotification(context.Background(), postingRequest())

	assert.Error(t, err)
	assert.False(t, result.Success)
	assert.Nil(t, result.InvoiceDocEntry)
	assert.Equal(t, 0, server.paymentCount, "payment must never be attempted after an invoice failure")
}

func TestPaymentFailureCarriesInvoiceIDs(t *testing.T) {
	server := &erpServer{failPayment: true}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := NewClient(erpTestConfig(ts.URL))

	result, err := client.ProcessPaymentNotification(context.Background(), postingRequest())

	assert.False(t, result.Success)
	assert.Equal(t, int64(900), *result.InvoiceDocEntry)
	assert.Nil(t, result.PaymentDocEntry)

	var partial errors.PartialPostingError
	assert.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(900), partial.InvoiceDocEntry)
}

func TestResumeSkipsInvoiceCreation(t *testing.T) {
	server := &erpServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := NewClient(erpTestConfig(ts.URL))

	req := postingRequest()
	docEntry, docNum := int64(900), int64(1900)
	req.InvoiceDocEntry = &docEntry
	req.InvoiceDocNum = &docNum

	result, err := client.ProcessPaymentNotification(context.Background(), req)

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, server.invoiceCount, "resume must not create a second invoice")
	assert.Equal(t, 1, server.paymentCount)
	assert.Equal(t, int64(900), *result.InvoiceDocEntry)
}

func TestSessionReusedWithinLifetime(t *testing.T) {
	server := &erpServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	client := NewClient(erpTestConfig(ts.URL))

	_, err := client.ProcessPaymentNotification(context.Background(), postingRequest())
	assert.NoError(t, err)
	_, err = client.ProcessPaymentNotification(context.Background(), postingRequest())
	assert.NoError(t, err)

	assert.Equal(t, 1, server.loginCount, "a valid session must be reused across postings")
}

func TestSessionReloginAfterExpiry(t *testing.T) {
	server := &erpServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	cfg := erpTestConfig(ts.URL)
	cfg.ERP.SessionLifetime = 200 * time.Millisecond
	client := NewClient(cfg)

	_, err := client.ProcessPaymentNotification(context.Background(), postingRequest())
	assert.NoError(t, err)

	time.Sleep(300 * time.Millisecond)

	_, err = client.ProcessPaymentNotification(context.Background(), postingRequest())
	assert.NoError(t, err)

	assert.Equal(t, 2, server.loginCount, "an expired session must trigger a fresh login")
}
