package model

// ExternalAccountRecord is the read-only view of an ERP business partner,
// the unit of upsert for the bulk sync.
type ExternalAccountRecord struct {
	CardCode     string `json:"CardCode"`
	CardName     string `json:"CardName"`
	FederalTaxID string `json:"FederalTaxID"`
	EmailAddress string `json:"EmailAddress"`
	Phone1       string `json:"Phone1"`
	Valid        string `json:"Valid"` // "Y"/"N"
	GroupCode    int    `json:"GroupCode"`
}

func (r *ExternalAccountRecord) Active() bool {
	return r.Valid == "Y"
}

// PostingRequest is the logical "post this payment notification" request
// handled by either the direct ERP client or the connector proxy.
type PostingRequest struct {
	NotificationID  int64         `json:"notification_id"`
	PayerCode       string        `json:"payer_code"`
	Currency        string        `json:"currency"`
	TotalAmount     float64       `json:"total_amount"`
	TransferAccount string        `json:"transfer_account"`
	Reference       string        `json:"reference"`
	Detail          []StudentDebt `json:"detail"`
	// Set when a previous attempt already created the invoice; posting
	// resumes at the payment step.
	InvoiceDocEntry *int64 `json:"invoice_doc_entry,omitempty"`
	InvoiceDocNum   *int64 `json:"invoice_doc_num,omitempty"`
}

// PaymentProcessResult reports the outcome of a two-step posting. When the
// invoice was created but the payment failed, Success is false and the
// invoice ids are still populated; callers must persist them before retrying.
type PaymentProcessResult struct {
	Success         bool   `json:"success"`
	InvoiceDocEntry *int64 `json:"invoice_doc_entry,omitempty"`
	InvoiceDocNum   *int64 `json:"invoice_doc_num,omitempty"`
	PaymentDocEntry *int64 `json:"payment_doc_entry,omitempty"`
	PaymentDocNum   *int64 `json:"payment_doc_num,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Service Layer login payload and response.
type ERPLoginRequest struct {
	CompanyDB string `json:"CompanyDB"`
	UserName  string `json:"UserName"`
	Password  string `json:"Password"`
}

type ERPLoginResponse struct {
	SessionID      string `json:"SessionId"`
	SessionTimeout int    `json:"SessionTimeout"`
}

// Invoice draft against existing order lines. BaseType 17 closes the
// referenced sales-order lines.
type ERPInvoiceRequest struct {
	CardCode      string           `json:"CardCode"`
	Comments      string           `json:"Comments"`
	DocCurrency   string           `json:"DocCurrency,omitempty"`
	DocumentLines []ERPInvoiceLine `json:"DocumentLines"`
}

type ERPInvoiceLine struct {
	BaseType  int   `json:"BaseType"`
	BaseEntry int64 `json:"BaseEntry"`
	BaseLine  int   `json:"BaseLine"`
}

type ERPIncomingPaymentRequest struct {
	CardCode        string              `json:"CardCode"`
	Remarks         string              `json:"Remarks"`
	TransferAccount string              `json:"TransferAccount"`
	TransferSum     float64             `json:"TransferSum"`
	PaymentInvoices []ERPPaymentInvoice `json:"PaymentInvoices"`
}

type ERPPaymentInvoice struct {
	DocEntry    int64   `json:"DocEntry"`
	SumApplied  float64 `json:"SumApplied"`
	InvoiceType string  `json:"InvoiceType"`
}

type ERPDocumentResponse struct {
	DocEntry int64 `json:"DocEntry"`
	DocNum   int64 `json:"DocNum"`
}

type ERPErrorResponse struct {
	Error struct {
		Code    interface{} `json:"code"`
		Message struct {
			Value string `json:"value"`
		} `json:"message"`
	} `json:"error"`
}

type ERPPartnersResponse struct {
	Value []ExternalAccountRecord `json:"value"`
}
