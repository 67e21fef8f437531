package model

import "time"

type NotificationStatus string

const (
	NotificationStatusReceived   NotificationStatus = "RECEIVED"
	NotificationStatusProcessing NotificationStatus = "PROCESSING"
	NotificationStatusProcessed  NotificationStatus = "PROCESSED"
	NotificationStatusFailed     NotificationStatus = "FAILED"
)

type SapSyncStatus string

const (
	SapSyncStatusPending SapSyncStatus = "PENDING"
	SapSyncStatusSynced  SapSyncStatus = "SYNCED"
	SapSyncStatusError   SapSyncStatus = "ERROR"
)

// PaymentNotification is the persisted record of an accepted payment event.
// Terminal statuses (PROCESSED, FAILED) are final for the record; a duplicate
// submission is answered from the existing row and never reprocessed.
type PaymentNotification struct {
	ID                    int64              `json:"id" db:"id"`
	ExternalTransactionID *string            `json:"external_transaction_id,omitempty" db:"external_transaction_id"`
	Source                string             `json:"source" db:"source"`
	PaymentMethod         string             `json:"payment_method" db:"payment_method"`
	PayerCode             string             `json:"payer_code" db:"payer_code"`
	Currency              string             `json:"currency" db:"currency"`
	TotalAmount           float64            `json:"total_amount" db:"total_amount"`
	Detail                []StudentDebt      `json:"detail" db:"detail"`
	Status                NotificationStatus `json:"status" db:"status"`
	SapSyncStatus         SapSyncStatus      `json:"sap_sync_status" db:"sap_sync_status"`
	InvoiceDocEntry       *int64             `json:"invoice_doc_entry,omitempty" db:"invoice_doc_entry"`
	InvoiceDocNum         *int64             `json:"invoice_doc_num,omitempty" db:"invoice_doc_num"`
	PaymentDocEntry       *int64             `json:"payment_doc_entry,omitempty" db:"payment_doc_entry"`
	PaymentDocNum         *int64             `json:"payment_doc_num,omitempty" db:"payment_doc_num"`
	ErrorMessage          *string            `json:"error_message,omitempty" db:"error_message"`
	ProcessedAt           *time.Time         `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt             time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at" db:"updated_at"`
}

// StudentDebt groups the debt lines paid for one student.
type StudentDebt struct {
	StudentCode string     `json:"student_code"`
	Lines       []DebtLine `json:"lines"`
}

// DebtLine references one open order line in the ERP.
type DebtLine struct {
	OrderDocEntry int64   `json:"order_doc_entry"`
	LineNum       int     `json:"line_num"`
	Amount        float64 `json:"amount"`
}

func (n *PaymentNotification) Terminal() bool {
	return n.Status == NotificationStatusProcessed || n.Status == NotificationStatusFailed
}
