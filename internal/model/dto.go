package model

import "time"

// NotificationRequest is the inbound payment notification body.
type NotificationRequest struct {
	ExternalTransactionID *string       `json:"external_transaction_id,omitempty"`
	Source                string        `json:"source"`
	PaymentMethod         string        `json:"payment_method"`
	PayerCode             string        `json:"payer_code"`
	Currency              string        `json:"currency"`
	Detail                []StudentDebt `json:"detail"`
}

// AcceptResponse answers an accept-notification call. AlreadyProcessed marks
// a duplicate external transaction id; the record is the original one.
type AcceptResponse struct {
	AlreadyProcessed bool                 `json:"already_processed"`
	Notification     *PaymentNotification `json:"notification"`
}

// ProcessingJob is the queue message dispatched to the notification worker.
// Only the id travels; the worker re-reads the record.
type ProcessingJob struct {
	NotificationID int64 `json:"notification_id"`
}

type SyncStartResponse struct {
	JobID string `json:"job_id"`
}

// QRRequest asks the bank gateway for a single-use payment QR.
type QRRequest struct {
	PayerName      string    `json:"payer_name"`
	PayerDocument  string    `json:"payer_document"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	Description    string    `json:"description"`
	ExpirationDate time.Time `json:"expiration_date"`
}

type QRResponse struct {
	Success bool   `json:"success"`
	QR      string `json:"qr"`
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

type GatewayAuthResponse struct {
	Token string `json:"token"`
}

// APIClient is the credential record used to authorize inbound calls.
type APIClient struct {
	ID             int64   `json:"id" db:"id"`
	ClientID       string  `json:"client_id" db:"client_id"`
	SecretHash     string  `json:"-" db:"secret_hash"`
	Active         bool    `json:"active" db:"active"`
	AllowedSources *string `json:"allowed_sources,omitempty" db:"allowed_sources"`
}

// Father is the local account record maintained by the bulk sync.
type Father struct {
	ID           int64     `json:"id" db:"id"`
	CardCode     string    `json:"card_code" db:"card_code"`
	Name         string    `json:"name" db:"name"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Email        *string   `json:"email,omitempty" db:"email"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
