package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
)

type Repository interface {
	CreateNotification(ctx context.Context, n *model.PaymentNotification) error
	GetNotification(ctx context.Context, id int64) (*model.PaymentNotification, error)
	GetNotificationByExternalID(ctx context.Context, externalID string) (*model.PaymentNotification, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status model.NotificationStatus) error
	MarkNotificationProcessed(ctx context.Context, id int64, result *model.PaymentProcessResult, processedAt time.Time) error
	MarkNotificationFailed(ctx context.Context, id int64, errorMessage string, result *model.PaymentProcessResult) error
	GetFailedNotifications(ctx context.Context) ([]model.PaymentNotification, error)

	GetFatherByCardCode(ctx context.Context, cardCode string) (*model.Father, error)
	CreateFather(ctx context.Context, f *model.Father) error
	UpdateFather(ctx context.Context, f *model.Father) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateFatherUsername(ctx context.Context, id int64, username string) error

	GetAPIClient(ctx context.Context, clientID string) (*model.APIClient, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const notificationColumns = `id, external_transaction_id, source, payment_method, payer_code, currency,
	total_amount, detail, status, sap_sync_status, invoice_doc_entry, invoice_doc_num,
	payment_doc_entry, payment_doc_num, error_message, processed_at, created_at, updated_at`

func (r *repository) CreateNotification(ctx context.Context, n *model.PaymentNotification) error {
	detail, err := json.Marshal(n.Detail)
	if err != nil {
		return err
	}

	query := `INSERT INTO payment_notifications
		(external_transaction_id, source, payment_method, payer_code, currency, total_amount, detail, status, sap_sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		n.ExternalTransactionID, n.Source, n.PaymentMethod, n.PayerCode,
		n.Currency, n.TotalAmount, detail, n.Status, n.SapSyncStatus)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = id

	return nil
}

func (r *repository) scanNotification(row *sql.Row) (*model.PaymentNotification, error) {
	var n model.PaymentNotification
	var detail []byte
	err := row.Scan(
		&n.ID, &n.ExternalTransactionID, &n.Source, &n.PaymentMethod, &n.PayerCode,
		&n.Currency, &n.TotalAmount, &detail, &n.Status, &n.SapSyncStatus,
		&n.InvoiceDocEntry, &n.InvoiceDocNum, &n.PaymentDocEntry, &n.PaymentDocNum,
		&n.ErrorMessage, &n.ProcessedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &n.Detail); err != nil {
			return nil, err
		}
	}

	return &n, nil
}

func (r *repository) GetNotification(ctx context.Context, id int64) (*model.PaymentNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM payment_notifications WHERE id = ?`
	n, err := r.scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (r *repository) GetNotificationByExternalID(ctx context.Context, externalID string) (*model.PaymentNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM payment_notifications WHERE external_transaction_id = ?`
	n, err := r.scanNotification(r.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (r *repository) UpdateNotificationStatus(ctx context.Context, id int64, status model.NotificationStatus) error {
	query := `UPDATE payment_notifications SET status = ?, updated_at = NOW() WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *repository) MarkNotificationProcessed(ctx context.Context, id int64, result *model.PaymentProcessResult, processedAt time.Time) error {
	query := `UPDATE payment_notifications
		SET status = ?, sap_sync_status = ?, invoice_doc_entry = ?, invoice_doc_num = ?,
			payment_doc_entry = ?, payment_doc_num = ?, error_message = NULL,
			processed_at = ?, updated_at = NOW()
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		model.NotificationStatusProcessed, model.SapSyncStatusSynced,
		result.InvoiceDocEntry, result.InvoiceDocNum,
		result.PaymentDocEntry, result.PaymentDocNum,
		processedAt, id)
	return err
}

// MarkNotificationFailed stores the error and keeps any invoice document ids
// produced by a partial posting so a resubmission resumes at the payment step.
func (r *repository) MarkNotificationFailed(ctx context.Context, id int64, errorMessage string, result *model.PaymentProcessResult) error {
	var invDocEntry, invDocNum *int64
	if result != nil {
		invDocEntry = result.InvoiceDocEntry
		invDocNum = result.InvoiceDocNum
	}

	query := `UPDATE payment_notifications
		SET status = ?, sap_sync_status = ?, error_message = ?,
			invoice_doc_entry = COALESCE(?, invoice_doc_entry),
			invoice_doc_num = COALESCE(?, invoice_doc_num),
			updated_at = NOW()
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		model.NotificationStatusFailed, model.SapSyncStatusError,
		errorMessage, invDocEntry, invDocNum, id)
	return err
}

func (r *repository) GetFailedNotifications(ctx context.Context) ([]model.PaymentNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM payment_notifications
		WHERE status = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, model.NotificationStatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []model.PaymentNotification
	for rows.Next() {
		var n model.PaymentNotification
		var detail []byte
		err := rows.Scan(
			&n.ID, &n.ExternalTransactionID, &n.Source, &n.PaymentMethod, &n.PayerCode,
			&n.Currency, &n.TotalAmount, &detail, &n.Status, &n.SapSyncStatus,
			&n.InvoiceDocEntry, &n.InvoiceDocNum, &n.PaymentDocEntry, &n.PaymentDocNum,
			&n.ErrorMessage, &n.ProcessedAt, &n.CreatedAt, &n.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &n.Detail); err != nil {
				return nil, err
			}
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (r *repository) GetFatherByCardCode(ctx context.Context, cardCode string) (*model.Father, error) {
	query := `SELECT id, card_code, name, username, password_hash, email, phone, active, created_at, updated_at
		FROM fathers WHERE card_code = ?`

	var f model.Father
	err := r.db.QueryRowContext(ctx, query, cardCode).Scan(
		&f.ID, &f.CardCode, &f.Name, &f.Username, &f.PasswordHash,
		&f.Email, &f.Phone, &f.Active, &f.CreatedAt, &f.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &f, nil
}

func (r *repository) CreateFather(ctx context.Context, f *model.Father) error {
	query := `INSERT INTO fathers (card_code, name, username, password_hash, email, phone, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		f.CardCode, f.Name, f.Username, f.PasswordHash, f.Email, f.Phone, f.Active)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id

	return nil
}

// UpdateFather refreshes the fields owned by the bulk sync. Username and
// password are left alone so existing logins survive upstream renames.
func (r *repository) UpdateFather(ctx context.Context, f *model.Father) error {
	query := `UPDATE fathers SET name = ?, email = ?, phone = ?, active = ?, updated_at = NOW()
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, f.Name, f.Email, f.Phone, f.Active, f.ID)
	return err
}

func (r *repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM fathers WHERE username = ?`
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) UpdateFatherUsername(ctx context.Context, id int64, username string) error {
	query := `UPDATE fathers SET username = ?, updated_at = NOW() WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, username, id)
	return err
}

func (r *repository) GetAPIClient(ctx context.Context, clientID string) (*model.APIClient, error) {
	query := `SELECT id, client_id, secret_hash, active, allowed_sources FROM api_clients WHERE client_id = ?`

	var c model.APIClient
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(
		&c.ID, &c.ClientID, &c.SecretHash, &c.Active, &c.AllowedSources,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}
