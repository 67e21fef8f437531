package notification

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/db"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/storage"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"

	"github.com/rs/zerolog"
)

// Poster is the posting backend: the direct ERP document client or the
// connector proxy, selected by configuration.
type Poster interface {
	ProcessPaymentNotification(ctx context.Context, req *model.PostingRequest) (*model.PaymentProcessResult, error)
}

// Enqueuer dispatches accepted notification ids to the processing workers.
type Enqueuer interface {
	EnqueueProcessingJob(ctx context.Context, job model.ProcessingJob) error
}

// Orchestrator accepts payment notifications, guards idempotency, and drives
// each record through its state machine:
//
//	RECEIVED -> PROCESSING -> PROCESSED | FAILED
//
// Acceptance is synchronous; posting runs on the worker consuming the
// processing queue.
type Orchestrator struct {
	cfg      *config.Config
	repo     db.Repository
	poster   Poster
	enqueuer Enqueuer
	archive  storage.Archive
	log      zerolog.Logger
}

func NewOrchestrator(cfg *config.Config, repo db.Repository, poster Poster, enqueuer Enqueuer, archive storage.Archive) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		repo:     repo,
		poster:   poster,
		enqueuer: enqueuer,
		archive:  archive,
		log:      logger.Get(),
	}
}

// Accept validates and persists an incoming notification. Duplicate external
// transaction ids answer with the original record and never enqueue
// processing. The pre-insert lookup is a fast path only; the unique index on
// external_transaction_id is the authoritative guard, and a duplicate-key
// error on insert resolves to the same already-processed answer.
func (o *Orchestrator) Accept(ctx context.Context, req *model.NotificationRequest, rawBody []byte) (*model.AcceptResponse, error) {
	if len(req.Detail) == 0 || totalLines(req.Detail) == 0 {
		return nil, errors.ValidationError{
			Field:   "detail",
			Value:   len(req.Detail),
			Message: "at least one debt line is required",
			Err:     errors.ErrNoDebtLines,
		}
	}

	if req.ExternalTransactionID != nil && *req.ExternalTransactionID != "" {
		existing, err := o.repo.GetNotificationByExternalID(ctx, *req.ExternalTransactionID)
		if err != nil {
			return nil, fmt.Errorf("duplicate check failed: %w", err)
		}
		if existing != nil {
			o.log.Info().
				Str("external_transaction_id", *req.ExternalTransactionID).
				Int64("notification_id", existing.ID).
				Msg("Duplicate notification, returning existing record")
			return &model.AcceptResponse{AlreadyProcessed: true, Notification: existing}, nil
		}
	}

	record := &model.PaymentNotification{
		ExternalTransactionID: req.ExternalTransactionID,
		Source:                req.Source,
		PaymentMethod:         req.PaymentMethod,
		PayerCode:             req.PayerCode,
		Currency:              req.Currency,
		TotalAmount:           TotalAmount(req.Detail),
		Detail:                req.Detail,
		Status:                model.NotificationStatusReceived,
		SapSyncStatus:         model.SapSyncStatusPending,
	}

	if err := o.repo.CreateNotification(ctx, record); err != nil {
		if db.IsDuplicateKey(err) && req.ExternalTransactionID != nil {
			existing, lookupErr := o.repo.GetNotificationByExternalID(ctx, *req.ExternalTransactionID)
			if lookupErr != nil || existing == nil {
				return nil, fmt.Errorf("duplicate insert but lookup failed: %w", err)
			}
			return &model.AcceptResponse{AlreadyProcessed: true, Notification: existing}, nil
		}
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	o.archiveRawPayload(ctx, record.ID, rawBody)

	if err := o.enqueuer.EnqueueProcessingJob(ctx, model.ProcessingJob{NotificationID: record.ID}); err != nil {
		// The record stays in RECEIVED; the caller sees it accepted and a
		// resubmission or manual requeue picks it up.
		o.log.Error().Err(err).Int64("notification_id", record.ID).Msg("Failed to enqueue processing job")
	}

	o.log.Info().
		Int64("notification_id", record.ID).
		Str("payer", record.PayerCode).
		Float64("total", record.TotalAmount).
		Msg("Notification accepted")

	return &model.AcceptResponse{AlreadyProcessed: false, Notification: record}, nil
}

// Process drives one notification through posting. It runs on the worker,
// after the accept response has already been sent: every failure lands in
// the record's error field and is never raised further.
func (o *Orchestrator) Process(ctx context.Context, id int64) error {
	record, err := o.repo.GetNotification(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load notification %d: %w", id, err)
	}
	if record == nil {
		return fmt.Errorf("%w: id %d", errors.ErrNotificationNotFound, id)
	}

	log := o.log.With().Int64("notification_id", id).Logger()

	resumable := record.Status == model.NotificationStatusFailed && record.InvoiceDocEntry != nil && record.PaymentDocEntry == nil
	if record.Status != model.NotificationStatusReceived && !resumable {
		log.Warn().Str("status", string(record.Status)).Msg("Notification not in a processable state, skipping")
		return nil
	}

	if err := o.repo.UpdateNotificationStatus(ctx, id, model.NotificationStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark notification processing: %w", err)
	}

	postingReq := &model.PostingRequest{
		NotificationID:  record.ID,
		PayerCode:       record.PayerCode,
		Currency:        record.Currency,
		TotalAmount:     record.TotalAmount,
		TransferAccount: o.cfg.TransferAccount(record.Source, record.PaymentMethod),
		Reference:       reference(record),
		Detail:          record.Detail,
		InvoiceDocEntry: record.InvoiceDocEntry,
		InvoiceDocNum:   record.InvoiceDocNum,
	}

	result, err := o.poster.ProcessPaymentNotification(ctx, postingReq)
	if err != nil {
		log.Error().Err(err).Msg("Posting failed")
		if markErr := o.repo.MarkNotificationFailed(ctx, id, err.Error(), result); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to record posting failure")
			return markErr
		}
		return nil
	}

	if err := o.repo.MarkNotificationProcessed(ctx, id, result, time.Now()); err != nil {
		log.Error().Err(err).Msg("Failed to record posting success")
		return err
	}

	log.Info().
		Int64("invoice_doc_num", deref(result.InvoiceDocNum)).
		Int64("payment_doc_num", deref(result.PaymentDocNum)).
		Msg("Notification processed")

	return nil
}

// Status is a read-only lookup by external transaction id.
func (o *Orchestrator) Status(ctx context.Context, externalID string) (*model.PaymentNotification, error) {
	record, err := o.repo.GetNotificationByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.ErrNotificationNotFound
	}
	return record, nil
}

func (o *Orchestrator) archiveRawPayload(ctx context.Context, id int64, rawBody []byte) {
	if o.archive == nil || len(rawBody) == 0 {
		return
	}
	key := storage.NotificationKey(id)
	if err := o.archive.Upload(ctx, key, bytes.NewReader(rawBody)); err != nil {
		o.log.Warn().Err(err).Str("key", key).Msg("Failed to archive raw payload")
	}
}

// TotalAmount sums every debt line across all students, to two decimals.
func TotalAmount(detail []model.StudentDebt) float64 {
	var total float64
	for _, student := range detail {
		for _, line := range student.Lines {
			total += line.Amount
		}
	}
	return math.Round(total*100) / 100
}

func totalLines(detail []model.StudentDebt) int {
	count := 0
	for _, student := range detail {
		count += len(student.Lines)
	}
	return count
}

func reference(n *model.PaymentNotification) string {
	if n.ExternalTransactionID != nil {
		return fmt.Sprintf("PN-%d/%s", n.ID, *n.ExternalTransactionID)
	}
	return fmt.Sprintf("PN-%d", n.ID)
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
