package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	stderrors "errors"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/notification"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/report"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/storage"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/syncjob"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// QRGenerator issues single-use payment QR codes through the bank gateway.
type QRGenerator interface {
	GenerateQR(ctx context.Context, req *model.QRRequest) (*model.QRResponse, error)
}

type Handler struct {
	orchestrator *notification.Orchestrator
	engine       *syncjob.Engine
	reports      *report.Builder
	qr           QRGenerator
	archive      storage.Archive
	cfg          *config.Config
	log          zerolog.Logger
}

// NewHandler wires the HTTP surface. archive may be nil when payload
// archiving is disabled; the payload endpoint then answers 404.
func NewHandler(
	orchestrator *notification.Orchestrator,
	engine *syncjob.Engine,
	reports *report.Builder,
	qr QRGenerator,
	archive storage.Archive,
	cfg *config.Config,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		engine:       engine,
		reports:      reports,
		qr:           qr,
		archive:      archive,
		cfg:          cfg,
		log:          logger.Get(),
	}
}

// AcceptNotification takes a payment notification from a rail and answers as
// soon as the record is persisted; posting happens on the worker.
func (h *Handler) AcceptNotification(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	var req model.NotificationRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.orchestrator.Accept(c.Request.Context(), &req, rawBody)
	if err != nil {
		var validationErr errors.ValidationError
		if stderrors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
			return
		}
		h.log.Error().Err(err).Msg("Failed to accept notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetNotificationStatus(c *gin.Context) {
	externalID := c.Param("external_id")

	record, err := h.orchestrator.Status(c.Request.Context(), externalID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		h.log.Error().Err(err).Str("external_id", externalID).Msg("Failed to get notification status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// GetNotificationPayload streams the archived raw payload of an accepted
// notification back out, for audit and manual reconciliation.
func (h *Handler) GetNotificationPayload(c *gin.Context) {
	externalID := c.Param("external_id")

	record, err := h.orchestrator.Status(c.Request.Context(), externalID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		h.log.Error().Err(err).Str("external_id", externalID).Msg("Failed to look up notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payload archiving is disabled"})
		return
	}

	key := storage.NotificationKey(record.ID)
	exists, err := h.archive.Exists(c.Request.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Archive lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payload not archived"})
		return
	}

	body, err := h.archive.Download(c.Request.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Archive download failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, "application/json", body, nil)
}

// StartFatherSync runs or launches a bulk account sync depending on the
// background flag.
func (h *Handler) StartFatherSync(c *gin.Context) {
	var filters model.SyncFilters
	if err := c.ShouldBindJSON(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, jobID, err := h.engine.SyncAll(c.Request.Context(), filters)
	if err != nil {
		h.log.Error().Err(err).Msg("Bulk sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Bulk sync failed"})
		return
	}

	if filters.Background {
		c.JSON(http.StatusAccepted, model.SyncStartResponse{JobID: jobID})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetSyncJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.engine.JobStatus(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sync job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GenerateQR asks the bank gateway for a single-use payment QR on behalf of
// a payer.
func (h *Handler) GenerateQR(c *gin.Context) {
	var req model.QRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.qr.GenerateQR(c.Request.Context(), &req)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be greater than zero"})
			return
		}
		h.log.Error().Err(err).Str("payer", req.PayerDocument).Msg("QR generation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "QR generation failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) FailedNotificationsReport(c *gin.Context) {
	buf, err := h.reports.FailedNotifications(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="failed_notifications.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}
