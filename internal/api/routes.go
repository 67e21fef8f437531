package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler, auth gin.HandlerFunc) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Payment notification routes; acceptance requires an api client
		v1.POST("/notifications", auth, handler.AcceptNotification)
		v1.GET("/notifications/:external_id", handler.GetNotificationStatus)
		v1.GET("/notifications/:external_id/payload", handler.GetNotificationPayload)

		// Payment QR issuance through the bank gateway
		v1.POST("/payments/qr", auth, handler.GenerateQR)

		// Bulk sync routes
		v1.POST("/sync/fathers", handler.StartFatherSync)
		v1.GET("/sync/jobs/:job_id", handler.GetSyncJobStatus)

		// Reconciliation
		v1.GET("/reports/failed-notifications", handler.FailedNotificationsReport)
	}
}
