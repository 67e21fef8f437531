package worker

import (
	"context"
	"encoding/json"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/notification"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/queue"

	"github.com/rs/zerolog"
)

// NotificationWorker consumes accepted notification ids from the processing
// queue and drives each through the orchestrator's state machine on a
// bounded pool.
type NotificationWorker struct {
	cfg          *config.Config
	orchestrator *notification.Orchestrator
	consumer     *queue.Consumer
	workerPool   *WorkerPool
	log          zerolog.Logger
}

func NewNotificationWorker(
	cfg *config.Config,
	orchestrator *notification.Orchestrator,
	redisClient *queue.RedisClient,
) *NotificationWorker {
	return &NotificationWorker{
		cfg:          cfg,
		orchestrator: orchestrator,
		consumer:     queue.NewConsumer(redisClient, cfg),
		workerPool:   NewWorkerPool(cfg.Workers.Notification.Count),
		log:          logger.Get(),
	}
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting notification worker")

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeNotificationQueue(ctx, w.handleMessage)
}

func (w *NotificationWorker) Stop() {
	w.log.Info().Msg("Stopping notification worker")
	w.workerPool.Stop()
}

func (w *NotificationWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal processing job")
		return err
	}

	w.log.Info().Int64("notification_id", job.NotificationID).Msg("Processing notification")

	// A failed hand-off propagates to the consumer, which parks the message
	// on the DLQ instead of dropping the notification in RECEIVED.
	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		return w.orchestrator.Process(ctx, job.NotificationID)
	})
}
