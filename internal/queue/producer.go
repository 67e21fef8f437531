package queue

import (
	"context"
	"encoding/json"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"

	"github.com/go-redis/redis/v8"
)

type Producer struct {
	client *redis.Client
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

// EnqueueProcessingJob hands a notification id to the worker pool. Only the
// id travels on the queue; the worker re-reads the record before acting.
func (p *Producer) EnqueueProcessingJob(ctx context.Context, job model.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.NotificationQueue, data).Err()
}
