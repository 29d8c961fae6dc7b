package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aidobe/assembly/internal/models"
	"github.com/go-redis/redis/v8"
)

// Cache is a short-TTL read cache for job status projections. Status reads
// dominate traffic while a render is in flight (clients poll), so serving
// them from Redis keeps the job store off the hot path. Entries expire on
// their own; a read may lag a write by at most the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func jobKey(id string) string {
	return "job:" + id
}

// GetJob returns the cached projection for a job id, or false on miss.
// Cache failures degrade to a miss — the store remains the source of truth.
func (c *Cache) GetJob(ctx context.Context, id string) (*models.VideoJob, bool) {
	data, err := c.client.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("[Cache] Get failed for job %s: %v", id, err)
		return nil, false
	}

	var job models.VideoJob
	if err := json.Unmarshal(data, &job); err != nil {
		log.Printf("[Cache] Corrupt entry for job %s: %v", id, err)
		return nil, false
	}

	return &job, true
}

// SetJob caches a job projection with the configured TTL. Best effort.
func (c *Cache) SetJob(ctx context.Context, job *models.VideoJob) {
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, jobKey(job.ID), data, c.ttl).Err(); err != nil {
		log.Printf("[Cache] Set failed for job %s: %v", job.ID, err)
	}
}

// Invalidate drops the cached projection after a locally initiated mutation
// (cancel), so the caller reads their own write immediately.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, jobKey(id)).Err(); err != nil {
		log.Printf("[Cache] Invalidate failed for job %s: %v", id, err)
	}
}
