package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/velvela/shotcraft/internal/models"
)

const (
	QueueGenerateKeyframe = "queue:generate_keyframe"
	QueueGenerateVideo    = "queue:generate_video"
	QueueNineGrid         = "queue:nine_grid"
	QueueBatchFrames      = "queue:batch_frames"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID        `json:"id"`
	Type      string           `json:"type"`
	ProjectID string           `json:"project_id"`
	ShotID    string           `json:"shot_id,omitempty"`
	Role      models.FrameRole `json:"role,omitempty"`
	Mode      models.BatchMode `json:"mode,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
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

	return &Queue{client: client}, nil
}

// Client exposes the underlying redis client so the project store can share
// the connection.
func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueGenerateKeyframe enqueues a single keyframe generation job
func (q *Queue) EnqueueGenerateKeyframe(ctx context.Context, projectID, shotID string, role models.FrameRole) error {
	job := &Job{
		ID:        uuid.New(),
		Type:      "generate_keyframe",
		ProjectID: projectID,
		ShotID:    shotID,
		Role:      role,
	}
	return q.Enqueue(ctx, QueueGenerateKeyframe, job)
}

// EnqueueGenerateVideo enqueues an interval generation job
func (q *Queue) EnqueueGenerateVideo(ctx context.Context, projectID, shotID string) error {
	job := &Job{
		ID:        uuid.New(),
		Type:      "generate_video",
		ProjectID: projectID,
		ShotID:    shotID,
	}
	return q.Enqueue(ctx, QueueGenerateVideo, job)
}

// EnqueueNineGrid enqueues a nine-grid decomposition job
func (q *Queue) EnqueueNineGrid(ctx context.Context, projectID, shotID string) error {
	job := &Job{
		ID:        uuid.New(),
		Type:      "nine_grid",
		ProjectID: projectID,
		ShotID:    shotID,
	}
	return q.Enqueue(ctx, QueueNineGrid, job)
}

// EnqueueBatchFrames enqueues a batch start-frame generation job
func (q *Queue) EnqueueBatchFrames(ctx context.Context, projectID string, mode models.BatchMode) error {
	job := &Job{
		ID:        uuid.New(),
		Type:      "batch_frames",
		ProjectID: projectID,
		Mode:      mode,
	}
	return q.Enqueue(ctx, QueueBatchFrames, job)
}
