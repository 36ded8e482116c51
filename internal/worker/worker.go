package worker

import (
	"context"
	"log"
	"time"

	"github.com/velvela/shotcraft/internal/pipeline"
	"github.com/velvela/shotcraft/internal/queue"
)

// Worker drains the generation queues and runs the network-bound half of
// each job against the pipeline. The synchronous Begin step already ran in
// the HTTP handler, so by the time a job lands here its frame or interval is
// visible as generating.
type Worker struct {
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
}

func New(q *queue.Queue, p *pipeline.Pipeline) *Worker {
	return &Worker{queue: q, pipeline: p}
}

// Start begins processing jobs from all queues. Blocks until ctx is done.
// Batch jobs get a single dedicated loop: batches are sequential by design
// and must not compete with themselves.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueGenerateKeyframe, w.handleGenerateKeyframe)
		go w.processQueue(ctx, queue.QueueGenerateVideo, w.handleGenerateVideo)
		go w.processQueue(ctx, queue.QueueNineGrid, w.handleNineGrid)
	}
	go w.processQueue(ctx, queue.QueueBatchFrames, w.handleBatchFrames)

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, project: %s)", job.ID, job.Type, job.ProjectID)

			if err := handler(ctx, job); err != nil {
				// Terminal state and render-log entry were already written by
				// the pipeline; this is for operator visibility only.
				log.Printf("Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("Job %s completed successfully", job.ID)
			}
		}
	}
}

func (w *Worker) handleGenerateKeyframe(ctx context.Context, job *queue.Job) error {
	return w.pipeline.ExecuteKeyframe(ctx, job.ProjectID, job.ShotID, job.Role)
}

func (w *Worker) handleGenerateVideo(ctx context.Context, job *queue.Job) error {
	return w.pipeline.ExecuteVideo(ctx, job.ProjectID, job.ShotID)
}

func (w *Worker) handleNineGrid(ctx context.Context, job *queue.Job) error {
	return w.pipeline.GenerateNineGrid(ctx, job.ProjectID, job.ShotID)
}

func (w *Worker) handleBatchFrames(ctx context.Context, job *queue.Job) error {
	_, err := w.pipeline.BatchGenerateStartFrames(ctx, job.ProjectID, job.Mode, nil)
	return err
}
