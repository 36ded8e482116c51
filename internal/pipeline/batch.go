package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/services"
)

// defaultBatchInterval spaces sequential image calls far enough apart to stay
// under the image provider's per-minute quota.
const defaultBatchInterval = 8 * time.Second

// Pacer throttles the batch loop. Wait blocks until the next call is allowed
// or the context is cancelled.
type Pacer interface {
	Wait(ctx context.Context) error
}

type intervalPacer struct {
	limiter *rate.Limiter
}

// NewIntervalPacer returns a Pacer that admits one call per interval, with a
// burst of one so the first shot starts immediately.
func NewIntervalPacer(interval time.Duration) Pacer {
	return &intervalPacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *intervalPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// BatchResult summarizes a finished (or aborted) batch run.
type BatchResult struct {
	Total     int  `json:"total"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Aborted   bool `json:"aborted"`
}

// ProgressFunc receives a snapshot after every shot the batch touches.
type ProgressFunc func(models.BatchProgress)

// BatchGenerateStartFrames walks the project's shots in narrative order and
// generates start keyframes one at a time, paced by the pipeline's Pacer.
// fill_missing skips shots that already have a completed start frame;
// regenerate_all regenerates every shot. A transient provider failure marks
// that shot failed and moves on; an authorization failure aborts the whole
// run, since every remaining call would fail the same way.
func (p *Pipeline) BatchGenerateStartFrames(ctx context.Context, projectID string, mode models.BatchMode, progressFn ProgressFunc) (*BatchResult, error) {
	switch mode {
	case models.BatchFillMissing, models.BatchRegenerateAll:
	default:
		return nil, validationf("unknown batch mode %q", mode)
	}

	p.batchMu.Lock()
	if p.batchRun[projectID] {
		p.batchMu.Unlock()
		return nil, validationf("a batch is already running for project %s", projectID)
	}
	p.batchRun[projectID] = true
	p.batchMu.Unlock()
	p.authTripped.Store(false)
	defer func() {
		p.batchMu.Lock()
		p.batchRun[projectID] = false
		if prog := p.batches[projectID]; prog != nil {
			prog.Running = false
			prog.UpdatedAt = time.Now()
		}
		p.batchMu.Unlock()
	}()

	project, err := p.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var targets []string
	skipped := 0
	for i := range project.Shots {
		shot := &project.Shots[i]
		if mode == models.BatchFillMissing {
			if sf := shot.StartFrame; sf != nil && sf.Status == models.FrameStatusCompleted {
				skipped++
				continue
			}
		}
		targets = append(targets, shot.ID)
	}

	result := &BatchResult{Total: len(targets), Skipped: skipped}
	log.Printf("[Batch] Project %s: %d shots to generate (%d skipped, mode=%s)", projectID, len(targets), skipped, mode)

	report := func(current int, message string, aborted bool) {
		prog := models.BatchProgress{
			Running:   !aborted && current < len(targets),
			Current:   current,
			Total:     len(targets),
			Message:   message,
			Aborted:   aborted,
			UpdatedAt: time.Now(),
		}
		p.batchMu.Lock()
		snapshot := prog
		p.batches[projectID] = &snapshot
		p.batchMu.Unlock()
		if progressFn != nil {
			progressFn(prog)
		}
	}
	report(0, "starting", false)

	for i, shotID := range targets {
		if err := p.pacer.Wait(ctx); err != nil {
			report(i, "cancelled", true)
			result.Aborted = true
			return result, err
		}

		genErr := p.GenerateKeyframe(ctx, projectID, shotID, models.FrameRoleStart)
		switch {
		case genErr == nil && p.credsTripped():
			// A gate-handled auth failure comes back as nil but leaves the
			// frame failed with no message. Check the flag the gate sets
			// before tallying, or the aborted shot counts as succeeded.
			result.Failed++
			result.Aborted = true
			report(i+1, "aborted, authorization failed", true)
			log.Printf("[Batch] Project %s aborted at shot %s: credential gate tripped", projectID, shotID)
			return result, nil
		case genErr == nil:
			result.Succeeded++
		case errors.Is(genErr, services.ErrUnauthorized):
			// GenerateKeyframe swallows the error when the credential gate
			// handled it, so reaching here means no gate is wired. Either
			// way the run stops: every remaining call shares the credential.
			result.Failed++
			result.Aborted = true
			report(i+1, "aborted, authorization failed", true)
			log.Printf("[Batch] Project %s aborted at shot %s: authorization failed", projectID, shotID)
			return result, genErr
		default:
			result.Failed++
			log.Printf("[Batch] Shot %s failed, continuing: %v", shotID, genErr)
		}

		report(i+1, fmt.Sprintf("shot %d of %d done", i+1, len(targets)), false)
	}

	report(len(targets), "finished", false)
	log.Printf("[Batch] Project %s finished: %d ok, %d failed, %d skipped", projectID, result.Succeeded, result.Failed, result.Skipped)
	return result, nil
}

// Progress returns the last reported batch progress for a project, or a zero
// snapshot if no batch has run.
func (p *Pipeline) Progress(projectID string) models.BatchProgress {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	if prog := p.batches[projectID]; prog != nil {
		return *prog
	}
	return models.BatchProgress{}
}
