package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/services"
)

func TestBatchFillMissingSkipsCompletedStartFrames(t *testing.T) {
	f := newFixture(Options{})
	done := basicShot("shot-1")
	done.StartFrame = completedFrame("shot-1-start", models.FrameRoleStart, "fake://seed/1.png", "p")
	seedProject(f, done, basicShot("shot-2"), basicShot("shot-3"))

	result, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchFillMissing, nil)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if result.Total != 2 || result.Succeeded != 2 || result.Skipped != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if f.images.calls != 2 {
		t.Errorf("image client called %d times, want 2", f.images.calls)
	}
	// The completed shot's frame is untouched.
	if url := getShot(f, "proj-1", "shot-1").StartFrame.ImageURL; *url != "fake://seed/1.png" {
		t.Errorf("skipped shot's frame was modified: %q", *url)
	}
}

func TestBatchRegenerateAllCoversEveryShot(t *testing.T) {
	f := newFixture(Options{})
	done := basicShot("shot-1")
	done.StartFrame = completedFrame("shot-1-start", models.FrameRoleStart, "fake://seed/1.png", "p")
	seedProject(f, done, basicShot("shot-2"))

	result, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchRegenerateAll, nil)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if result.Total != 2 || result.Succeeded != 2 || result.Skipped != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestBatchTransientFailureContinues(t *testing.T) {
	f := newFixture(Options{})
	f.images.err = services.ErrOverloaded
	f.images.errOnce = true // first shot fails, the rest succeed
	seedProject(f, basicShot("shot-1"), basicShot("shot-2"), basicShot("shot-3"))

	result, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchFillMissing, nil)
	if err != nil {
		t.Fatalf("transient failure must not abort the batch: %v", err)
	}

	if result.Failed != 1 || result.Succeeded != 2 || result.Aborted {
		t.Errorf("unexpected result: %+v", result)
	}
	if getShot(f, "proj-1", "shot-1").StartFrame.Status != models.FrameStatusFailed {
		t.Error("failed shot must stay failed")
	}
	if getShot(f, "proj-1", "shot-3").StartFrame.Status != models.FrameStatusCompleted {
		t.Error("later shots must still complete")
	}
}

func TestBatchAuthFailureAborts(t *testing.T) {
	f := newFixture(Options{})
	f.images.err = services.ErrUnauthorized
	seedProject(f, basicShot("shot-1"), basicShot("shot-2"), basicShot("shot-3"))

	result, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchFillMissing, nil)
	if !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	if !result.Aborted {
		t.Error("result must be marked aborted")
	}
	if f.images.calls != 1 {
		t.Errorf("batch must stop after the auth failure, got %d calls", f.images.calls)
	}
	// Untouched shots keep their never-generated state.
	if getShot(f, "proj-1", "shot-2").StartFrame != nil {
		t.Error("shots after the abort point must stay untouched")
	}
}

func TestBatchAuthFailureHandledByGateAbortsSilently(t *testing.T) {
	gate := &fakeGate{handled: true}
	f := newFixture(Options{CredentialGate: gate})
	f.images.err = services.ErrUnauthorized
	seedProject(f, basicShot("shot-1"), basicShot("shot-2"))

	result, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchFillMissing, nil)
	if err != nil {
		t.Fatalf("gate-handled abort must be silent, got %v", err)
	}
	if !result.Aborted {
		t.Error("result must be marked aborted")
	}
	// The shot the gate absorbed is a failed frame, not a success.
	if result.Succeeded != 0 || result.Failed != 1 {
		t.Errorf("aborted shot tallied wrong: %d succeeded, %d failed, want 0/1", result.Succeeded, result.Failed)
	}
	if f.images.calls != 1 {
		t.Errorf("batch must stop at the gate-handled failure, got %d calls", f.images.calls)
	}
}

func TestBatchProgressReporting(t *testing.T) {
	f := newFixture(Options{})
	seedProject(f, basicShot("shot-1"), basicShot("shot-2"))

	var snapshots []models.BatchProgress
	_, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchFillMissing, func(p models.BatchProgress) {
		snapshots = append(snapshots, p)
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if len(snapshots) < 3 {
		t.Fatalf("expected at least 3 progress snapshots, got %d", len(snapshots))
	}
	last := snapshots[len(snapshots)-1]
	if last.Current != 2 || last.Total != 2 || last.Running {
		t.Errorf("final snapshot wrong: %+v", last)
	}

	// The polled view agrees with the callback view.
	polled := f.pipe.Progress("proj-1")
	if polled.Current != 2 || polled.Running {
		t.Errorf("polled progress wrong: %+v", polled)
	}
}

func TestBatchRefusesConcurrentRun(t *testing.T) {
	f := newFixture(Options{Pacer: NewIntervalPacer(50 * time.Millisecond)})
	seedProject(f, basicShot("shot-1"), basicShot("shot-2"), basicShot("shot-3"))

	started := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		_, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchFillMissing, func(models.BatchProgress) {
			select {
			case <-started:
			default:
				close(started)
			}
		})
		finished <- err
	}()

	<-started
	_, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchFillMissing, nil)
	if !IsValidation(err) {
		t.Errorf("second concurrent batch must be refused, got %v", err)
	}

	if err := <-finished; err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
}

func TestBatchUnknownMode(t *testing.T) {
	f := newFixture(Options{})
	seedProject(f, basicShot("shot-1"))

	_, err := f.pipe.BatchGenerateStartFrames(context.Background(), "proj-1", models.BatchMode("everything"), nil)
	if !IsValidation(err) {
		t.Errorf("unknown mode must be a validation error, got %v", err)
	}
}
