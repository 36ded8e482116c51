package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/services"
)

func shotWithStartFrame(f *fixture, id string) models.Shot {
	shot := basicShot(id)
	url := f.blobs.put("seed/"+id+"/start.png", []byte("start-image-bytes"))
	shot.StartFrame = completedFrame(id+"-start", models.FrameRoleStart, url, "start prompt")
	return shot
}

func TestGenerateVideoRequiresCompletedStartFrame(t *testing.T) {
	f := newFixture(Options{})
	shot := basicShot("shot-1")
	shot.StartFrame = &models.Keyframe{
		ID:     "shot-1-start",
		Role:   models.FrameRoleStart,
		Status: models.FrameStatusFailed,
	}
	seedProject(f, shot)

	err := f.pipe.GenerateVideo(context.Background(), "proj-1", "shot-1", VideoOptions{})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got := getShot(f, "proj-1", "shot-1")
	if got.Interval != nil {
		t.Errorf("rejected request must not create an interval, got %+v", got.Interval)
	}
	if len(f.veo.requests) != 0 {
		t.Errorf("no video call expected, got %d", len(f.veo.requests))
	}
}

func TestGenerateVideoSingleImageMode(t *testing.T) {
	f := newFixture(Options{})
	seedProject(f, shotWithStartFrame(f, "shot-1"))
	ctx := context.Background()

	if err := f.pipe.GenerateVideo(ctx, "proj-1", "shot-1", VideoOptions{}); err != nil {
		t.Fatalf("GenerateVideo failed: %v", err)
	}

	if len(f.veo.requests) != 1 {
		t.Fatalf("video client called %d times, want 1", len(f.veo.requests))
	}
	req := f.veo.requests[0]
	if string(req.StartImage) != "start-image-bytes" {
		t.Errorf("start image bytes not passed through")
	}
	if req.EndImage != nil {
		t.Errorf("single-image mode must not carry an end image")
	}
	if !strings.Contains(req.Prompt, "A fisherman unties his boat") {
		t.Errorf("video prompt missing action summary: %q", req.Prompt)
	}

	shot := getShot(f, "proj-1", "shot-1")
	interval := shot.Interval
	if interval == nil || interval.Status != models.FrameStatusCompleted {
		t.Fatalf("interval not completed: %+v", interval)
	}
	if interval.VideoURL == nil || *interval.VideoURL != "fake://proj-1/shot-1/clip.mp4" {
		t.Errorf("unexpected video url: %v", interval.VideoURL)
	}
	if interval.EndFrameID != nil {
		t.Errorf("single-image interval must not reference an end frame")
	}
	if interval.StartFrameID != "shot-1-start" {
		t.Errorf("interval start frame id = %q", interval.StartFrameID)
	}
}

func TestGenerateVideoDualImageMode(t *testing.T) {
	f := newFixture(Options{})
	shot := shotWithStartFrame(f, "shot-1")
	endURL := f.blobs.put("seed/shot-1/end.png", []byte("end-image-bytes"))
	shot.EndFrame = completedFrame("shot-1-end", models.FrameRoleEnd, endURL, "end prompt")
	seedProject(f, shot)

	if err := f.pipe.GenerateVideo(context.Background(), "proj-1", "shot-1", VideoOptions{}); err != nil {
		t.Fatalf("GenerateVideo failed: %v", err)
	}

	req := f.veo.requests[0]
	if string(req.EndImage) != "end-image-bytes" {
		t.Errorf("dual mode must pass the end frame bytes, got %q", req.EndImage)
	}

	interval := getShot(f, "proj-1", "shot-1").Interval
	if interval.EndFrameID == nil || *interval.EndFrameID != "shot-1-end" {
		t.Errorf("dual-image interval must reference the end frame, got %v", interval.EndFrameID)
	}
}

func TestGenerateVideoIncompleteEndFrameStaysSingleMode(t *testing.T) {
	f := newFixture(Options{})
	shot := shotWithStartFrame(f, "shot-1")
	shot.EndFrame = &models.Keyframe{
		ID:     "shot-1-end",
		Role:   models.FrameRoleEnd,
		Status: models.FrameStatusGenerating,
	}
	seedProject(f, shot)

	if err := f.pipe.GenerateVideo(context.Background(), "proj-1", "shot-1", VideoOptions{}); err != nil {
		t.Fatalf("GenerateVideo failed: %v", err)
	}

	if req := f.veo.requests[0]; req.EndImage != nil {
		t.Errorf("incomplete end frame must not select dual mode")
	}
}

func TestGenerateVideoProviderFailure(t *testing.T) {
	f := newFixture(Options{})
	f.veo.err = services.ErrContentRejected
	seedProject(f, shotWithStartFrame(f, "shot-1"))

	err := f.pipe.GenerateVideo(context.Background(), "proj-1", "shot-1", VideoOptions{})
	if !errors.Is(err, services.ErrContentRejected) {
		t.Fatalf("expected content rejection, got %v", err)
	}

	interval := getShot(f, "proj-1", "shot-1").Interval
	if interval.Status != models.FrameStatusFailed {
		t.Errorf("status = %s, want failed", interval.Status)
	}
	if interval.VideoURL != nil {
		t.Error("failed interval must not carry a video url")
	}
	if interval.ErrorMessage == nil {
		t.Error("failed interval must carry an error message")
	}
}

func TestGenerateVideoOptionsApplied(t *testing.T) {
	f := newFixture(Options{})
	seedProject(f, shotWithStartFrame(f, "shot-1"))

	duration := 9
	if err := f.pipe.GenerateVideo(context.Background(), "proj-1", "shot-1", VideoOptions{DurationSec: &duration}); err != nil {
		t.Fatalf("GenerateVideo failed: %v", err)
	}

	if req := f.veo.requests[0]; req.DurationSec != 9 {
		t.Errorf("duration = %d, want 9", req.DurationSec)
	}
	if interval := getShot(f, "proj-1", "shot-1").Interval; interval.DurationSec != 9 {
		t.Errorf("stored duration = %d, want 9", interval.DurationSec)
	}
}

func TestGenerateVideoUnknownModel(t *testing.T) {
	f := newFixture(Options{})
	shot := shotWithStartFrame(f, "shot-1")
	shot.VideoModel = models.VideoModelGrok // not registered in the fixture
	seedProject(f, shot)

	err := f.pipe.GenerateVideo(context.Background(), "proj-1", "shot-1", VideoOptions{})
	if err == nil {
		t.Fatal("expected error for unregistered video model")
	}
	if interval := getShot(f, "proj-1", "shot-1").Interval; interval.Status != models.FrameStatusFailed {
		t.Errorf("interval status = %s, want failed", interval.Status)
	}
}

func TestRegenerateVideoClearsStaleClip(t *testing.T) {
	f := newFixture(Options{})
	seedProject(f, shotWithStartFrame(f, "shot-1"))

	ctx := context.Background()
	if err := f.pipe.GenerateVideo(ctx, "proj-1", "shot-1", VideoOptions{}); err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	if getShot(f, "proj-1", "shot-1").Interval.VideoURL == nil {
		t.Fatal("first generation must set a video url")
	}

	if err := f.pipe.BeginVideo(ctx, "proj-1", "shot-1", VideoOptions{}); err != nil {
		t.Fatalf("BeginVideo failed: %v", err)
	}

	// Same invariant as keyframes: a url only lives on a completed interval.
	interval := getShot(f, "proj-1", "shot-1").Interval
	if interval.Status != models.FrameStatusGenerating {
		t.Fatalf("status = %s, want generating", interval.Status)
	}
	if interval.VideoURL != nil {
		t.Errorf("regeneration must drop the stale video url, got %q", *interval.VideoURL)
	}

	f.veo.err = services.ErrOverloaded
	if err := f.pipe.ExecuteVideo(ctx, "proj-1", "shot-1"); err == nil {
		t.Fatal("expected execution to fail")
	}
	interval = getShot(f, "proj-1", "shot-1").Interval
	if interval.Status != models.FrameStatusFailed {
		t.Errorf("status = %s, want failed", interval.Status)
	}
	if interval.VideoURL != nil {
		t.Errorf("failed regeneration must not keep the old video url, got %q", *interval.VideoURL)
	}
}
