package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velvela/shotcraft/internal/models"
)

// Interval lifecycle mirrors the keyframe machine: absent -> pending ->
// generating -> completed | failed, regenerate re-enters generating.
// Generation is only legal once the start keyframe is completed. The end
// keyframe is optional: its presence on this shot (and nothing else) selects
// dual-image transition mode, so a neighbouring shot's frames can never bleed
// into the request.

const (
	defaultIntervalDuration = 5
	defaultMotionStrength   = 0.5
)

// VideoOptions carries per-request overrides for interval generation.
type VideoOptions struct {
	DurationSec    *int
	MotionStrength *float64
	VideoModel     *models.VideoModel
}

// GenerateVideo runs a shot's full interval lifecycle.
func (p *Pipeline) GenerateVideo(ctx context.Context, projectID, shotID string, opts VideoOptions) error {
	if err := p.BeginVideo(ctx, projectID, shotID, opts); err != nil {
		return err
	}
	return p.ExecuteVideo(ctx, projectID, shotID)
}

// BeginVideo validates preconditions and flips the interval to generating
// with its prompt persisted, synchronously.
func (p *Pipeline) BeginVideo(ctx context.Context, projectID, shotID string, opts VideoOptions) error {
	return p.store.UpdateProject(ctx, projectID, func(project *models.Project) error {
		shot, _ := project.ShotByID(shotID)
		if shot == nil {
			return validationf("shot %s not found", shotID)
		}

		start := shot.StartFrame
		if start == nil || start.Status != models.FrameStatusCompleted || start.ImageURL == nil {
			return validationf("shot %s needs a completed start keyframe before video generation", shotID)
		}

		if opts.VideoModel != nil {
			shot.VideoModel = *opts.VideoModel
		}
		if shot.VideoModel == "" {
			shot.VideoModel = models.VideoModelVeo
		}

		now := time.Now()
		interval := shot.Interval
		if interval == nil {
			interval = &models.Interval{
				ID:             intervalID(shotID, now),
				DurationSec:    defaultIntervalDuration,
				MotionStrength: defaultMotionStrength,
				CreatedAt:      now,
			}
			shot.Interval = interval
		}

		if opts.DurationSec != nil {
			interval.DurationSec = *opts.DurationSec
		}
		if opts.MotionStrength != nil {
			interval.MotionStrength = *opts.MotionStrength
		}

		interval.StartFrameID = start.ID
		interval.EndFrameID = nil
		if end := shot.EndFrame; end != nil && end.Status == models.FrameStatusCompleted && end.ImageURL != nil {
			interval.EndFrameID = &end.ID
		}

		interval.VideoPrompt = BuildVideoPrompt(shot.ActionSummary, shot.CameraMovement, shot.VideoModel, project.Language)
		// The stale clip comes down with the flip: videoUrl is only ever
		// set while status is completed.
		interval.Status = models.FrameStatusGenerating
		interval.VideoURL = nil
		interval.ErrorMessage = nil
		interval.UpdatedAt = now
		return nil
	})
}

// ExecuteVideo runs the network-bound half of interval generation.
func (p *Pipeline) ExecuteVideo(ctx context.Context, projectID, shotID string) error {
	project, err := p.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	shot, _ := project.ShotByID(shotID)
	if shot == nil {
		return validationf("shot %s not found", shotID)
	}
	interval := shot.Interval
	if interval == nil || shot.StartFrame == nil || shot.StartFrame.ImageURL == nil {
		return fmt.Errorf("interval for shot %s vanished before execution", shotID)
	}

	client, ok := p.videos[shot.VideoModel]
	if !ok {
		return p.failVideo(ctx, projectID, shotID, fmt.Errorf("no video client configured for model %q", shot.VideoModel))
	}

	startURL := *shot.StartFrame.ImageURL
	dualMode := interval.EndFrameID != nil && shot.EndFrame != nil && shot.EndFrame.ImageURL != nil

	// Fetch both frames concurrently; the end frame only when dual mode.
	var startImage, endImage []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		startImage, err = p.blobs.DownloadURL(gctx, startURL)
		if err != nil {
			return fmt.Errorf("failed to fetch start frame: %w", err)
		}
		return nil
	})
	if dualMode {
		endURL := *shot.EndFrame.ImageURL
		g.Go(func() error {
			var err error
			endImage, err = p.blobs.DownloadURL(gctx, endURL)
			if err != nil {
				return fmt.Errorf("failed to fetch end frame: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return p.failVideo(ctx, projectID, shotID, err)
	}

	mode := "single-image"
	if dualMode {
		mode = "dual-image"
	}
	log.Printf("[Video] Generating interval for shot %s (model=%s, mode=%s)", shotID, shot.VideoModel, mode)

	req := VideoRequest{
		Prompt:      interval.VideoPrompt,
		StartImage:  startImage,
		StartMime:   "image/png",
		StartURL:    startURL,
		DurationSec: interval.DurationSec,
		AspectRatio: p.aspectRatio,
	}
	if dualMode {
		req.EndImage = endImage
		req.EndMime = "image/png"
	}

	videoData, genErr := client.Generate(ctx, req)
	if genErr != nil {
		return p.failVideo(ctx, projectID, shotID, genErr)
	}

	path := p.blobs.ClipPath(projectID, shotID)
	if err := p.blobs.Upload(ctx, path, videoData, "video/mp4"); err != nil {
		return p.failVideo(ctx, projectID, shotID, fmt.Errorf("failed to store generated clip: %w", err))
	}
	videoURL := p.blobs.GetPublicURL(path)

	err = p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		if shot.Interval == nil {
			return nil
		}
		shot.Interval.VideoURL = &videoURL
		shot.Interval.Status = models.FrameStatusCompleted
		shot.Interval.ErrorMessage = nil
		shot.Interval.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return err
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventVideo, models.FrameStatusCompleted, mode+" interval generated")
	log.Printf("[Video] Shot %s interval completed", shotID)
	return nil
}

func (p *Pipeline) failVideo(ctx context.Context, projectID, shotID string, genErr error) error {
	message := userMessage(genErr)
	handled := p.handleAuthError(ctx, genErr)
	if handled {
		message = ""
	}

	updateErr := p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		if shot.Interval == nil {
			return nil
		}
		shot.Interval.Status = models.FrameStatusFailed
		if message != "" {
			shot.Interval.ErrorMessage = &message
		} else {
			shot.Interval.ErrorMessage = nil
		}
		shot.Interval.UpdatedAt = time.Now()
		return nil
	})
	if updateErr != nil {
		log.Printf("[Video] WARNING: could not mark shot %s interval failed: %v", shotID, updateErr)
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventVideo, models.FrameStatusFailed, message)

	if handled {
		log.Printf("[Video] Shot %s interval aborted, credentials handed to credential handler", shotID)
		return nil
	}
	return genErr
}
