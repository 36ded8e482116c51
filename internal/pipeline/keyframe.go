package pipeline

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/velvela/shotcraft/internal/models"
)

// Keyframe lifecycle: absent -> pending -> generating -> completed | failed.
// Regeneration re-enters generating from completed or failed. Manual upload
// jumps straight to completed. The keyframe record is created lazily on the
// first generation or upload and mutated in place afterwards.

// ErrGenerationInFlight is returned when a second generate call arrives for a
// keyframe whose previous generation has not resolved yet.
var ErrGenerationInFlight = &ValidationError{msg: "a generation for this keyframe is already in flight"}

// GenerateKeyframe runs a keyframe's full generation lifecycle: the
// synchronous transition to generating, then the network-bound execution.
func (p *Pipeline) GenerateKeyframe(ctx context.Context, projectID, shotID string, role models.FrameRole) error {
	if err := p.BeginKeyframe(ctx, projectID, shotID, role); err != nil {
		return err
	}
	return p.ExecuteKeyframe(ctx, projectID, shotID, role)
}

// BeginKeyframe performs the synchronous half of generation: it assembles the
// prompt, creates the keyframe if absent, and flips it to generating so the
// transition is visible before any network call resolves. The in-flight
// marker is acquired here and held until ExecuteKeyframe resolves.
func (p *Pipeline) BeginKeyframe(ctx context.Context, projectID, shotID string, role models.FrameRole) error {
	key := flightKey(projectID, shotID, role)
	if !p.tryAcquireFlight(key) {
		return ErrGenerationInFlight
	}

	err := p.store.UpdateProject(ctx, projectID, func(project *models.Project) error {
		shot, _ := project.ShotByID(shotID)
		if shot == nil {
			return validationf("shot %s not found", shotID)
		}

		now := time.Now()
		kf := shot.Keyframe(role)
		if kf == nil {
			kf = &models.Keyframe{
				ID:        frameID(shotID, role, now),
				Role:      role,
				Status:    models.FrameStatusPending,
				CreatedAt: now,
			}
			shot.SetKeyframe(role, kf)
		}

		// Existing keyframes regenerate from their own (possibly edited)
		// prompt; fresh ones start from the shot's action summary. Either
		// way the base narrative is re-extracted so layers never stack.
		base := shot.ActionSummary
		if kf.VisualPrompt != "" {
			base = kf.VisualPrompt
		}

		var scene *models.Scene
		if project.ScriptData != nil {
			scene = project.ScriptData.SceneByID(shot.SceneID)
		}

		kf.VisualPrompt = BuildKeyframePrompt(base, KeyframePromptInput{
			Style:        project.VisualStyle,
			Movement:     shot.CameraMovement,
			Role:         role,
			ArtDirection: project.ArtDirection,
			Scene:        scene,
			Characters:   ShotCharacters(shot, project.ScriptData),
		})
		// The stale image comes down with the flip: imageUrl is only ever
		// set while status is completed.
		kf.Status = models.FrameStatusGenerating
		kf.ImageURL = nil
		kf.ErrorMessage = nil
		kf.UpdatedAt = now
		return nil
	})
	if err != nil {
		p.releaseFlight(key)
		return err
	}
	return nil
}

// AbortKeyframe backs a keyframe out of generating when the execution half
// could never be dispatched (the job failed to enqueue). Releases the
// in-flight marker and marks the frame failed so a later generate can retry
// instead of hitting ErrGenerationInFlight forever.
func (p *Pipeline) AbortKeyframe(ctx context.Context, projectID, shotID string, role models.FrameRole, reason string) {
	p.releaseFlight(flightKey(projectID, shotID, role))

	err := p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		kf := shot.Keyframe(role)
		if kf == nil || kf.Status != models.FrameStatusGenerating {
			return nil
		}
		kf.Status = models.FrameStatusFailed
		msg := reason
		kf.ErrorMessage = &msg
		kf.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		log.Printf("[Keyframe] WARNING: could not back out shot %s %s frame: %v", shotID, role, err)
	}
}

// ExecuteKeyframe runs the network-bound half: image generation, upload, and
// the terminal transition. Always releases the in-flight marker and records a
// render event, success or failure.
func (p *Pipeline) ExecuteKeyframe(ctx context.Context, projectID, shotID string, role models.FrameRole) error {
	defer p.releaseFlight(flightKey(projectID, shotID, role))

	project, err := p.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	shot, _ := project.ShotByID(shotID)
	if shot == nil {
		return validationf("shot %s not found", shotID)
	}
	kf := shot.Keyframe(role)
	if kf == nil {
		return fmt.Errorf("keyframe %s/%s vanished before execution", shotID, role)
	}

	refs := ResolveReferences(shot, project.ScriptData)

	log.Printf("[Keyframe] Generating %s frame for shot %s (refs=%d)", role, shotID, len(refs))

	imageData, genErr := p.images.GenerateImage(ctx, kf.VisualPrompt, refs, p.aspectRatio)
	if genErr != nil {
		return p.failKeyframe(ctx, projectID, shotID, role, genErr)
	}

	path := p.blobs.FramePath(projectID, shotID, string(role))
	if err := p.blobs.Upload(ctx, path, imageData, "image/png"); err != nil {
		return p.failKeyframe(ctx, projectID, shotID, role, fmt.Errorf("failed to store generated frame: %w", err))
	}
	imageURL := p.blobs.GetPublicURL(path)

	err = p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		return completeFrame(shot, role, imageURL, "")
	})
	if err != nil {
		return err
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventKeyframe, models.FrameStatusCompleted, fmt.Sprintf("%s frame generated", role))
	log.Printf("[Keyframe] Shot %s %s frame completed", shotID, role)
	return nil
}

// failKeyframe transitions the keyframe to failed, records the event, and
// routes authorization errors to the credential gate.
func (p *Pipeline) failKeyframe(ctx context.Context, projectID, shotID string, role models.FrameRole, genErr error) error {
	message := userMessage(genErr)
	handled := p.handleAuthError(ctx, genErr)
	if handled {
		message = ""
	}

	updateErr := p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		kf := shot.Keyframe(role)
		if kf == nil {
			return nil
		}
		kf.Status = models.FrameStatusFailed
		if message != "" {
			kf.ErrorMessage = &message
		} else {
			kf.ErrorMessage = nil
		}
		kf.UpdatedAt = time.Now()
		return nil
	})
	if updateErr != nil {
		log.Printf("[Keyframe] WARNING: could not mark shot %s %s frame failed: %v", shotID, role, updateErr)
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventKeyframe, models.FrameStatusFailed, message)

	if handled {
		// The credential collaborator owns the failure; go quiet.
		log.Printf("[Keyframe] Shot %s %s frame aborted, credentials handed to credential handler", shotID, role)
		return nil
	}
	return genErr
}

// completeFrame installs an image on a shot's keyframe, creating the keyframe
// if absent. Shared terminal transition for generation, upload, continuity
// copies, and nine-grid adoption. prompt is only applied when the keyframe
// has none yet ("" means keep existing / fall back to the action summary).
func completeFrame(shot *models.Shot, role models.FrameRole, imageURL, prompt string) error {
	now := time.Now()
	kf := shot.Keyframe(role)
	if kf == nil {
		kf = &models.Keyframe{
			ID:        frameID(shot.ID, role, now),
			Role:      role,
			CreatedAt: now,
		}
		shot.SetKeyframe(role, kf)
	}

	if prompt != "" {
		kf.VisualPrompt = prompt
	} else if kf.VisualPrompt == "" {
		kf.VisualPrompt = shot.ActionSummary
	}

	kf.ImageURL = &imageURL
	kf.Status = models.FrameStatusCompleted
	kf.ErrorMessage = nil
	kf.UpdatedAt = now
	return nil
}

// UploadKeyframe adopts user-provided image bytes as a completed keyframe,
// bypassing generation. Non-image content is rejected with no state change.
// Any existing visual prompt is kept; a fresh keyframe falls back to the
// shot's action summary.
func (p *Pipeline) UploadKeyframe(ctx context.Context, projectID, shotID string, role models.FrameRole, imageBytes []byte) error {
	contentType := http.DetectContentType(imageBytes)
	if !strings.HasPrefix(contentType, "image/") {
		return validationf("uploaded file is not an image (detected %s)", contentType)
	}

	path := p.blobs.FramePath(projectID, shotID, string(role))
	if err := p.blobs.Upload(ctx, path, imageBytes, contentType); err != nil {
		return fmt.Errorf("failed to store uploaded frame: %w", err)
	}
	imageURL := p.blobs.GetPublicURL(path)

	err := p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		return completeFrame(shot, role, imageURL, "")
	})
	if err != nil {
		return err
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventKeyframe, models.FrameStatusCompleted, fmt.Sprintf("%s frame uploaded manually", role))
	return nil
}

// EditKeyframePrompt replaces a keyframe's visual prompt. Pure data mutation:
// no status change, no network call.
func (p *Pipeline) EditKeyframePrompt(ctx context.Context, projectID, shotID string, role models.FrameRole, newText string) error {
	return p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		kf := shot.Keyframe(role)
		if kf == nil {
			return validationf("shot %s has no %s keyframe to edit", shotID, role)
		}
		kf.VisualPrompt = newText
		kf.UpdatedAt = time.Now()
		return nil
	})
}
