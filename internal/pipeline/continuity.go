package pipeline

import (
	"context"

	"github.com/velvela/shotcraft/internal/models"
)

// CopyPreviousEndFrame sets this shot's start keyframe to the previous shot's
// completed end keyframe, image and prompt both, so adjacent shots cut
// together without a visible jump. No network call and no render-log entry:
// nothing was generated, only referenced.
func (p *Pipeline) CopyPreviousEndFrame(ctx context.Context, projectID, shotID string) error {
	return p.store.UpdateProject(ctx, projectID, func(project *models.Project) error {
		shot, index := project.ShotByID(shotID)
		if shot == nil {
			return validationf("shot %s not found", shotID)
		}
		if index == 0 {
			return validationf("shot %s is the first shot, there is no previous end frame to copy", shotID)
		}

		prev := &project.Shots[index-1]
		prevEnd := prev.EndFrame
		if prevEnd == nil || prevEnd.Status != models.FrameStatusCompleted || prevEnd.ImageURL == nil {
			return validationf("previous shot %s has no completed end keyframe", prev.ID)
		}

		return completeFrame(shot, models.FrameRoleStart, *prevEnd.ImageURL, prevEnd.VisualPrompt)
	})
}
