package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"strings"
	"time"

	_ "image/jpeg" // composite may come back as JPEG

	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/services"
)

// The nine-grid flow has two phases. Phase one asks the language model to
// plan nine distinct camera angles for the shot; phase two renders all nine
// as a single 3x3 composite image. A planning failure never reaches phase
// two, so a failed grid costs one cheap text call, not an image render.

// GenerateNineGrid runs both phases for a shot.
func (p *Pipeline) GenerateNineGrid(ctx context.Context, projectID, shotID string) error {
	panels, err := p.PlanPanels(ctx, projectID, shotID)
	if err != nil || panels == nil {
		// nil, nil means the failure was absorbed by the credential gate.
		return err
	}
	return p.RenderGrid(ctx, projectID, shotID, panels)
}

// PlanPanels runs phase one: plan exactly nine panels for the shot and
// persist them with the grid in generating state.
func (p *Pipeline) PlanPanels(ctx context.Context, projectID, shotID string) ([]models.Panel, error) {
	project, err := p.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	shot, _ := project.ShotByID(shotID)
	if shot == nil {
		return nil, validationf("shot %s not found", shotID)
	}

	now := time.Now()
	err = p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		if shot.NineGrid == nil {
			shot.NineGrid = &models.NineGrid{CreatedAt: now}
		}
		shot.NineGrid.Status = models.FrameStatusGenerating
		shot.NineGrid.ErrorMessage = nil
		shot.NineGrid.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	shotCtx := services.NineGridContext{
		ActionSummary: shot.ActionSummary,
		VisualStyle:   string(project.VisualStyle),
	}
	if shot.Dialogue != nil {
		shotCtx.Dialogue = *shot.Dialogue
	}
	if project.ScriptData != nil {
		if scene := project.ScriptData.SceneByID(shot.SceneID); scene != nil {
			shotCtx.SceneLocation = scene.Location
			shotCtx.SceneTime = scene.Time
			shotCtx.Atmosphere = scene.Atmosphere
		}
	}

	panels, planErr := p.planner.PlanNineGrid(ctx, shotCtx)
	if planErr != nil {
		return nil, p.failNineGrid(ctx, projectID, shotID, planErr)
	}

	err = p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		if shot.NineGrid == nil {
			return fmt.Errorf("nine-grid for shot %s vanished during planning", shotID)
		}
		shot.NineGrid.Panels = panels
		shot.NineGrid.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[NineGrid] Shot %s: planned 9 panels", shotID)
	return panels, nil
}

// RenderGrid runs phase two: render the planned panels as one 3x3 composite.
func (p *Pipeline) RenderGrid(ctx context.Context, projectID, shotID string, panels []models.Panel) error {
	if len(panels) != 9 {
		return validationf("nine-grid render needs exactly 9 panels, got %d", len(panels))
	}

	project, err := p.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	shot, _ := project.ShotByID(shotID)
	if shot == nil {
		return validationf("shot %s not found", shotID)
	}

	prompt := buildGridPrompt(panels, project.VisualStyle)
	refs := ResolveReferences(shot, project.ScriptData)

	log.Printf("[NineGrid] Rendering composite for shot %s (refs=%d)", shotID, len(refs))

	imageData, genErr := p.images.GenerateImage(ctx, prompt, refs, "1:1")
	if genErr != nil {
		return p.failNineGrid(ctx, projectID, shotID, genErr)
	}

	path := p.blobs.GridPath(projectID, shotID)
	if err := p.blobs.Upload(ctx, path, imageData, "image/png"); err != nil {
		return p.failNineGrid(ctx, projectID, shotID, fmt.Errorf("failed to store grid composite: %w", err))
	}
	gridURL := p.blobs.GetPublicURL(path)

	err = p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		if shot.NineGrid == nil {
			return fmt.Errorf("nine-grid for shot %s vanished during render", shotID)
		}
		shot.NineGrid.ImageURL = &gridURL
		shot.NineGrid.Status = models.FrameStatusCompleted
		shot.NineGrid.ErrorMessage = nil
		shot.NineGrid.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return err
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventNineGrid, models.FrameStatusCompleted, "3x3 composite rendered")
	log.Printf("[NineGrid] Shot %s composite completed", shotID)
	return nil
}

// RegenerateNineGrid discards the existing grid and restarts from planning.
func (p *Pipeline) RegenerateNineGrid(ctx context.Context, projectID, shotID string) error {
	err := p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		shot.NineGrid = nil
		return nil
	})
	if err != nil {
		return err
	}
	return p.GenerateNineGrid(ctx, projectID, shotID)
}

// PanelRect returns the pixel bounds of panel index (0-8) within a composite
// of the given dimensions. Row-major: row = index/3, col = index%3. Edge
// panels absorb the remainder pixels so the nine rects tile exactly.
func PanelRect(index, width, height int) image.Rectangle {
	row := index / 3
	col := index % 3
	cellW := width / 3
	cellH := height / 3

	x0 := col * cellW
	y0 := row * cellH
	x1 := x0 + cellW
	y1 := y0 + cellH
	if col == 2 {
		x1 = width
	}
	if row == 2 {
		y1 = height
	}
	return image.Rect(x0, y0, x1, y1)
}

// subImager is satisfied by every image type the stdlib decoders return.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// SelectPanel crops panel index out of the shot's completed composite, stores
// the crop as a standalone image and adopts it as the shot's keyframe for the
// given role.
func (p *Pipeline) SelectPanel(ctx context.Context, projectID, shotID string, index int, role models.FrameRole) error {
	if index < 0 || index > 8 {
		return validationf("panel index must be 0-8, got %d", index)
	}

	composite, grid, err := p.loadComposite(ctx, projectID, shotID)
	if err != nil {
		return err
	}

	img, _, err := image.Decode(bytes.NewReader(composite))
	if err != nil {
		return fmt.Errorf("failed to decode grid composite: %w", err)
	}

	sub, ok := img.(subImager)
	if !ok {
		return fmt.Errorf("composite image type %T does not support cropping", img)
	}
	bounds := img.Bounds()
	rect := PanelRect(index, bounds.Dx(), bounds.Dy()).Add(bounds.Min)

	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return fmt.Errorf("failed to encode cropped panel: %w", err)
	}

	path := p.blobs.FramePath(projectID, shotID, string(role))
	if err := p.blobs.Upload(ctx, path, buf.Bytes(), "image/png"); err != nil {
		return fmt.Errorf("failed to store cropped panel: %w", err)
	}
	frameURL := p.blobs.GetPublicURL(path)

	prompt := panelPrompt(grid, index)
	err = p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		return completeFrame(shot, role, frameURL, prompt)
	})
	if err != nil {
		return err
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventNineGrid, models.FrameStatusCompleted, fmt.Sprintf("panel %d adopted as %s frame", index, role))
	log.Printf("[NineGrid] Shot %s: panel %d adopted as %s frame", shotID, index, role)
	return nil
}

// UseWholeImage adopts the full composite, uncropped, as the shot's keyframe.
func (p *Pipeline) UseWholeImage(ctx context.Context, projectID, shotID string, role models.FrameRole) error {
	_, grid, err := p.loadGrid(ctx, projectID, shotID)
	if err != nil {
		return err
	}

	err = p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		return completeFrame(shot, role, *grid.ImageURL, "")
	})
	if err != nil {
		return err
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventNineGrid, models.FrameStatusCompleted, fmt.Sprintf("whole composite adopted as %s frame", role))
	return nil
}

func (p *Pipeline) loadGrid(ctx context.Context, projectID, shotID string) (*models.Shot, *models.NineGrid, error) {
	project, err := p.store.Get(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	shot, _ := project.ShotByID(shotID)
	if shot == nil {
		return nil, nil, validationf("shot %s not found", shotID)
	}
	grid := shot.NineGrid
	if grid == nil || grid.Status != models.FrameStatusCompleted || grid.ImageURL == nil {
		return nil, nil, validationf("shot %s has no completed nine-grid composite", shotID)
	}
	return shot, grid, nil
}

func (p *Pipeline) loadComposite(ctx context.Context, projectID, shotID string) ([]byte, *models.NineGrid, error) {
	_, grid, err := p.loadGrid(ctx, projectID, shotID)
	if err != nil {
		return nil, nil, err
	}
	data, err := p.blobs.DownloadURL(ctx, *grid.ImageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch grid composite: %w", err)
	}
	return data, grid, nil
}

func (p *Pipeline) failNineGrid(ctx context.Context, projectID, shotID string, genErr error) error {
	message := userMessage(genErr)
	handled := p.handleAuthError(ctx, genErr)
	if handled {
		message = ""
	}

	updateErr := p.store.UpdateShot(ctx, projectID, shotID, func(shot *models.Shot) error {
		if shot.NineGrid == nil {
			return nil
		}
		shot.NineGrid.Status = models.FrameStatusFailed
		if message != "" {
			shot.NineGrid.ErrorMessage = &message
		} else {
			shot.NineGrid.ErrorMessage = nil
		}
		shot.NineGrid.UpdatedAt = time.Now()
		return nil
	})
	if updateErr != nil {
		log.Printf("[NineGrid] WARNING: could not mark shot %s grid failed: %v", shotID, updateErr)
	}

	p.recordEvent(ctx, projectID, shotID, models.RenderEventNineGrid, models.FrameStatusFailed, message)

	if handled {
		log.Printf("[NineGrid] Shot %s grid aborted, credentials handed to credential handler", shotID)
		return nil
	}
	return genErr
}

// buildGridPrompt lays the nine planned panels out as a single composite
// instruction. Panel order in the prompt matches the row-major crop order.
func buildGridPrompt(panels []models.Panel, style models.VisualStyle) string {
	var b strings.Builder
	b.WriteString("A 3x3 storyboard grid, nine equally sized panels separated by thin black borders, ")
	b.WriteString("left to right, top to bottom:\n")
	for _, panel := range panels {
		fmt.Fprintf(&b, "Panel %d (%s, %s): %s\n", panel.Index+1, panel.ShotSize, panel.CameraAngle, panel.Description)
	}
	b.WriteString("\nAll nine panels depict the same moment and the same characters from different angles.")
	b.WriteString(styleMarker)
	b.WriteString(stylePhrase(style))
	return b.String()
}

// panelPrompt describes the selected panel so the adopted keyframe carries a
// meaningful visual prompt for later regeneration.
func panelPrompt(grid *models.NineGrid, index int) string {
	for _, panel := range grid.Panels {
		if panel.Index == index {
			return fmt.Sprintf("%s, %s. %s", panel.ShotSize, panel.CameraAngle, panel.Description)
		}
	}
	return ""
}
