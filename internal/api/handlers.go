package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/pipeline"
	"github.com/velvela/shotcraft/internal/queue"
	"github.com/velvela/shotcraft/internal/store"
)

// ScriptParser turns raw script text into structured script data.
// *services.OpenAIService satisfies it.
type ScriptParser interface {
	ParseScript(ctx context.Context, scriptText, language string) (*models.ScriptData, error)
}

// RenderLogReader serves the durable audit view of render events.
// *db.DB satisfies it.
type RenderLogReader interface {
	RecentEvents(ctx context.Context, projectID string, limit int) ([]models.RenderEvent, error)
}

type Handler struct {
	store    store.Store
	queue    *queue.Queue // nil = run generation inline (dev mode, tests)
	pipeline *pipeline.Pipeline
	parser   ScriptParser
	audit    RenderLogReader // nil = serve the in-store log only
}

func NewHandler(st store.Store, q *queue.Queue, p *pipeline.Pipeline, parser ScriptParser, audit RenderLogReader) *Handler {
	return &Handler{
		store:    st,
		queue:    q,
		pipeline: p,
		parser:   parser,
		audit:    audit,
	}
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}

	language := "en"
	if req.Language != nil && *req.Language != "" {
		language = *req.Language
	}
	style := models.StyleCinematic
	if req.VisualStyle != nil && *req.VisualStyle != "" {
		style = models.VisualStyle(*req.VisualStyle)
	}

	scriptData := req.ScriptData
	if scriptData == nil && req.ScriptText != nil && *req.ScriptText != "" {
		if h.parser == nil {
			respondError(w, http.StatusBadRequest, "Script parsing is not configured; provide script_data instead")
			return
		}
		parsed, err := h.parser.ParseScript(r.Context(), *req.ScriptText, language)
		if err != nil {
			log.Printf("[API] Script parsing failed: %v", err)
			respondError(w, http.StatusBadGateway, "Failed to parse script")
			return
		}
		scriptData = parsed
	}
	if scriptData != nil {
		if scriptData.VisualStyle != "" && req.VisualStyle == nil {
			style = scriptData.VisualStyle
		}
		if scriptData.Language != "" && req.Language == nil {
			language = scriptData.Language
		}
	}

	now := time.Now()
	project := &models.Project{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Language:    language,
		VisualStyle: style,
		Shots:       []models.Shot{},
		ScriptData:  scriptData,
		RenderLog:   []models.RenderEvent{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.Save(r.Context(), project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, projectResponse(project))
}

// ListProjects handles GET /v1/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}

	responses := make([]models.ProjectResponse, 0, len(projects))
	for i := range projects {
		responses = append(responses, projectResponse(&projects[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projects": responses,
		"total":    len(responses),
	})
}

// GetProject handles GET /v1/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projectResponse(project))
}

// DeleteProject handles DELETE /v1/projects/{id}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AddShot handles POST /v1/projects/{id}/shots
func (h *Handler) AddShot(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	var req models.AddShotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ActionSummary == "" {
		respondError(w, http.StatusBadRequest, "action_summary is required")
		return
	}

	shot := models.Shot{
		ID:             uuid.New().String(),
		SceneID:        req.SceneID,
		ActionSummary:  req.ActionSummary,
		Dialogue:       req.Dialogue,
		CameraMovement: req.CameraMovement,
		CharacterIDs:   req.CharacterIDs,
		VideoModel:     models.VideoModelVeo,
	}
	if req.VideoModel != nil {
		shot.VideoModel = models.VideoModel(*req.VideoModel)
	}
	if shot.CameraMovement == "" {
		shot.CameraMovement = models.CameraStatic
	}

	err := h.store.UpdateProject(r.Context(), projectID, func(project *models.Project) error {
		if project.ScriptData != nil && shot.SceneID != "" {
			if scene := project.ScriptData.SceneByID(shot.SceneID); scene == nil {
				return pipeline.ErrUnknownScene
			}
		}
		project.Shots = append(project.Shots, shot)
		return nil
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownScene) {
			respondError(w, http.StatusBadRequest, "Unknown scene_id")
			return
		}
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, shot)
}

// GetRenderLog handles GET /v1/projects/{id}/render-log
func (h *Handler) GetRenderLog(w http.ResponseWriter, r *http.Request) {
	project, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	// Prefer the Postgres audit trail when configured; it survives project
	// snapshot resets. Fall back to the in-store log on query failure.
	if h.audit != nil {
		events, err := h.audit.RecentEvents(r.Context(), project.ID, limit)
		if err == nil {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"events": events,
				"total":  len(events),
			})
			return
		}
		log.Printf("[API] Audit query failed, serving in-store log: %v", err)
	}

	events := project.RenderLog
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(project.RenderLog),
	})
}

// UpdateSceneReference handles PUT /v1/projects/{id}/scenes/{sceneId}/reference-image
func (h *Handler) UpdateSceneReference(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	sceneID := chi.URLParam(r, "sceneId")

	var req struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.store.UpdateProject(r.Context(), projectID, func(project *models.Project) error {
		if project.ScriptData == nil {
			return pipeline.ErrUnknownScene
		}
		scene := project.ScriptData.SceneByID(sceneID)
		if scene == nil {
			return pipeline.ErrUnknownScene
		}
		if req.ImageURL == "" {
			scene.ReferenceImage = nil
		} else {
			scene.ReferenceImage = &req.ImageURL
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownScene) {
			respondError(w, http.StatusNotFound, "Scene not found")
			return
		}
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// GenerateKeyframe handles POST /v1/projects/{id}/shots/{shotId}/frames/{role}/generate
func (h *Handler) GenerateKeyframe(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")
	role, ok := parseRole(chi.URLParam(r, "role"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Role must be start or end")
		return
	}

	if err := h.pipeline.BeginKeyframe(r.Context(), projectID, shotID, role); err != nil {
		respondPipelineError(w, err)
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueGenerateKeyframe(r.Context(), projectID, shotID, role); err != nil {
			// Without the backout the frame would sit at generating with
			// the in-flight marker held, rejecting every retry.
			h.pipeline.AbortKeyframe(r.Context(), projectID, shotID, role, "Could not queue the generation job. Try again.")
			respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
			return
		}
	} else {
		go func() {
			if err := h.pipeline.ExecuteKeyframe(context.Background(), projectID, shotID, role); err != nil {
				log.Printf("[API] Inline keyframe generation failed: %v", err)
			}
		}()
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

// UploadKeyframe handles POST /v1/projects/{id}/shots/{shotId}/frames/{role}/upload
// Accepts multipart form data with an "image" file field.
func (h *Handler) UploadKeyframe(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")
	role, ok := parseRole(chi.URLParam(r, "role"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Role must be start or end")
		return
	}

	if err := r.ParseMultipartForm(20 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing image file field")
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	if err := h.pipeline.UploadKeyframe(r.Context(), projectID, shotID, role, imageBytes); err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// EditKeyframePrompt handles PUT /v1/projects/{id}/shots/{shotId}/frames/{role}/prompt
func (h *Handler) EditKeyframePrompt(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")
	role, ok := parseRole(chi.URLParam(r, "role"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Role must be start or end")
		return
	}

	var req models.EditPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.VisualPrompt == "" {
		respondError(w, http.StatusBadRequest, "visual_prompt is required")
		return
	}

	if err := h.pipeline.EditKeyframePrompt(r.Context(), projectID, shotID, role, req.VisualPrompt); err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// CopyPreviousEndFrame handles POST /v1/projects/{id}/shots/{shotId}/frames/start/copy-previous
func (h *Handler) CopyPreviousEndFrame(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")

	if err := h.pipeline.CopyPreviousEndFrame(r.Context(), projectID, shotID); err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// GenerateVideo handles POST /v1/projects/{id}/shots/{shotId}/video/generate
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")

	var req models.GenerateVideoRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	opts := pipeline.VideoOptions{
		DurationSec:    req.DurationSec,
		MotionStrength: req.MotionStrength,
	}
	if req.VideoModel != nil {
		model := models.VideoModel(*req.VideoModel)
		opts.VideoModel = &model
	}

	if err := h.pipeline.BeginVideo(r.Context(), projectID, shotID, opts); err != nil {
		respondPipelineError(w, err)
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueGenerateVideo(r.Context(), projectID, shotID); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
			return
		}
	} else {
		go func() {
			if err := h.pipeline.ExecuteVideo(context.Background(), projectID, shotID); err != nil {
				log.Printf("[API] Inline video generation failed: %v", err)
			}
		}()
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

// BatchGenerate handles POST /v1/projects/{id}/batch/start-frames
func (h *Handler) BatchGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Mode == "" {
		req.Mode = models.BatchFillMissing
	}

	if h.queue != nil {
		if err := h.queue.EnqueueBatchFrames(r.Context(), projectID, req.Mode); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to enqueue batch")
			return
		}
	} else {
		go func() {
			if _, err := h.pipeline.BatchGenerateStartFrames(context.Background(), projectID, req.Mode, nil); err != nil {
				log.Printf("[API] Inline batch generation failed: %v", err)
			}
		}()
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// BatchProgress handles GET /v1/projects/{id}/batch/progress
func (h *Handler) BatchProgress(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.pipeline.Progress(chi.URLParam(r, "id")))
}

// GenerateNineGrid handles POST /v1/projects/{id}/shots/{shotId}/ninegrid/generate
func (h *Handler) GenerateNineGrid(w http.ResponseWriter, r *http.Request) {
	h.enqueueNineGrid(w, r, false)
}

// RegenerateNineGrid handles POST /v1/projects/{id}/shots/{shotId}/ninegrid/regenerate
func (h *Handler) RegenerateNineGrid(w http.ResponseWriter, r *http.Request) {
	h.enqueueNineGrid(w, r, true)
}

func (h *Handler) enqueueNineGrid(w http.ResponseWriter, r *http.Request, regenerate bool) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")

	if regenerate {
		// Discard synchronously so the caller sees a clean slate immediately.
		err := h.store.UpdateShot(r.Context(), projectID, shotID, func(shot *models.Shot) error {
			shot.NineGrid = nil
			return nil
		})
		if err != nil {
			respondStoreError(w, err)
			return
		}
	}

	if h.queue != nil {
		if err := h.queue.EnqueueNineGrid(r.Context(), projectID, shotID); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
			return
		}
	} else {
		go func() {
			if err := h.pipeline.GenerateNineGrid(context.Background(), projectID, shotID); err != nil {
				log.Printf("[API] Inline nine-grid generation failed: %v", err)
			}
		}()
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

// SelectPanel handles POST /v1/projects/{id}/shots/{shotId}/ninegrid/select-panel
func (h *Handler) SelectPanel(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")

	var req models.SelectPanelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	role := req.Role
	if role == "" {
		role = models.FrameRoleStart
	}

	if err := h.pipeline.SelectPanel(r.Context(), projectID, shotID, req.PanelIndex, role); err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// UseWholeImage handles POST /v1/projects/{id}/shots/{shotId}/ninegrid/use-whole
func (h *Handler) UseWholeImage(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	shotID := chi.URLParam(r, "shotId")

	var req struct {
		Role models.FrameRole `json:"role"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	role := req.Role
	if role == "" {
		role = models.FrameRoleStart
	}

	if err := h.pipeline.UseWholeImage(r.Context(), projectID, shotID, role); err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// helpers -------------------------------------------------------------------

func projectResponse(p *models.Project) models.ProjectResponse {
	return models.ProjectResponse{Project: *p, ShotCount: len(p.Shots)}
}

func parseRole(raw string) (models.FrameRole, bool) {
	switch models.FrameRole(raw) {
	case models.FrameRoleStart:
		return models.FrameRoleStart, true
	case models.FrameRoleEnd:
		return models.FrameRoleEnd, true
	default:
		return "", false
	}
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProjectNotFound):
		respondError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, store.ErrShotNotFound):
		respondError(w, http.StatusNotFound, "Shot not found")
	default:
		respondError(w, http.StatusInternalServerError, "Storage error")
	}
}

func respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrGenerationInFlight):
		respondError(w, http.StatusConflict, err.Error())
	case pipeline.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrProjectNotFound), errors.Is(err, store.ErrShotNotFound):
		respondStoreError(w, err)
	default:
		respondError(w, http.StatusInternalServerError, "Generation failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
