package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/services"
	"github.com/velvela/shotcraft/internal/store"
)

// ImageClient is the image-generation collaborator: assembled prompt plus an
// ordered conditioning-image list in, one still image out.
// *services.GeminiService satisfies it.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string, referenceURLs []string, aspectRatio string) ([]byte, error)
}

// VideoRequest is the model-independent video generation request. EndImage
// nil means single-image animation; non-nil selects dual-image transition.
type VideoRequest struct {
	Prompt      string
	StartImage  []byte
	StartMime   string
	StartURL    string // public URL of the start frame, for URL-based services
	EndImage    []byte
	EndMime     string
	DurationSec int
	AspectRatio string
}

// VideoClient is one video model family's generation collaborator.
type VideoClient interface {
	Generate(ctx context.Context, req VideoRequest) ([]byte, error)
}

// PanelPlanner is the structured-output planning collaborator for nine-grid
// decomposition. *services.OpenAIService satisfies it.
type PanelPlanner interface {
	PlanNineGrid(ctx context.Context, shotCtx services.NineGridContext) ([]models.Panel, error)
}

// BlobStore persists generated bytes and serves them back by URL.
// *storage.Storage satisfies it.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, url string) ([]byte, error)
	GetPublicURL(path string) string
	FramePath(projectID, shotID, role string) string
	ClipPath(projectID, shotID string) string
	GridPath(projectID, shotID string) string
}

// CredentialGate is the external credential-handling collaborator. It gets
// first refusal on authorization-class errors; returning true means it took
// ownership (e.g. prompted for new credentials) and the in-flight operation
// aborts silently.
type CredentialGate interface {
	HandleAuthError(ctx context.Context, err error) bool
}

// AuditSink receives a copy of every render event, on top of the project's
// own render log. Optional.
type AuditSink interface {
	RecordEvent(ctx context.Context, projectID string, event models.RenderEvent) error
}

// Pipeline drives the shot production state machines over the project store.
type Pipeline struct {
	store       store.Store
	images      ImageClient
	videos      map[models.VideoModel]VideoClient
	planner     PanelPlanner
	blobs       BlobStore
	creds       CredentialGate // optional
	audit       AuditSink      // optional
	aspectRatio string
	pacer       Pacer // batch pacing, swappable

	// In-flight markers per (project, shot, role). A second generate call for
	// the same keyframe is refused until the first resolves.
	flight sync.Map

	batchMu  sync.Mutex
	batches  map[string]*models.BatchProgress // projectID -> last progress
	batchRun map[string]bool                  // projectID -> batch in flight

	// Set when the credential gate takes ownership of an auth failure. The
	// batch loop reads and clears it to abort silently.
	authTripped atomic.Bool
}

// Options carries the optional collaborators.
type Options struct {
	CredentialGate CredentialGate
	AuditSink      AuditSink
	AspectRatio    string
	Pacer          Pacer
}

func New(st store.Store, images ImageClient, videos map[models.VideoModel]VideoClient, planner PanelPlanner, blobs BlobStore, opts Options) *Pipeline {
	aspect := opts.AspectRatio
	if aspect == "" {
		aspect = "16:9"
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = NewIntervalPacer(defaultBatchInterval)
	}
	return &Pipeline{
		store:       st,
		images:      images,
		videos:      videos,
		planner:     planner,
		blobs:       blobs,
		creds:       opts.CredentialGate,
		audit:       opts.AuditSink,
		aspectRatio: aspect,
		pacer:       pacer,
		batches:     make(map[string]*models.BatchProgress),
		batchRun:    make(map[string]bool),
	}
}

// ValidationError marks synchronous rejections: the request was malformed or
// a precondition was unmet, and no state was mutated.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// ErrUnknownScene marks a scene id that does not exist in the project's
// script data.
var ErrUnknownScene = &ValidationError{msg: "unknown scene"}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a synchronous validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// flight guard --------------------------------------------------------------

func flightKey(projectID, shotID string, role models.FrameRole) string {
	return projectID + "/" + shotID + "/" + string(role)
}

// tryAcquireFlight check-and-sets the in-flight marker for one keyframe.
func (p *Pipeline) tryAcquireFlight(key string) bool {
	_, loaded := p.flight.LoadOrStore(key, struct{}{})
	return !loaded
}

func (p *Pipeline) releaseFlight(key string) {
	p.flight.Delete(key)
}

// render log ---------------------------------------------------------------

// recordEvent appends a render event to the project log and mirrors it to the
// audit sink. Logging failures must never mask the generation outcome.
func (p *Pipeline) recordEvent(ctx context.Context, projectID, shotID string, kind models.RenderEventKind, status models.FrameStatus, message string) {
	event := models.RenderEvent{
		ID:        uuid.New().String(),
		ShotID:    shotID,
		Kind:      kind,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now(),
	}

	if err := p.store.AppendRenderEvent(ctx, projectID, event); err != nil {
		log.Printf("[Pipeline] WARNING: failed to append render event for project %s: %v", projectID, err)
	}
	if p.audit != nil {
		if err := p.audit.RecordEvent(ctx, projectID, event); err != nil {
			log.Printf("[Pipeline] WARNING: audit sink rejected event for project %s: %v", projectID, err)
		}
	}
}

// error surfacing ----------------------------------------------------------

// userMessage renders a generation failure as the message shown to the user.
// Content rejections and overloads land in the same failed state but must be
// distinguished in wording: one asks for a prompt edit, the other for a retry.
func userMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrContentRejected):
		return "The generation service rejected this prompt. Edit the prompt and try again."
	case errors.Is(err, services.ErrOverloaded):
		return "The generation service is overloaded. Try again in a moment."
	case errors.Is(err, services.ErrUnauthorized):
		return "The generation service rejected the configured credentials."
	default:
		return "Generation failed: " + err.Error()
	}
}

// handleAuthError routes authorization-class failures to the credential gate.
// Returns true when the gate took ownership and the caller should go quiet.
func (p *Pipeline) handleAuthError(ctx context.Context, err error) bool {
	if !errors.Is(err, services.ErrUnauthorized) {
		return false
	}
	if p.creds == nil {
		return false
	}
	if p.creds.HandleAuthError(ctx, err) {
		p.authTripped.Store(true)
		return true
	}
	return false
}

// credsTripped reports and clears the gate-handled marker.
func (p *Pipeline) credsTripped() bool {
	return p.authTripped.Swap(false)
}

// id derivation ------------------------------------------------------------

// frameID derives a keyframe id from the shot, role and creation time.
func frameID(shotID string, role models.FrameRole, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", shotID, role, at.UnixMilli())
}

// intervalID derives an interval id from the shot and creation time.
func intervalID(shotID string, at time.Time) string {
	return fmt.Sprintf("%s-interval-%d", shotID, at.UnixMilli())
}
