package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/services"
	"github.com/velvela/shotcraft/internal/store"
)

// Fakes shared by the pipeline tests. They record calls so tests can assert
// on ordering and arguments, and fail on demand via the err fields.

type fakeImages struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	refs    [][]string
	err     error
	errOnce bool // return err for the first call only
	data    []byte
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string, referenceURLs []string, aspectRatio string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.refs = append(f.refs, referenceURLs)
	if f.err != nil {
		err := f.err
		if f.errOnce {
			f.err = nil
		}
		return nil, err
	}
	if f.data != nil {
		return f.data, nil
	}
	return []byte(fmt.Sprintf("image-%d", f.calls)), nil
}

type fakeVideo struct {
	mu       sync.Mutex
	requests []VideoRequest
	err      error
}

func (f *fakeVideo) Generate(ctx context.Context, req VideoRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("video-bytes"), nil
}

type fakePlanner struct {
	panels []models.Panel
	err    error
	calls  int
}

func (f *fakePlanner) PlanNineGrid(ctx context.Context, shotCtx services.NineGridContext) ([]models.Panel, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.panels, nil
}

// fakeBlobs keeps uploads in a map keyed by path and serves downloads for any
// fake:// URL it produced.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	upErr   error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = data
	return nil
}

func (f *fakeBlobs) DownloadURL(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := url
	if len(url) > 7 && url[:7] == "fake://" {
		path = url[7:]
	}
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("no object at %s", url)
	}
	return data, nil
}

func (f *fakeBlobs) GetPublicURL(path string) string { return "fake://" + path }

func (f *fakeBlobs) FramePath(projectID, shotID, role string) string {
	return fmt.Sprintf("%s/%s/frame-%s.png", projectID, shotID, role)
}

func (f *fakeBlobs) ClipPath(projectID, shotID string) string {
	return fmt.Sprintf("%s/%s/clip.mp4", projectID, shotID)
}

func (f *fakeBlobs) GridPath(projectID, shotID string) string {
	return fmt.Sprintf("%s/%s/grid.png", projectID, shotID)
}

// put registers an object and returns its public URL.
func (f *fakeBlobs) put(path string, data []byte) string {
	f.mu.Lock()
	f.objects[path] = data
	f.mu.Unlock()
	return f.GetPublicURL(path)
}

type fakeGate struct {
	mu      sync.Mutex
	calls   int
	handled bool
}

func (f *fakeGate) HandleAuthError(ctx context.Context, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.handled
}

type nopPacer struct{}

func (nopPacer) Wait(ctx context.Context) error { return ctx.Err() }

// test fixture --------------------------------------------------------------

type fixture struct {
	store   *store.MemoryStore
	images  *fakeImages
	veo     *fakeVideo
	planner *fakePlanner
	blobs   *fakeBlobs
	pipe    *Pipeline
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		store:   store.NewMemoryStore(),
		images:  &fakeImages{},
		veo:     &fakeVideo{},
		planner: &fakePlanner{panels: ninePanels()},
		blobs:   newFakeBlobs(),
	}
	if opts.Pacer == nil {
		opts.Pacer = nopPacer{}
	}
	videos := map[models.VideoModel]VideoClient{models.VideoModelVeo: f.veo}
	f.pipe = New(f.store, f.images, videos, f.planner, f.blobs, opts)
	return f
}

func ninePanels() []models.Panel {
	panels := make([]models.Panel, 9)
	for i := range panels {
		panels[i] = models.Panel{
			Index:       i,
			ShotSize:    "medium shot",
			CameraAngle: fmt.Sprintf("angle %d", i),
			Description: fmt.Sprintf("panel %d of the same moment", i),
		}
	}
	return panels
}

func seedProject(f *fixture, shots ...models.Shot) *models.Project {
	project := &models.Project{
		ID:          "proj-1",
		Title:       "Harbor at Dawn",
		Language:    "en",
		VisualStyle: models.StyleCinematic,
		Shots:       shots,
		RenderLog:   []models.RenderEvent{},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := f.store.Save(context.Background(), project); err != nil {
		panic(err)
	}
	return project
}

func basicShot(id string) models.Shot {
	return models.Shot{
		ID:             id,
		SceneID:        "scene-1",
		ActionSummary:  "A fisherman unties his boat",
		CameraMovement: models.CameraStatic,
		VideoModel:     models.VideoModelVeo,
	}
}

func completedFrame(id string, role models.FrameRole, url, prompt string) *models.Keyframe {
	return &models.Keyframe{
		ID:           id,
		Role:         role,
		VisualPrompt: prompt,
		ImageURL:     &url,
		Status:       models.FrameStatusCompleted,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func getShot(f *fixture, projectID, shotID string) *models.Shot {
	project, err := f.store.Get(context.Background(), projectID)
	if err != nil {
		panic(err)
	}
	shot, _ := project.ShotByID(shotID)
	return shot
}
