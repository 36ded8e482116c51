package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/velvela/shotcraft/internal/models"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrShotNotFound    = errors.New("shot not found")
)

// Store is the persistence collaborator: whole-project snapshots keyed by
// project id, plus atomic update transactions. UpdateShot is the only write
// path the pipeline uses for shot state, so concurrent updates to different
// shots of the same project can never clobber each other.
type Store interface {
	Get(ctx context.Context, projectID string) (*models.Project, error)
	Save(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, projectID string) error
	List(ctx context.Context) ([]models.Project, error)

	// UpdateProject applies fn to the project under the store's write lock.
	UpdateProject(ctx context.Context, projectID string, fn func(*models.Project) error) error

	// UpdateShot applies fn to one shot as a single read-modify-write.
	UpdateShot(ctx context.Context, projectID, shotID string, fn func(*models.Shot) error) error

	// AppendRenderEvent appends to the project's render log.
	AppendRenderEvent(ctx context.Context, projectID string, event models.RenderEvent) error
}

// migrate defaults fields older snapshots may lack. Snapshots written before
// the render log existed load with RenderLog == nil.
func migrate(p *models.Project) {
	if p.RenderLog == nil {
		p.RenderLog = []models.RenderEvent{}
	}
}

// MemoryStore is the in-process implementation, used in tests and when no
// Redis URL is configured. One mutex per project keeps unrelated projects'
// transactions from serializing against each other.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*projectEntry
}

type projectEntry struct {
	mu      sync.Mutex
	project *models.Project
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*projectEntry),
	}
}

func (s *MemoryStore) entry(projectID string) (*projectEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return e, nil
}

func (s *MemoryStore) Get(ctx context.Context, projectID string) (*models.Project, error) {
	e, err := s.entry(projectID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := clone(e.project)
	migrate(snapshot)
	return snapshot, nil
}

func (s *MemoryStore) Save(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	migrate(project)
	project.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.projects[project.ID]; ok {
		e.mu.Lock()
		e.project = clone(project)
		e.mu.Unlock()
		return nil
	}
	s.projects[project.ID] = &projectEntry{project: clone(project)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	delete(s.projects, projectID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, 0, len(s.projects))
	for _, e := range s.projects {
		e.mu.Lock()
		snapshot := clone(e.project)
		e.mu.Unlock()
		migrate(snapshot)
		out = append(out, *snapshot)
	}
	return out, nil
}

func (s *MemoryStore) UpdateProject(ctx context.Context, projectID string, fn func(*models.Project) error) error {
	e, err := s.entry(projectID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := clone(e.project)
	migrate(working)
	if err := fn(working); err != nil {
		return err
	}
	working.UpdatedAt = time.Now()
	e.project = working
	return nil
}

func (s *MemoryStore) UpdateShot(ctx context.Context, projectID, shotID string, fn func(*models.Shot) error) error {
	return s.UpdateProject(ctx, projectID, func(p *models.Project) error {
		shot, _ := p.ShotByID(shotID)
		if shot == nil {
			return fmt.Errorf("%w: %s", ErrShotNotFound, shotID)
		}
		return fn(shot)
	})
}

func (s *MemoryStore) AppendRenderEvent(ctx context.Context, projectID string, event models.RenderEvent) error {
	return s.UpdateProject(ctx, projectID, func(p *models.Project) error {
		p.RenderLog = append(p.RenderLog, event)
		return nil
	})
}
