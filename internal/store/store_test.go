package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/velvela/shotcraft/internal/models"
)

func seedProject(t *testing.T, s *MemoryStore) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:          "proj-1",
		Title:       "Harbor at Dawn",
		Language:    "en",
		VisualStyle: models.StyleCinematic,
		Shots: []models.Shot{
			{ID: "shot-1", ActionSummary: "first", CameraMovement: models.CameraStatic},
			{ID: "shot-2", ActionSummary: "second", CameraMovement: models.CameraPanLeft},
		},
		CreatedAt: time.Now(),
	}
	if err := s.Save(context.Background(), project); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return project
}

func TestMemoryStoreGetReturnsIsolatedSnapshot(t *testing.T) {
	s := NewMemoryStore()
	seedProject(t, s)
	ctx := context.Background()

	first, err := s.Get(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first.Shots[0].ActionSummary = "mutated locally"

	second, _ := s.Get(ctx, "proj-1")
	if second.Shots[0].ActionSummary != "first" {
		t.Error("mutating a snapshot must not leak into the store")
	}
}

func TestMemoryStoreGetUnknownProject(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdateShot(t *testing.T) {
	s := NewMemoryStore()
	seedProject(t, s)
	ctx := context.Background()

	err := s.UpdateShot(ctx, "proj-1", "shot-2", func(shot *models.Shot) error {
		shot.ActionSummary = "rewritten"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateShot failed: %v", err)
	}

	project, _ := s.Get(ctx, "proj-1")
	if project.Shots[1].ActionSummary != "rewritten" {
		t.Error("shot update not persisted")
	}
	if project.Shots[0].ActionSummary != "first" {
		t.Error("other shots must be untouched")
	}

	if err := s.UpdateShot(ctx, "proj-1", "ghost", func(*models.Shot) error { return nil }); !errors.Is(err, ErrShotNotFound) {
		t.Errorf("expected ErrShotNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdateErrorDiscardsChanges(t *testing.T) {
	s := NewMemoryStore()
	seedProject(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.UpdateProject(ctx, "proj-1", func(p *models.Project) error {
		p.Title = "half-written"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to surface, got %v", err)
	}

	project, _ := s.Get(ctx, "proj-1")
	if project.Title != "Harbor at Dawn" {
		t.Error("a failed transaction must not persist partial writes")
	}
}

func TestMemoryStoreConcurrentShotUpdates(t *testing.T) {
	s := NewMemoryStore()
	seedProject(t, s)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendRenderEvent(ctx, "proj-1", models.RenderEvent{
				ID:     "ev",
				ShotID: "shot-1",
				Kind:   models.RenderEventKeyframe,
				Status: models.FrameStatusCompleted,
			})
		}()
	}
	wg.Wait()

	project, _ := s.Get(ctx, "proj-1")
	if len(project.RenderLog) != 50 {
		t.Errorf("render log has %d events, want 50", len(project.RenderLog))
	}
}

func TestMigrateDefaultsRenderLog(t *testing.T) {
	p := &models.Project{ID: "proj-1"}
	migrate(p)
	if p.RenderLog == nil {
		t.Error("migrate must default a nil render log to an empty slice")
	}
}

func TestMemoryStoreDeleteAndList(t *testing.T) {
	s := NewMemoryStore()
	seedProject(t, s)
	ctx := context.Background()

	projects, err := s.List(ctx)
	if err != nil || len(projects) != 1 {
		t.Fatalf("List = %v, %v", projects, err)
	}

	if err := s.Delete(ctx, "proj-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "proj-1"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("double delete must report not found, got %v", err)
	}
	if projects, _ := s.List(ctx); len(projects) != 0 {
		t.Errorf("List after delete = %v", projects)
	}
}
