package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/velvela/shotcraft/internal/models"
)

const projectKeyPrefix = "project:"

// txRetries bounds optimistic-lock retries before giving up. Contention is
// per-project and updates are tiny, so collisions resolve in one or two spins.
const txRetries = 8

// RedisStore saves whole-project snapshots as JSON values keyed by project id.
// Update transactions use WATCH/MULTI optimistic concurrency: a concurrent
// write to the same project aborts the transaction and it is retried against
// the fresh snapshot, so different shots' updates never clobber each other.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func projectKey(projectID string) string {
	return projectKeyPrefix + projectID
}

func (s *RedisStore) Get(ctx context.Context, projectID string) (*models.Project, error) {
	data, err := s.client.Get(ctx, projectKey(projectID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	var project models.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to decode project snapshot: %w", err)
	}
	migrate(&project)
	return &project, nil
}

func (s *RedisStore) Save(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	migrate(project)
	project.UpdatedAt = time.Now()

	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to encode project snapshot: %w", err)
	}

	if err := s.client.Set(ctx, projectKey(project.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, projectID string) error {
	n, err := s.client.Del(ctx, projectKey(projectID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	iter := s.client.Scan(ctx, 0, projectKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load project %s: %w", iter.Val(), err)
		}
		var project models.Project
		if err := json.Unmarshal(data, &project); err != nil {
			return nil, fmt.Errorf("failed to decode project %s: %w", iter.Val(), err)
		}
		migrate(&project)
		projects = append(projects, project)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan projects: %w", err)
	}
	return projects, nil
}

func (s *RedisStore) UpdateProject(ctx context.Context, projectID string, fn func(*models.Project) error) error {
	key := projectKey(projectID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		if err != nil {
			return fmt.Errorf("failed to load project: %w", err)
		}

		var project models.Project
		if err := json.Unmarshal(data, &project); err != nil {
			return fmt.Errorf("failed to decode project snapshot: %w", err)
		}
		migrate(&project)

		if err := fn(&project); err != nil {
			return err
		}
		project.UpdatedAt = time.Now()

		updated, err := json.Marshal(&project)
		if err != nil {
			return fmt.Errorf("failed to encode project snapshot: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue // concurrent write, retry against the fresh snapshot
		}
		return err
	}
	return fmt.Errorf("project update contention exceeded %d retries", txRetries)
}

func (s *RedisStore) UpdateShot(ctx context.Context, projectID, shotID string, fn func(*models.Shot) error) error {
	return s.UpdateProject(ctx, projectID, func(p *models.Project) error {
		shot, _ := p.ShotByID(shotID)
		if shot == nil {
			return fmt.Errorf("%w: %s", ErrShotNotFound, shotID)
		}
		return fn(shot)
	})
}

func (s *RedisStore) AppendRenderEvent(ctx context.Context, projectID string, event models.RenderEvent) error {
	return s.UpdateProject(ctx, projectID, func(p *models.Project) error {
		p.RenderLog = append(p.RenderLog, event)
		return nil
	})
}
