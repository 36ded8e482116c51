package db

import (
	"context"
	"fmt"

	"github.com/velvela/shotcraft/internal/models"
)

// The render_events table is an append-only audit trail mirroring each
// project's in-store render log. It survives project deletion and feeds
// offline provider-failure analysis.

const createRenderEventsTable = `
CREATE TABLE IF NOT EXISTS render_events (
	id UUID PRIMARY KEY,
	project_id TEXT NOT NULL,
	shot_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_render_events_project ON render_events (project_id, created_at DESC);
`

// EnsureSchema creates the audit tables if they do not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, createRenderEventsTable); err != nil {
		return fmt.Errorf("failed to create render_events table: %w", err)
	}
	return nil
}

// RecordEvent appends one render event. Satisfies pipeline.AuditSink.
func (d *DB) RecordEvent(ctx context.Context, projectID string, event models.RenderEvent) error {
	_, err := d.ExecContext(ctx,
		`INSERT INTO render_events (id, project_id, shot_id, kind, status, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, projectID, event.ShotID, string(event.Kind), string(event.Status), event.Message, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert render event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events for a project, newest first.
func (d *DB) RecentEvents(ctx context.Context, projectID string, limit int) ([]models.RenderEvent, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT id, shot_id, kind, status, message, created_at
		 FROM render_events WHERE project_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query render events: %w", err)
	}
	defer rows.Close()

	var events []models.RenderEvent
	for rows.Next() {
		var ev models.RenderEvent
		if err := rows.Scan(&ev.ID, &ev.ShotID, &ev.Kind, &ev.Status, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan render event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
