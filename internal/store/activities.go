package store

import (
	"context"
	"fmt"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

// AddActivity appends an entry to a project's activity log and returns
// its id. CreatedAt defaults to now.
func (s *Store) AddActivity(ctx context.Context, a model.Activity) (int64, error) {
	if _, err := s.GetProject(ctx, a.ProjectID); err != nil {
		return 0, err
	}
	if a.CreatedAt == "" {
		a.CreatedAt = Now()
	}
	return s.insertActivity(ctx, s.db, a)
}

func (s *Store) insertActivity(ctx context.Context, db dbtx, a model.Activity) (int64, error) {
	res, err := s.execHook(ctx, db,
		`INSERT INTO activities (project_id, kind, category, target, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ProjectID, a.Kind, a.Category, a.Target, a.Content, a.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("recording activity: %w", err)
	}
	return res.LastInsertId()
}

// ListActivities returns a project's activity log in insertion order.
// A positive limit keeps only the most recent entries.
func (s *Store) ListActivities(ctx context.Context, projectID string, limit int) ([]model.Activity, error) {
	query := `SELECT id, project_id, kind, category, target, content, created_at
		 FROM activities WHERE project_id = ? ORDER BY id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.queryHook(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Kind, &a.Category, &a.Target, &a.Content, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
