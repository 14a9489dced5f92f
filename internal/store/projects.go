package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

const projectColumns = `id, name, phase, maturity_score, created_at, updated_at`

func scanProject(sc interface{ Scan(...any) error }) (model.Project, error) {
	var p model.Project
	err := sc.Scan(&p.ID, &p.Name, &p.Phase, &p.MaturityScore, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProject inserts a project in the discovery phase.
func (s *Store) CreateProject(ctx context.Context, id, name string) (*model.Project, error) {
	now := Now()
	if _, err := s.execHook(ctx, s.db,
		`INSERT INTO projects (id, name, phase, maturity_score, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		id, name, model.PhaseDiscovery, now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, model.InvalidState("project %q already exists", id)
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return s.getProject(ctx, s.db, id)
}

func (s *Store) getProject(ctx context.Context, db dbtx, id string) (*model.Project, error) {
	row := db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	return &p, nil
}

// ListProjects returns every project, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.queryHook(ctx, s.db, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPhase moves a project from one phase to another and records the
// change in the activity log, in one transaction. It fails with an
// InvalidStateError when the project is no longer in from.
func (s *Store) SetPhase(ctx context.Context, projectID string, from, to model.Phase, note string) error {
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := Now()
	res, err := s.execHook(ctx, tx,
		`UPDATE projects SET phase = ?, updated_at = ? WHERE id = ? AND phase = ?`,
		to, now, projectID, from,
	)
	if err != nil {
		return fmt.Errorf("updating phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.getProject(ctx, tx, projectID); err != nil {
			return err
		}
		return model.InvalidState("project %s is no longer in phase %s", projectID, from)
	}

	if _, err := s.insertActivity(ctx, tx, model.Activity{
		ProjectID: projectID,
		Kind:      model.ActivityPhaseChange,
		Target:    fmt.Sprintf("%s->%s", from, to),
		Content:   note,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
