package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

const conflictColumns = `id, project_id, type, severity, involved, status, reason,
	decision, rationale, override, dedupe_key, created_at, resolved_at`

func scanConflict(sc interface{ Scan(...any) error }) (model.Conflict, error) {
	var (
		c         model.Conflict
		involved  string
		decision  *string
		rationale *string
		override  bool
	)
	if err := sc.Scan(
		&c.ID, &c.ProjectID, &c.Type, &c.Severity, &involved, &c.Status, &c.Reason,
		&decision, &rationale, &override, &c.DedupeKey, &c.CreatedAt, &c.ResolvedAt,
	); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(involved), &c.Involved); err != nil {
		return c, fmt.Errorf("decoding involved specifications of %s: %w", c.ID, err)
	}
	if decision != nil {
		c.Resolution = &model.Resolution{
			Decision:  model.Decision(*decision),
			Rationale: derefString(rationale),
			Override:  override,
		}
	}
	return c, nil
}

// insertConflict stores c unless a conflict with the same dedupe key
// already exists for the project, in any status. It reports whether a
// row was written.
func (s *Store) insertConflict(ctx context.Context, tx dbtx, c model.Conflict) (bool, error) {
	involved, err := json.Marshal(c.Involved)
	if err != nil {
		return false, fmt.Errorf("encoding involved specifications: %w", err)
	}
	res, err := s.execHook(ctx, tx,
		`INSERT OR IGNORE INTO conflicts (id, project_id, type, severity, involved, status, reason,
		                                  dedupe_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Type, c.Severity, string(involved), c.Status, c.Reason,
		c.DedupeKey, c.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting conflict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetConflict retrieves a conflict by id.
func (s *Store) GetConflict(ctx context.Context, id string) (*model.Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("conflict", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading conflict: %w", err)
	}
	return &c, nil
}

// ListConflicts returns a project's conflicts, optionally filtered by
// status, in detection order.
func (s *Store) ListConflicts(ctx context.Context, projectID string, status model.ConflictStatus) ([]model.Conflict, error) {
	return s.listConflicts(ctx, s.db, projectID, status)
}

func (s *Store) listConflicts(ctx context.Context, db dbtx, projectID string, status model.ConflictStatus) ([]model.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.queryHook(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	defer rows.Close()

	var out []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateConflictResolution persists a resolved or overridden conflict.
// Only an open conflict can be closed; anything else is an
// InvalidStateError.
func (s *Store) UpdateConflictResolution(ctx context.Context, c model.Conflict) error {
	if c.Resolution == nil || c.Status == model.StatusOpen {
		return fmt.Errorf("conflict %s has no resolution to store", c.ID)
	}
	res, err := s.execHook(ctx, s.db,
		`UPDATE conflicts
		 SET status = ?, decision = ?, rationale = ?, override = ?, resolved_at = ?
		 WHERE id = ? AND status = 'open'`,
		c.Status, c.Resolution.Decision, nullableString(c.Resolution.Rationale),
		boolInt(c.Resolution.Override), c.ResolvedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conflict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := s.GetConflict(ctx, c.ID)
		if err != nil {
			return err
		}
		return model.InvalidState("conflict %s is %s, not open", c.ID, cur.Status)
	}
	return nil
}
