package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

const specColumns = `id, project_id, lineage_id, category, content, source, confidence,
	version, is_current, superseded_by, deleted_at, unanalyzed, created_at`

func scanSpec(sc interface{ Scan(...any) error }) (model.Specification, error) {
	var sp model.Specification
	err := sc.Scan(
		&sp.ID, &sp.ProjectID, &sp.LineageID, &sp.Category, &sp.Content, &sp.Source, &sp.Confidence,
		&sp.Version, &sp.IsCurrent, &sp.SupersededBy, &sp.DeletedAt, &sp.Unanalyzed, &sp.CreatedAt,
	)
	return sp, err
}

func (s *Store) querySpecs(ctx context.Context, db dbtx, query string, args ...any) ([]model.Specification, error) {
	rows, err := s.queryHook(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying specifications: %w", err)
	}
	defer rows.Close()

	var out []model.Specification
	for rows.Next() {
		sp, err := scanSpec(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// GetSpecification retrieves any version by id, deleted or not.
func (s *Store) GetSpecification(ctx context.Context, id string) (*model.Specification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+specColumns+` FROM specifications WHERE id = ?`, id)
	sp, err := scanSpec(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("specification", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading specification: %w", err)
	}
	return &sp, nil
}

// GetCurrent returns the current version of a lineage. A soft-deleted
// lineage is still returned; callers check DeletedAt.
func (s *Store) GetCurrent(ctx context.Context, lineageID string) (*model.Specification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+specColumns+` FROM specifications WHERE lineage_id = ? AND is_current = 1`, lineageID)
	sp, err := scanSpec(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("lineage", lineageID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading lineage: %w", err)
	}
	return &sp, nil
}

// GetLineage returns every version of a lineage, oldest first.
func (s *Store) GetLineage(ctx context.Context, lineageID string) ([]model.Specification, error) {
	out, err := s.querySpecs(ctx, s.db,
		`SELECT `+specColumns+` FROM specifications WHERE lineage_id = ? ORDER BY version`, lineageID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, model.NotFound("lineage", lineageID)
	}
	return out, nil
}

// ListCurrent returns the current, non-deleted specifications of a
// project, optionally limited to one category. Order is creation order.
func (s *Store) ListCurrent(ctx context.Context, projectID string, category model.Category) ([]model.Specification, error) {
	return s.listCurrent(ctx, s.db, projectID, category)
}

func (s *Store) listCurrent(ctx context.Context, db dbtx, projectID string, category model.Category) ([]model.Specification, error) {
	query := `SELECT ` + specColumns + ` FROM specifications
		 WHERE project_id = ? AND is_current = 1 AND deleted_at IS NULL`
	args := []any{projectID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at, id`
	return s.querySpecs(ctx, db, query, args...)
}

// ─── Snapshot ────────────────────────────────────────────────────────────────

// Snapshot is a consistent read of everything a cascade or the gate
// needs for one project.
type Snapshot struct {
	Project   model.Project
	Specs     []model.Specification
	Conflicts []model.Conflict
	Maturity  []model.CategoryMaturity
}

// Snapshot reads a project, its current specifications, all of its
// conflicts and its stored maturity rows in one transaction.
func (s *Store) Snapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := s.getProject(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	specs, err := s.listCurrent(ctx, tx, projectID, "")
	if err != nil {
		return nil, err
	}
	conflicts, err := s.listConflicts(ctx, tx, projectID, "")
	if err != nil {
		return nil, err
	}
	rows, err := s.listMaturity(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Project: *p, Specs: specs, Conflicts: conflicts, Maturity: rows}, nil
}

// ─── Cascade ─────────────────────────────────────────────────────────────────

// Cascade is every write one specification change causes. ApplyCascade
// commits all of it or none of it.
type Cascade struct {
	ProjectID string
	// Insert is a new row: an addition, or the next version when
	// Supersedes is set.
	Insert *model.Specification
	// Supersedes is the id of the current version Insert replaces.
	Supersedes string
	// Delete is the id of a current version to soft-delete.
	Delete string
	// Conflicts are candidates; ones whose dedupe key already exists in
	// any status are skipped.
	Conflicts []model.Conflict
	Maturity  []model.CategoryMaturity
	Overall   float64
	At        string
}

// CascadeResult reports what ApplyCascade actually wrote.
type CascadeResult struct {
	Opened  []model.Conflict
	Skipped int
}

// ApplyCascade writes a cascade in one transaction. Superseding or
// deleting a version that is no longer current (or already deleted)
// fails with an InvalidStateError and writes nothing.
func (s *Store) ApplyCascade(ctx context.Context, c Cascade) (*CascadeResult, error) {
	if c.At == "" {
		c.At = Now()
	}

	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if c.Supersedes != "" {
		if c.Insert == nil {
			return nil, fmt.Errorf("supersede %s without a new version", c.Supersedes)
		}
		if err := s.retire(ctx, tx, c.ProjectID, c.Supersedes); err != nil {
			return nil, err
		}
	}

	if c.Insert != nil {
		if err := s.insertSpec(ctx, tx, *c.Insert); err != nil {
			return nil, err
		}
	}

	if c.Supersedes != "" {
		if _, err := s.execHook(ctx, tx,
			`UPDATE specifications SET superseded_by = ? WHERE id = ?`, c.Insert.ID, c.Supersedes,
		); err != nil {
			return nil, fmt.Errorf("linking superseded version: %w", err)
		}
	}

	if c.Delete != "" {
		res, err := s.execHook(ctx, tx,
			`UPDATE specifications SET deleted_at = ?
			 WHERE id = ? AND project_id = ? AND is_current = 1 AND deleted_at IS NULL`,
			c.At, c.Delete, c.ProjectID,
		)
		if err != nil {
			return nil, fmt.Errorf("soft-deleting specification: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, s.notCurrent(ctx, tx, c.Delete, "delete")
		}
	}

	result := &CascadeResult{}
	for _, cf := range c.Conflicts {
		opened, err := s.insertConflict(ctx, tx, cf)
		if err != nil {
			return nil, err
		}
		if opened {
			result.Opened = append(result.Opened, cf)
		} else {
			result.Skipped++
		}
	}

	if err := s.writeMaturity(ctx, tx, c.ProjectID, c.Maturity, c.Overall, c.At); err != nil {
		return nil, err
	}

	if err := s.commitHook(tx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// retire clears is_current on a version before its successor is inserted,
// so the one-current-per-lineage index never sees two current rows.
func (s *Store) retire(ctx context.Context, tx dbtx, projectID, id string) error {
	res, err := s.execHook(ctx, tx,
		`UPDATE specifications SET is_current = 0
		 WHERE id = ? AND project_id = ? AND is_current = 1 AND deleted_at IS NULL`,
		id, projectID,
	)
	if err != nil {
		return fmt.Errorf("retiring version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.notCurrent(ctx, tx, id, "supersede")
	}
	return nil
}

func (s *Store) notCurrent(ctx context.Context, tx dbtx, id, op string) error {
	row := tx.QueryRowContext(ctx, `SELECT `+specColumns+` FROM specifications WHERE id = ?`, id)
	sp, err := scanSpec(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotFound("specification", id)
	}
	if err != nil {
		return fmt.Errorf("reading specification: %w", err)
	}
	if sp.DeletedAt != nil {
		return model.InvalidState("cannot %s specification %s: it was deleted at %s", op, id, *sp.DeletedAt)
	}
	return model.InvalidState("cannot %s specification %s: version %d is no longer current", op, id, sp.Version)
}

func (s *Store) insertSpec(ctx context.Context, tx dbtx, sp model.Specification) error {
	if _, err := s.execHook(ctx, tx,
		`INSERT INTO specifications (id, project_id, lineage_id, category, content, source, confidence,
		                             version, is_current, unanalyzed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		sp.ID, sp.ProjectID, sp.LineageID, sp.Category, sp.Content, sp.Source, sp.Confidence,
		sp.Version, boolInt(sp.Unanalyzed), sp.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return model.InvalidState("lineage %s already has version %d", sp.LineageID, sp.Version)
		}
		return fmt.Errorf("inserting specification: %w", err)
	}
	return nil
}

// ─── Maturity rows ───────────────────────────────────────────────────────────

func (s *Store) writeMaturity(ctx context.Context, tx dbtx, projectID string, rows []model.CategoryMaturity, overall float64, at string) error {
	for _, m := range rows {
		missing, err := json.Marshal(nonNil(m.MissingTopics))
		if err != nil {
			return fmt.Errorf("encoding missing topics: %w", err)
		}
		if _, err := s.execHook(ctx, tx,
			`INSERT INTO category_maturity (project_id, category, spec_count, completeness,
			                                required_minimum, satisfied, missing_topics, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(project_id, category) DO UPDATE SET
			     spec_count       = excluded.spec_count,
			     completeness     = excluded.completeness,
			     required_minimum = excluded.required_minimum,
			     satisfied        = excluded.satisfied,
			     missing_topics   = excluded.missing_topics,
			     updated_at       = excluded.updated_at`,
			projectID, m.Category, m.SpecCount, m.Completeness, m.RequiredMinimum,
			boolInt(m.Satisfied), string(missing), at,
		); err != nil {
			return fmt.Errorf("writing maturity for %s: %w", m.Category, err)
		}
	}

	res, err := s.execHook(ctx, tx,
		`UPDATE projects SET maturity_score = ?, updated_at = ? WHERE id = ?`, overall, at, projectID)
	if err != nil {
		return fmt.Errorf("updating maturity score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("project", projectID)
	}
	return nil
}

// ListMaturity returns the stored maturity rows of a project in
// category order.
func (s *Store) ListMaturity(ctx context.Context, projectID string) ([]model.CategoryMaturity, error) {
	return s.listMaturity(ctx, s.db, projectID)
}

func (s *Store) listMaturity(ctx context.Context, db dbtx, projectID string) ([]model.CategoryMaturity, error) {
	rows, err := s.queryHook(ctx, db,
		`SELECT category, spec_count, completeness, required_minimum, satisfied, missing_topics
		 FROM category_maturity WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing maturity: %w", err)
	}
	defer rows.Close()

	byCat := make(map[model.Category]model.CategoryMaturity)
	for rows.Next() {
		var (
			m       model.CategoryMaturity
			missing string
		)
		if err := rows.Scan(&m.Category, &m.SpecCount, &m.Completeness, &m.RequiredMinimum, &m.Satisfied, &missing); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(missing), &m.MissingTopics); err != nil {
			return nil, fmt.Errorf("decoding missing topics: %w", err)
		}
		if len(m.MissingTopics) == 0 {
			m.MissingTopics = nil
		}
		byCat[m.Category] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.CategoryMaturity, 0, len(byCat))
	for _, c := range model.Categories {
		if m, ok := byCat[c]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
