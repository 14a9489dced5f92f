package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pathcost"
	"github.com/Nireus79/Socrates2-sub000/internal/pipeline"
	"github.com/Nireus79/Socrates2-sub000/internal/quality"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/Nireus79/Socrates2-sub000/internal/store"
	"github.com/google/go-cmp/cmp"
)

// timeoutClassifier always reports a timeout, like a slow remote model.
type timeoutClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *timeoutClassifier) Contradiction(context.Context, string, string) (float64, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return 0, &model.ExternalServiceTimeout{Service: "classifier", Err: context.DeadlineExceeded}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	st, err := store.New(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tables, err := rules.Default()
	if err != nil {
		t.Fatalf("rules.Default: %v", err)
	}
	e, err := New(st, tables, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func newProject(t *testing.T, e *Engine) string {
	t.Helper()
	p, err := e.CreateProject(context.Background(), "test project")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p.ID
}

func mustAdd(t *testing.T, e *Engine, projectID string, cat model.Category, content string) *WriteResult {
	t.Helper()
	res, err := e.AddSpecification(context.Background(), AddInput{
		ProjectID:  projectID,
		Category:   string(cat),
		Content:    content,
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("AddSpecification(%q): %v", content, err)
	}
	return res
}

func categoryRow(t *testing.T, rows []model.CategoryMaturity, cat model.Category) model.CategoryMaturity {
	t.Helper()
	for _, r := range rows {
		if r.Category == cat {
			return r
		}
	}
	t.Fatalf("no maturity row for %s", cat)
	return model.CategoryMaturity{}
}

func TestNew_RequiresStoreAndTables(t *testing.T) {
	tables, err := rules.Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(nil, tables, Options{}); err == nil {
		t.Error("expected error for nil store")
	}
	st, err := store.New(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, err := New(st, nil, Options{}); err == nil {
		t.Error("expected error for nil tables")
	}
}

func TestThreeCompleteCategoriesScoreThirty(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)

	for _, s := range []struct {
		cat     model.Category
		content string
	}{
		{model.CategoryGoals, "Small teams struggle to keep track of requirements"},
		{model.CategoryGoals, "Our target users are product managers"},
		{model.CategoryGoals, "The goal is fewer missed requirements"},
		{model.CategoryTechnology, "The backend is written in golang"},
		{model.CategoryTechnology, "Data lives in a PostgreSQL database"},
		{model.CategoryTechnology, "The frontend uses the React framework"},
		{model.CategoryTimeline, "Launch deadline is in 12 weeks"},
		{model.CategoryTimeline, "Development runs in two-week sprints"},
	} {
		mustAdd(t, e, pid, s.cat, s.content)
	}

	m, err := e.GetMaturity(ctx, pid)
	if err != nil {
		t.Fatalf("GetMaturity: %v", err)
	}
	if m.Overall != 30 {
		t.Errorf("overall = %v, want 30", m.Overall)
	}
	for _, cat := range []model.Category{model.CategoryGoals, model.CategoryTechnology, model.CategoryTimeline} {
		if got := categoryRow(t, m.ByCategory, cat).Completeness; got != 100 {
			t.Errorf("%s completeness = %v, want 100", cat, got)
		}
	}
	if m.Target != model.PhaseAnalysis || m.RequiredMinimum != 60 {
		t.Errorf("target = %s@%v, want analysis@60", m.Target, m.RequiredMinimum)
	}

	again, err := e.GetMaturity(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, again); diff != "" {
		t.Errorf("GetMaturity not deterministic (-first +second):\n%s", diff)
	}

	gate, err := e.CanAdvance(ctx, pid, "")
	if err != nil {
		t.Fatalf("CanAdvance: %v", err)
	}
	if gate.Allowed {
		t.Fatal("gate should be closed")
	}
	var cats int
	for _, b := range gate.Blockers {
		if b.Kind == model.BlockerCategory {
			cats++
		}
	}
	if cats != 7 || len(gate.Blockers) != 7 {
		t.Errorf("blockers = %+v, want 7 category blockers", gate.Blockers)
	}

	conflicts, err := e.ListConflicts(ctx, pid, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 0 {
		t.Errorf("conflicts = %+v, want none", conflicts)
	}
}

func TestContradictionResolveAndRescan(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)

	a := mustAdd(t, e, pid, model.CategoryFunctional, "no persistence")
	if len(a.Opened) != 0 {
		t.Fatalf("first spec opened %+v", a.Opened)
	}
	b := mustAdd(t, e, pid, model.CategoryFunctional, "remember user preference across sessions")
	if len(b.Opened) != 1 {
		t.Fatalf("opened = %+v, want exactly one conflict", b.Opened)
	}
	c := b.Opened[0]
	if c.Type != model.ConflictRequirement || c.Status != model.StatusOpen {
		t.Errorf("conflict = %s/%s, want requirement/open", c.Type, c.Status)
	}
	want := []string{a.Specification.ID, b.Specification.ID}
	got := c.InvolvedSpecIDs()
	if len(got) != 2 || !(got[0] == want[0] && got[1] == want[1] || got[0] == want[1] && got[1] == want[0]) {
		t.Errorf("involved = %v, want %v in any order", got, want)
	}

	open, err := e.ListConflicts(ctx, pid, "open")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("open conflicts = %d, want 1", len(open))
	}

	closed, err := e.ResolveConflict(ctx, c.ID, model.Resolution{Decision: "use-new", Rationale: "sessions matter"})
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if closed.Status != model.StatusResolved || closed.Resolution.Decision != model.DecisionUseNew {
		t.Errorf("closed = %s/%v, want resolved/use_new", closed.Status, closed.Resolution)
	}
	if closed.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}

	if _, err := e.ResolveConflict(ctx, c.ID, model.Resolution{Decision: model.DecisionKeepOld}); !model.IsInvalidState(err) {
		t.Errorf("second resolve err = %v, want InvalidStateError", err)
	}
	if _, err := e.ResolveConflict(ctx, "missing", model.Resolution{Decision: model.DecisionKeepOld}); !model.IsNotFound(err) {
		t.Errorf("unknown conflict err = %v, want NotFoundError", err)
	}

	for i := 0; i < 2; i++ {
		rs, err := e.Rescan(ctx, pid)
		if err != nil {
			t.Fatalf("Rescan: %v", err)
		}
		if len(rs.Opened) != 0 {
			t.Errorf("rescan %d reopened %+v", i, rs.Opened)
		}
		if rs.Skipped != 1 {
			t.Errorf("rescan %d skipped = %d, want 1", i, rs.Skipped)
		}
	}

	all, err := e.ListConflicts(ctx, pid, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Status != model.StatusResolved {
		t.Errorf("conflicts after rescan = %+v, want the single resolved one", all)
	}
}

func TestOverrideOnlyForKeepOldOrBothValid(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)
	mustAdd(t, e, pid, model.CategoryFunctional, "no persistence")
	res := mustAdd(t, e, pid, model.CategoryFunctional, "remember user preference across sessions")
	id := res.Opened[0].ID

	_, err := e.ResolveConflict(ctx, id, model.Resolution{Decision: model.DecisionUseNew, Override: true})
	if !model.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	c, err := e.ResolveConflict(ctx, id, model.Resolution{Decision: model.DecisionBothValid, Override: true})
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != model.StatusOverridden {
		t.Errorf("status = %s, want overridden", c.Status)
	}
}

func TestSoftDeleteDropsCompleteness(t *testing.T) {
	e := newTestEngine(t, Options{Thresholds: pipeline.Thresholds{model.PhaseAnalysis: 50}})
	ctx := context.Background()
	pid := newProject(t, e)

	added := mustAdd(t, e, pid, model.CategoryDeployment, "Deployed on AWS as a web app")
	row := categoryRow(t, added.Maturity.ByCategory, model.CategoryDeployment)
	if row.Completeness != 80 || !row.Satisfied {
		t.Fatalf("after add: %+v, want 80 and satisfied", row)
	}

	del, err := e.SoftDelete(ctx, added.Specification.LineageID)
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if del.Specification.DeletedAt == nil {
		t.Error("deleted_at not set")
	}
	row = categoryRow(t, del.Maturity.ByCategory, model.CategoryDeployment)
	if row.Completeness != 0 || row.Satisfied {
		t.Errorf("after delete: %+v, want 0 and not satisfied", row)
	}

	m, err := e.GetMaturity(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if got := categoryRow(t, m.ByCategory, model.CategoryDeployment); got.Completeness != 0 {
		t.Errorf("GetMaturity after delete = %v, want 0", got.Completeness)
	}

	if _, err := e.SoftDelete(ctx, added.Specification.LineageID); !model.IsInvalidState(err) {
		t.Errorf("second delete err = %v, want InvalidStateError", err)
	}
	if _, err := e.Supersede(ctx, SupersedeInput{LineageID: added.Specification.LineageID, Content: "On GCP"}); !model.IsInvalidState(err) {
		t.Errorf("supersede deleted err = %v, want InvalidStateError", err)
	}

	hist, err := e.History(ctx, added.Specification.LineageID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Errorf("history = %d versions, want 1 kept for audit", len(hist))
	}
}

func TestSupersedeKeepsOneCurrentVersion(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)

	first := mustAdd(t, e, pid, model.CategoryTechnology, "Data lives in MySQL")
	lineage := first.Specification.LineageID

	conf := 0.5
	res, err := e.Supersede(ctx, SupersedeInput{LineageID: lineage, Content: "Data lives in PostgreSQL", Confidence: &conf})
	if err != nil {
		t.Fatalf("Supersede: %v", err)
	}
	sp := res.Specification
	if sp.Version != 2 || sp.LineageID != lineage || sp.Category != model.CategoryTechnology {
		t.Errorf("new version = %+v", sp)
	}
	if sp.Source != model.SourceUserStated || sp.Confidence != 0.5 {
		t.Errorf("source/confidence = %s/%v, want inherited source and new confidence", sp.Source, sp.Confidence)
	}

	hist, err := e.History(ctx, lineage)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history = %d, want 2", len(hist))
	}
	if hist[0].IsCurrent || hist[0].SupersededBy == nil || *hist[0].SupersededBy != sp.ID {
		t.Errorf("old version = %+v, want retired and linked to %s", hist[0], sp.ID)
	}

	current, err := e.ListSpecifications(ctx, pid, "technology")
	if err != nil {
		t.Fatal(err)
	}
	if len(current) != 1 || current[0].ID != sp.ID {
		t.Errorf("current = %+v, want only version 2", current)
	}

	if _, err := e.Supersede(ctx, SupersedeInput{LineageID: "nope", Content: "x"}); !model.IsNotFound(err) {
		t.Errorf("unknown lineage err = %v, want NotFoundError", err)
	}
}

func TestValidation(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)

	tests := []struct {
		name string
		in   AddInput
	}{
		{"missing project", AddInput{Category: "goals", Content: "x"}},
		{"bad category", AddInput{ProjectID: pid, Category: "vibes", Content: "x"}},
		{"empty content", AddInput{ProjectID: pid, Category: "goals", Content: "   "}},
		{"confidence above one", AddInput{ProjectID: pid, Category: "goals", Content: "x", Confidence: 1.5}},
		{"bad source", AddInput{ProjectID: pid, Category: "goals", Content: "x", Source: "rumor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.AddSpecification(ctx, tt.in); !model.IsValidation(err) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	if _, err := e.AddSpecification(ctx, AddInput{ProjectID: "ghost", Category: "goals", Content: "x"}); !model.IsNotFound(err) {
		t.Errorf("unknown project err = %v, want NotFoundError", err)
	}
	if _, err := e.ListConflicts(ctx, pid, "closed"); !model.IsValidation(err) {
		t.Errorf("bad status err = %v, want ValidationError", err)
	}
	if _, err := e.CreateProject(ctx, " "); !model.IsValidation(err) {
		t.Errorf("empty name err = %v, want ValidationError", err)
	}
}

func TestUnanalyzableContentIsStoredAndSkipped(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)

	mustAdd(t, e, pid, model.CategoryFunctional, "no persistence")
	res := mustAdd(t, e, pid, model.CategoryFunctional, "remember\a everything across sessions")
	if !res.Specification.Unanalyzed {
		t.Error("spec should be flagged unanalyzed")
	}
	if len(res.Opened) != 0 {
		t.Errorf("unanalyzed spec opened %+v", res.Opened)
	}

	rs, err := e.Rescan(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Opened) != 0 {
		t.Errorf("rescan opened %+v for an unanalyzed spec", rs.Opened)
	}

	specs, err := e.ListSpecifications(ctx, pid, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 {
		t.Errorf("specs = %d, want both stored", len(specs))
	}
}

func TestClassifierTimeoutDoesNotFailTheWrite(t *testing.T) {
	fake := &timeoutClassifier{}
	e := newTestEngine(t, Options{Classifier: fake})
	ctx := context.Background()
	pid := newProject(t, e)

	mustAdd(t, e, pid, model.CategoryFunctional, "Exports are CSV files")
	res := mustAdd(t, e, pid, model.CategoryFunctional, "Exports are PDF files only")
	if len(res.Opened) != 0 {
		t.Errorf("opened = %+v, want none on classifier timeout", res.Opened)
	}
	if fake.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", fake.calls)
	}

	// Rescans never call the classifier.
	if _, err := e.Rescan(ctx, pid); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 1 {
		t.Errorf("classifier calls after rescan = %d, want 1", fake.calls)
	}
}

func TestCriticalConflictBlocksUntilOverridden(t *testing.T) {
	th := pipeline.DefaultThresholds()
	th[model.PhaseAnalysis] = 0
	e := newTestEngine(t, Options{Thresholds: th})
	ctx := context.Background()
	pid := newProject(t, e)

	mustAdd(t, e, pid, model.CategoryTechnology, "All data is kept in SQLite")
	res := mustAdd(t, e, pid, model.CategoryConstraints, "Must handle 500 concurrent users")

	var tech *model.Conflict
	for i := range res.Opened {
		if res.Opened[i].Type == model.ConflictTechnology {
			tech = &res.Opened[i]
		}
	}
	if tech == nil {
		t.Fatalf("opened = %+v, want a technology conflict", res.Opened)
	}
	if tech.Severity != model.SeverityCritical {
		t.Errorf("severity = %s, want critical", tech.Severity)
	}

	_, err := e.Advance(ctx, pid, "")
	var blocked *model.GateBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Advance err = %v, want GateBlockedError", err)
	}
	found := false
	for _, b := range blocked.Blockers {
		if b.Kind == model.BlockerConflict && b.ConflictID == tech.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("blockers = %+v, want conflict %s", blocked.Blockers, tech.ID)
	}
	p, err := e.GetProject(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if p.Phase != model.PhaseDiscovery {
		t.Errorf("phase = %s after a blocked advance", p.Phase)
	}

	for _, c := range res.Opened {
		if _, err := e.ResolveConflict(ctx, c.ID, model.Resolution{Decision: model.DecisionBothValid, Override: true}); err != nil {
			t.Fatalf("ResolveConflict(%s): %v", c.ID, err)
		}
	}

	adv, err := e.Advance(ctx, pid, "analysis")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if adv.Project.Phase != model.PhaseAnalysis || !adv.Gate.Allowed {
		t.Errorf("advance = %+v", adv)
	}

	rev, err := e.Revert(ctx, pid, "", "new information")
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if rev.Project.Phase != model.PhaseDiscovery {
		t.Errorf("phase after revert = %s, want discovery", rev.Project.Phase)
	}
	if _, err := e.Revert(ctx, pid, "", ""); err == nil {
		t.Error("revert from the first phase should fail")
	}
}

func TestAdvanceSkippingPhaseIsBlocked(t *testing.T) {
	e := newTestEngine(t, Options{})
	pid := newProject(t, e)
	gate, err := e.CanAdvance(context.Background(), pid, "design")
	if err != nil {
		t.Fatal(err)
	}
	if gate.Allowed {
		t.Fatal("skipping a phase should not be allowed")
	}
	if gate.Blockers[0].Kind != model.BlockerPhaseOrder {
		t.Errorf("first blocker = %+v, want phase_order", gate.Blockers[0])
	}
}

func TestConcurrentWrites(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)
	other := newProject(t, e)

	base := mustAdd(t, e, pid, model.CategoryGoals, "Version zero")
	lineage := base.Specification.LineageID

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, 3*n)
	for i := 0; i < n; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, err := e.AddSpecification(ctx, AddInput{ProjectID: pid, Category: "functional_requirements", Content: "no persistence", Confidence: 0.9})
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := e.AddSpecification(ctx, AddInput{ProjectID: other, Category: "team", Content: fmt.Sprintf("Engineer %d knows Go", i), Confidence: 0.9})
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := e.Supersede(ctx, SupersedeInput{LineageID: lineage, Content: fmt.Sprintf("Version %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write: %v", err)
		}
	}

	hist, err := e.History(ctx, lineage)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != n+1 {
		t.Fatalf("versions = %d, want %d", len(hist), n+1)
	}
	current := 0
	for i, sp := range hist {
		if sp.Version != i+1 {
			t.Errorf("hist[%d].Version = %d", i, sp.Version)
		}
		if sp.IsCurrent {
			current++
		}
	}
	if current != 1 {
		t.Errorf("current versions = %d, want 1", current)
	}

	team, err := e.ListSpecifications(ctx, other, "team")
	if err != nil {
		t.Fatal(err)
	}
	if len(team) != n {
		t.Errorf("team specs = %d, want %d", len(team), n)
	}
	if h := e.locks.held(); h != 0 {
		t.Errorf("locks held after writes = %d, want 0", h)
	}
}

func TestParallelProjectWrites(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()

	const projects, perProject = 16, 20
	pids := make([]string, projects)
	for i := range pids {
		pids[i] = newProject(t, e)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)
	for _, pid := range pids {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			for k := 0; k < perProject; k++ {
				_, err := e.AddSpecification(ctx, AddInput{
					ProjectID:  pid,
					Category:   "functional_requirements",
					Content:    fmt.Sprintf("Users can export report %d", k),
					Confidence: 0.9,
				})
				if err != nil {
					mu.Lock()
					failed = append(failed, err)
					mu.Unlock()
				}
			}
		}(pid)
	}
	wg.Wait()

	if len(failed) > 0 {
		t.Fatalf("%d of %d writes failed; first: %v", len(failed), projects*perProject, failed[0])
	}
	for _, pid := range pids {
		specs, err := e.ListSpecifications(ctx, pid, "functional_requirements")
		if err != nil {
			t.Fatal(err)
		}
		if len(specs) != perProject {
			t.Errorf("project %s: %d specs, want %d", pid, len(specs), perProject)
		}
	}
}

func TestAddSpecification_SelfContradictionWarns(t *testing.T) {
	e := newTestEngine(t, Options{})
	pid := newProject(t, e)

	res := mustAdd(t, e, pid, model.CategoryTechnology, "Store data in SQLite for 500 concurrent users")
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %+v, want one", res.Warnings)
	}
	w := res.Warnings[0]
	if w.Type != model.ConflictTechnology || w.Severity != model.SeverityCritical {
		t.Errorf("warning = %+v, want critical technology", w)
	}
	if len(res.Opened) != 0 {
		t.Errorf("opened = %+v, a lone spec cannot open a conflict", res.Opened)
	}

	if res := mustAdd(t, e, pid, model.CategoryGoals, "Help small teams plan sprints"); len(res.Warnings) != 0 {
		t.Errorf("warnings = %+v, want none", res.Warnings)
	}
}

func TestReloadRules(t *testing.T) {
	e := newTestEngine(t, Options{})
	if err := e.ReloadRules(nil); err == nil {
		t.Error("nil tables should be rejected")
	}

	tables, err := rules.Default()
	if err != nil {
		t.Fatal(err)
	}
	tables.Adequacy.Categories[model.CategoryDeployment] = rules.CategoryRule{
		CountCap:    1,
		CountWeight: 100,
	}
	if err := e.ReloadRules(tables); err != nil {
		t.Fatalf("ReloadRules: %v", err)
	}
	if e.Tables() != tables {
		t.Error("active tables were not swapped")
	}

	pid := newProject(t, e)
	mustAdd(t, e, pid, model.CategoryDeployment, "Something about shipping")
	m, err := e.GetMaturity(context.Background(), pid)
	if err != nil {
		t.Fatal(err)
	}
	if got := categoryRow(t, m.ByCategory, model.CategoryDeployment).Completeness; got != 100 {
		t.Errorf("deployment completeness = %v, want 100 under the reloaded table", got)
	}
}

func TestRecordActivityAndLint(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)

	rec, err := e.RecordActivity(ctx, model.Activity{
		ProjectID: pid,
		Kind:      model.ActivityQuestion,
		Content:   "Don't you think Postgres is the obvious pick?",
	})
	if err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if rec.Activity.ID == 0 || rec.Activity.CreatedAt == "" {
		t.Errorf("activity = %+v, want id and timestamp", rec.Activity)
	}
	if rec.Bias == nil || rec.Bias.Score <= 0 {
		t.Errorf("bias = %+v, want a positive score for a leading question", rec.Bias)
	}

	ans, err := e.RecordActivity(ctx, model.Activity{ProjectID: pid, Kind: model.ActivityAnswer, Content: "Maybe"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Bias != nil {
		t.Error("answers are not linted")
	}

	for _, a := range []model.Activity{
		{ProjectID: pid, Kind: model.ActivityPhaseChange, Content: "x"},
		{ProjectID: pid, Kind: "gossip", Content: "x"},
		{ProjectID: pid, Kind: model.ActivityCodeChange},
		{ProjectID: pid, Kind: model.ActivityAnswer, Category: "vibes", Content: "x"},
	} {
		if _, err := e.RecordActivity(ctx, a); !model.IsValidation(err) {
			t.Errorf("RecordActivity(%+v) err = %v, want ValidationError", a, err)
		}
	}
	if _, err := e.RecordActivity(ctx, model.Activity{ProjectID: "ghost", Kind: model.ActivityAnswer, Content: "x"}); !model.IsNotFound(err) {
		t.Errorf("unknown project err = %v, want NotFoundError", err)
	}

	lint, err := e.LintText("What are the main problems users have today?")
	if err != nil {
		t.Fatal(err)
	}
	if lint.Score != 0 {
		t.Errorf("neutral question score = %v, want 0", lint.Score)
	}
	if _, err := e.LintText(""); !model.IsValidation(err) {
		t.Errorf("empty text err = %v, want ValidationError", err)
	}
}

func TestAnalyzeQuality(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	pid := newProject(t, e)

	empty, err := e.AnalyzeQuality(ctx, pid)
	if err != nil {
		t.Fatalf("AnalyzeQuality: %v", err)
	}
	if empty.Coverage.Status != quality.StatusInsufficientData {
		t.Errorf("coverage status = %s, want insufficient_data with no specs", empty.Coverage.Status)
	}

	mustAdd(t, e, pid, model.CategoryGoals, "The goal is fewer missed requirements")
	r, err := e.AnalyzeQuality(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if r.Coverage.Status != quality.StatusOK || len(r.Coverage.Lowest) != 3 {
		t.Errorf("coverage = %+v, want three lowest categories", r.Coverage)
	}
	for _, row := range r.Coverage.Lowest {
		if row.Category == model.CategoryGoals {
			t.Error("the only covered category should not be among the lowest")
		}
	}
	if len(r.Patterns) == 0 {
		t.Error("bad-pattern checks did not run")
	}

	if _, err := e.AnalyzeQuality(ctx, "ghost"); !model.IsNotFound(err) {
		t.Errorf("unknown project err = %v, want NotFoundError", err)
	}
}

func TestRecommendPaths(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()
	candidates := []pathcost.Candidate{
		{Name: "rewrite", DirectCost: 10, FailureProbability: 0.5, ReworkCost: 20},
		{Name: "patch", DirectCost: 12, FailureProbability: 0.1, ReworkCost: 10},
	}

	res, err := e.RecommendPaths(ctx, "", candidates)
	if err != nil {
		t.Fatalf("RecommendPaths: %v", err)
	}
	if res.Ranked[0].Name != "patch" || res.Ranked[0].ExpectedCost != 13 {
		t.Errorf("top = %+v, want patch at 13", res.Ranked[0])
	}
	if res.Maturity != nil || res.RequiresExplicitChoice {
		t.Errorf("no project given, policy should be empty: %+v", res)
	}

	pid := newProject(t, e)
	res, err = e.RecommendPaths(ctx, pid, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if res.Maturity == nil || *res.Maturity != 0 || *res.Threshold != 60 {
		t.Errorf("policy = %v/%v, want 0/60", res.Maturity, res.Threshold)
	}
	if res.RequiresExplicitChoice {
		t.Error("an empty project is below threshold")
	}

	if _, err := e.RecommendPaths(ctx, "", nil); !model.IsValidation(err) {
		t.Errorf("no candidates err = %v, want ValidationError", err)
	}
}

func TestWritesUseTheClock(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	timeNow = func() time.Time { return frozen }
	t.Cleanup(func() { timeNow = time.Now })

	e := newTestEngine(t, Options{})
	pid := newProject(t, e)
	res := mustAdd(t, e, pid, model.CategoryGoals, "The goal is fewer missed requirements")
	if want := store.Format(frozen); res.Specification.CreatedAt != want {
		t.Errorf("created_at = %s, want %s", res.Specification.CreatedAt, want)
	}
}
