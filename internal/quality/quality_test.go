package quality

import (
	"errors"
	"testing"

	"github.com/Nireus79/Socrates2-sub000/internal/maturity"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/google/go-cmp/cmp"
)

func biasTable(t *testing.T) *rules.Bias {
	t.Helper()
	tables, err := rules.Default()
	if err != nil {
		t.Fatalf("rules.Default: %v", err)
	}
	return &tables.Bias
}

func act(id int64, kind model.ActivityKind, cat model.Category, target, content string) model.Activity {
	return model.Activity{ID: id, ProjectID: "p1", Kind: kind, Category: cat, Target: target, Content: content}
}

// --- bias ---

func TestLintText(t *testing.T) {
	table := biasTable(t)
	tests := []struct {
		text  string
		score float64
		kinds []string
	}{
		{"What problem are you trying to solve?", 0, nil},
		{"Which database should we use?", 0.3, []string{"technology_first"}},
		{"You should use Postgres, obviously.", 0.52, []string{"solution_bias", "solution_bias"}},
		{"Don't you think React is the best choice, right?", 0.65, []string{"leading_question", "leading_question"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := LintText(tt.text, table)
			if res.Score != tt.score {
				t.Errorf("score = %v, want %v", res.Score, tt.score)
			}
			var kinds []string
			for _, m := range res.Matches {
				kinds = append(kinds, m.Kind)
			}
			if diff := cmp.Diff(tt.kinds, kinds); diff != "" {
				t.Errorf("kinds mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProjectBias(t *testing.T) {
	table := biasTable(t)

	if _, err := ProjectBias([]model.Activity{act(1, model.ActivityAnswer, "", "", "we use go")}, table); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}

	summary, err := ProjectBias([]model.Activity{
		act(1, model.ActivityQuestion, "", "", "You should use Postgres, obviously."),
		act(2, model.ActivityAnswer, "", "", "ok"),
		act(3, model.ActivityRecommendation, "", "", "Consider who the users are."),
	}, table)
	if err != nil {
		t.Fatalf("ProjectBias: %v", err)
	}
	if summary.Samples != 2 {
		t.Errorf("samples = %d, want 2", summary.Samples)
	}
	if summary.Score != 0.26 {
		t.Errorf("score = %v, want 0.26", summary.Score)
	}
	if diff := cmp.Diff([]int64{1}, summary.Worst); diff != "" {
		t.Errorf("worst mismatch (-want +got):\n%s", diff)
	}
}

// --- checks ---

func TestTestWeakening(t *testing.T) {
	check := TestWeakening{MinChanges: 3, Repeats: 2}

	_, err := check.Run(History{Activities: []model.Activity{
		act(1, model.ActivityTestChange, "", "TestLogin", "skip the flaky assertion"),
	}})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}

	f, err := check.Run(History{Activities: []model.Activity{
		act(1, model.ActivityTestChange, "", "TestLogin", "skip the flaky assertion"),
		act(2, model.ActivityTestChange, "", "TestSignup", "add a table case"),
		act(3, model.ActivityTestChange, "", "TestLogin", "increased tolerance to 500ms"),
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f == nil {
		t.Fatal("expected a finding")
	}
	if diff := cmp.Diff([]int64{1, 3}, f.Evidence); diff != "" {
		t.Errorf("evidence mismatch (-want +got):\n%s", diff)
	}
	if f.Severity != model.SeverityMedium {
		t.Errorf("severity = %s, want medium", f.Severity)
	}
}

func TestScopeCreep(t *testing.T) {
	check := ScopeCreep{MinFeatures: 3, MaxUnscoped: 3}
	specs := []model.Specification{{
		ID: "s1", Category: model.CategoryFunctional, Content: "Users can export reports as CSV", IsCurrent: true,
	}}

	f, err := check.Run(History{Specs: specs, Activities: []model.Activity{
		act(1, model.ActivityFeatureAdded, "", "export to PDF", ""),
		act(2, model.ActivityFeatureAdded, "", "dark mode theme", ""),
		act(3, model.ActivityFeatureAdded, "", "chat widget", ""),
		act(4, model.ActivityFeatureAdded, "", "gamification badges", ""),
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f == nil {
		t.Fatal("expected a finding")
	}
	if diff := cmp.Diff([]int64{2, 3, 4}, f.Evidence); diff != "" {
		t.Errorf("evidence mismatch (-want +got):\n%s", diff)
	}
	if f.Severity != model.SeverityHigh {
		t.Errorf("severity = %s, want high", f.Severity)
	}
}

func TestTunnelVision(t *testing.T) {
	check := TunnelVision{MinQuestions: 5, Window: 10, Share: 0.6}

	var acts []model.Activity
	for i := int64(1); i <= 5; i++ {
		acts = append(acts, act(i, model.ActivityQuestion, model.CategoryTechnology, "", "which version?"))
	}
	acts = append(acts, act(6, model.ActivityQuestion, model.CategoryGoals, "", "who is it for?"))

	f, err := check.Run(History{Activities: acts})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f == nil || len(f.Evidence) != 5 {
		t.Fatalf("finding = %+v, want 5 technology questions as evidence", f)
	}

	if _, err := check.Run(History{Activities: acts[:4]}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestPrematureOptimization(t *testing.T) {
	check := PrematureOptimization{MinSamples: 5, Share: 0.4}
	acts := []model.Activity{
		act(1, model.ActivityQuestion, "", "", "Should we add a caching layer?"),
		act(2, model.ActivityQuestion, "", "", "What latency is acceptable?"),
		act(3, model.ActivityRecommendation, "", "", "Plan for sharding early"),
		act(4, model.ActivityQuestion, "", "", "Who are the users?"),
		act(5, model.ActivityQuestion, "", "", "What does success look like?"),
	}

	f, err := check.Run(History{Phase: model.PhaseDiscovery, Activities: acts})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f == nil || len(f.Evidence) != 3 {
		t.Fatalf("finding = %+v, want 3 hits", f)
	}

	f, err = check.Run(History{Phase: model.PhaseDesign, Activities: acts})
	if err != nil || f != nil {
		t.Errorf("design phase: finding = %+v, err = %v; want none", f, err)
	}
}

// --- report ---

type failingCheck struct{}

func (failingCheck) Name() string { return "failing" }
func (failingCheck) Run(History) (*Finding, error) { return nil, errors.New("boom") }

func TestAnalyze_SectionsDegradeIndependently(t *testing.T) {
	table := biasTable(t)
	empty := maturity.Calculate(nil, rules.Adequacy{}, nil)

	r := Analyze(Input{
		History:  History{Phase: model.PhaseDiscovery},
		Maturity: empty,
		Bias:     table,
		Checks:   append(DefaultChecks(), failingCheck{}),
	})

	if r.Bias.Status != StatusInsufficientData {
		t.Errorf("bias status = %s, want insufficient_data", r.Bias.Status)
	}
	if r.Coverage.Status != StatusInsufficientData {
		t.Errorf("coverage status = %s, want insufficient_data", r.Coverage.Status)
	}
	if len(r.Patterns) != 5 {
		t.Fatalf("pattern results = %d, want 5", len(r.Patterns))
	}
	for _, p := range r.Patterns[:4] {
		if p.Status != StatusInsufficientData {
			t.Errorf("%s status = %s, want insufficient_data", p.Check, p.Status)
		}
	}
	if last := r.Patterns[4]; last.Status != StatusFailed || last.Error != "boom" {
		t.Errorf("failing check = %+v, want failed with error", last)
	}
}

func TestCoverage_LowestFirst(t *testing.T) {
	specs := []model.Specification{
		{ID: "a", Category: model.CategoryGoals, Content: "x", Confidence: 1, IsCurrent: true},
	}
	table := rules.Adequacy{Categories: map[model.Category]rules.CategoryRule{}}
	for _, c := range model.Categories {
		table.Categories[c] = rules.CategoryRule{CountCap: 1, CountWeight: 100}
	}

	got := Coverage(maturity.Calculate(specs, table, nil), 2)
	if got.Status != StatusOK {
		t.Fatalf("status = %s, want ok", got.Status)
	}
	want := []model.Category{model.CategoryFunctional, model.CategoryTechnology}
	for i, row := range got.Lowest {
		if row.Category != want[i] {
			t.Errorf("position %d = %s, want %s", i, row.Category, want[i])
		}
	}
}
