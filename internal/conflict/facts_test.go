package conflict

import (
	"errors"
	"testing"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/google/go-cmp/cmp"
)

func mustTables(t *testing.T) *rules.Tables {
	t.Helper()
	tables, err := rules.Default()
	if err != nil {
		t.Fatalf("rules.Default: %v", err)
	}
	return tables
}

func newSpec(id string, cat model.Category, content string) model.Specification {
	return model.Specification{
		ID:         id,
		ProjectID:  "p1",
		LineageID:  "L-" + id,
		Category:   cat,
		Content:    content,
		Source:     model.SourceUserStated,
		Confidence: 0.9,
		Version:    1,
		IsCurrent:  true,
		CreatedAt:  "2026-01-01T00:00:00Z",
	}
}

func TestAnalyze_Technologies(t *testing.T) {
	tables := mustTables(t)
	f, err := Analyze(newSpec("a", model.CategoryTechnology, "Frontend in React 16.8 with react-query v5, data in PostgreSQL"), tables)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []TechMention{
		{Name: "postgresql"},
		{Name: "react", Version: "16.8"},
		{Name: "react-query", Version: "5"},
	}
	if diff := cmp.Diff(want, f.Technologies); diff != "" {
		t.Errorf("technologies mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_Quantities(t *testing.T) {
	tables := mustTables(t)
	tests := []struct {
		name    string
		cat     model.Category
		content string
		check   func(t *testing.T, f Facts)
	}{
		{
			name:    "concurrency",
			cat:     model.CategoryConstraints,
			content: "Must handle 1,500 concurrent users at peak",
			check: func(t *testing.T, f Facts) {
				if f.Concurrency != 1500 {
					t.Errorf("Concurrency = %d, want 1500", f.Concurrency)
				}
			},
		},
		{
			name:    "effort in hours",
			cat:     model.CategoryTimeline,
			content: "Estimated effort: 800 person-hours",
			check: func(t *testing.T, f Facts) {
				if f.EffortHours != 800 {
					t.Errorf("EffortHours = %v, want 800", f.EffortHours)
				}
				if f.TimelineWeeks != 0 {
					t.Errorf("TimelineWeeks = %v, want 0", f.TimelineWeeks)
				}
			},
		},
		{
			name:    "effort in person-weeks is not a timeline",
			cat:     model.CategoryTimeline,
			content: "Building it takes 10 person-weeks",
			check: func(t *testing.T, f Facts) {
				if f.EffortHours != 400 {
					t.Errorf("EffortHours = %v, want 400", f.EffortHours)
				}
				if f.TimelineWeeks != 0 {
					t.Errorf("TimelineWeeks = %v, want 0", f.TimelineWeeks)
				}
			},
		},
		{
			name:    "team size in words",
			cat:     model.CategoryTeam,
			content: "A team of two developers",
			check: func(t *testing.T, f Facts) {
				if f.TeamSize != 2 {
					t.Errorf("TeamSize = %d, want 2", f.TeamSize)
				}
			},
		},
		{
			name:    "solo developer",
			cat:     model.CategoryTeam,
			content: "I am a solo developer",
			check: func(t *testing.T, f Facts) {
				if f.TeamSize != 1 {
					t.Errorf("TeamSize = %d, want 1", f.TeamSize)
				}
			},
		},
		{
			name:    "timeline in months",
			cat:     model.CategoryTimeline,
			content: "Launch in 3 months",
			check: func(t *testing.T, f Facts) {
				if f.TimelineWeeks != 13 {
					t.Errorf("TimelineWeeks = %v, want 13", f.TimelineWeeks)
				}
			},
		},
		{
			name:    "retention period is not a deadline",
			cat:     model.CategoryConstraints,
			content: "Keep logs for 30 days",
			check: func(t *testing.T, f Facts) {
				if f.TimelineWeeks != 0 {
					t.Errorf("TimelineWeeks = %v, want 0", f.TimelineWeeks)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Analyze(newSpec("x", tt.cat, tt.content), tables)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			tt.check(t, f)
		})
	}
}

func TestAnalyze_Skills(t *testing.T) {
	tables := mustTables(t)

	team, err := Analyze(newSpec("t", model.CategoryTeam, "The team knows Python and Django"), tables)
	if err != nil {
		t.Fatalf("Analyze team: %v", err)
	}
	if diff := cmp.Diff([]string{"django", "python"}, team.AvailableSkills); diff != "" {
		t.Errorf("available skills mismatch (-want +got):\n%s", diff)
	}

	stack, err := Analyze(newSpec("s", model.CategoryTechnology, "Backend on Rails with PostgreSQL, hosted on Heroku"), tables)
	if err != nil {
		t.Fatalf("Analyze stack: %v", err)
	}
	if diff := cmp.Diff([]string{"ruby", "sql"}, stack.RequiredSkills); diff != "" {
		t.Errorf("required skills mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_Polarity(t *testing.T) {
	tables := mustTables(t)

	a, err := Analyze(newSpec("a", model.CategoryFunctional, "no persistence"), tables)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b, err := Analyze(newSpec("b", model.CategoryFunctional, "remember user preference across sessions"), tables)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Polarity["persistence"] != PolarityA {
		t.Errorf("'no persistence' polarity = %v, want A", a.Polarity["persistence"])
	}
	if b.Polarity["persistence"] != PolarityB {
		t.Errorf("'remember...' polarity = %v, want B", b.Polarity["persistence"])
	}

	other, err := Analyze(newSpec("c", model.CategoryGoals, "no persistence"), tables)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if other.Polarity != nil {
		t.Error("goals specs should not get requirement polarity")
	}
}

func TestAnalyze_Unanalyzable(t *testing.T) {
	tables := mustTables(t)
	tests := []struct {
		name    string
		cat     model.Category
		content string
	}{
		{"empty", model.CategoryGoals, "   "},
		{"invalid utf-8", model.CategoryGoals, "bad \xff bytes"},
		{"control character", model.CategoryGoals, "null\x00byte"},
		{"zero team", model.CategoryTeam, "team of 0"},
		{"zero timeline", model.CategoryTimeline, "ship in 0 weeks"},
		{"overflowing concurrency", model.CategoryConstraints, "99999999999 concurrent users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(newSpec("x", tt.cat, tt.content), tables)
			if !errors.Is(err, ErrUnanalyzable) {
				t.Errorf("err = %v, want ErrUnanalyzable", err)
			}
		})
	}
}
