package server

import (
	"strings"
	"testing"

	"github.com/Nireus79/Socrates2-sub000/internal/engine"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/Nireus79/Socrates2-sub000/internal/store"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	st, err := store.New(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	tables, err := rules.Default()
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(st, tables, engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestToolset_EveryToolOnce(t *testing.T) {
	set := toolset(newTestEngine(t))
	if len(set) != 18 {
		t.Errorf("got %d tools, want 18", len(set))
	}
	seen := make(map[string]bool)
	for _, tl := range set {
		name := tl.Definition().Name
		if seen[name] {
			t.Errorf("tool %q registered twice", name)
		}
		seen[name] = true
	}
	for _, want := range []string{"socrates_add_spec", "socrates_advance", "socrates_resolve_conflict", "socrates_recommend_paths"} {
		if !seen[want] {
			t.Errorf("tool %q not registered", want)
		}
	}
}

func TestNew(t *testing.T) {
	if s := New(newTestEngine(t)); s == nil {
		t.Fatal("New returned nil")
	}
}

func TestInstructions_NameEveryToolTheyMention(t *testing.T) {
	text := serverInstructions()
	names := make(map[string]bool)
	for _, tl := range toolset(newTestEngine(t)) {
		names[tl.Definition().Name] = true
	}
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,:;()")
		if strings.HasPrefix(word, "socrates_") && !names[word] {
			t.Errorf("instructions mention unknown tool %q", word)
		}
	}
}
