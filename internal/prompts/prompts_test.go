package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	if len(res.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(res.Messages))
	}
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Messages[0].Content)
	}
	return tc.Text
}

func TestStartPrompt(t *testing.T) {
	p := NewStartPrompt()
	if p.Definition().Name != "socrates-start" {
		t.Errorf("name = %q", p.Definition().Name)
	}

	tests := []struct {
		name string
		args map[string]string
		want []string
	}{
		{"defaults", nil, []string{"'my-project'", "starting with goals"}},
		{"custom", map[string]string{"project_name": "Ledger", "focus": "technology"}, []string{"name='Ledger'", "starting with technology"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mcp.GetPromptRequest{}
			req.Params.Arguments = tt.args
			res, err := p.Handle(context.Background(), req)
			if err != nil {
				t.Fatal(err)
			}
			text := promptText(t, res)
			for _, w := range tt.want {
				if !strings.Contains(text, w) {
					t.Errorf("text missing %q", w)
				}
			}
			if !strings.Contains(text, "socrates_lint_text") {
				t.Error("start prompt should ask for question linting")
			}
		})
	}
}

func TestStatusPrompt(t *testing.T) {
	p := NewStatusPrompt()

	req := mcp.GetPromptRequest{}
	res, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(promptText(t, res), "socrates_list_projects") {
		t.Error("without an id the prompt should list projects")
	}

	req.Params.Arguments = map[string]string{"project_id": "abc"}
	res, err = p.Handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(promptText(t, res), "`abc`") {
		t.Errorf("text = %q", promptText(t, res))
	}
}
