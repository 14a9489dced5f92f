// Package prompts implements MCP prompt handlers for Socratic sessions.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the socrates-start MCP prompt.
// It guides the AI to create a project and begin questioning.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("socrates-start",
		mcp.WithPromptDescription(
			"Start a Socratic specification session. "+
				"Creates a project and walks through the categories with neutral questions "+
				"until the specifications are mature enough to advance.",
		),
		mcp.WithArgument("project_name",
			mcp.ArgumentDescription("Name of your project"),
		),
		mcp.WithArgument("focus",
			mcp.ArgumentDescription("Category to ask about first (default: goals)"),
		),
	)
}

// Handle processes the socrates-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	projectName := "my-project"
	focus := "goals"
	if args := req.Params.Arguments; args != nil {
		if name, ok := args["project_name"]; ok && name != "" {
			projectName = name
		}
		if f, ok := args["focus"]; ok && f != "" {
			focus = f
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start Socratic session: %s", projectName),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to specify a new project called '%s'.\n\n"+
						"Please:\n"+
						"1. Run `socrates_create_project` with name='%s' and keep the returned project id\n"+
						"2. Ask me one open question at a time, starting with %s. "+
						"Check each question with `socrates_lint_text` first and rephrase it if the bias score is above 0\n"+
						"3. Record every question with `socrates_record_activity` (kind=question) and every answer as kind=answer\n"+
						"4. Turn each distinct statement I make into a `socrates_add_spec` call with the right category\n"+
						"5. When a call reports new conflicts, stop and ask me how to resolve each one; "+
						"record my choice with `socrates_resolve_conflict`\n"+
						"6. Use `socrates_analyze_quality` to pick the weakest categories to ask about next\n"+
						"7. When `socrates_can_advance` reports the gate open, tell me and ask whether to advance\n\n"+
						"Do not suggest technologies or solutions before I have described the problem.",
					projectName, projectName, focus,
				)),
			},
		},
	}, nil
}
