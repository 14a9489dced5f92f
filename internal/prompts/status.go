package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the socrates-status MCP prompt.
// It instructs the AI to read and present a project's current state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("socrates-status",
		mcp.WithPromptDescription(
			"Check where a project stands. "+
				"Shows the phase, maturity per category, open conflicts, "+
				"and what blocks the next phase.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("Project id (omit to pick from the project list)"),
		),
	)
}

// Handle processes the socrates-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	target := "Run `socrates_list_projects` and ask me which project I mean."
	if id := req.Params.Arguments["project_id"]; id != "" {
		target = fmt.Sprintf("The project id is `%s`.", id)
	}

	return &mcp.GetPromptResult{
		Description: "Project Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					target + "\n\n" +
						"Then:\n" +
						"1. Run `socrates_get_maturity` and show the per-category table\n" +
						"2. Run `socrates_list_conflicts` with status=open and list the blocking ones first\n" +
						"3. Run `socrates_can_advance` and explain each blocker in plain words\n" +
						"4. Tell me which question to answer next",
				),
			},
		},
	}, nil
}
