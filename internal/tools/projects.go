package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// CreateProjectTool handles the socrates_create_project MCP tool.
type CreateProjectTool struct {
	engine Engine
}

// NewCreateProjectTool creates a CreateProjectTool.
func NewCreateProjectTool(e Engine) *CreateProjectTool {
	return &CreateProjectTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_create_project",
		mcp.WithDescription(
			"Create a project to collect specifications for. "+
				"Projects start in the discovery phase with 0% maturity. "+
				"Use the returned project id in every other socrates tool.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Human-readable project name"),
		),
	)
}

// Handle processes the socrates_create_project tool call.
func (t *CreateProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, bad := requiredString(req, "name")
	if bad != nil {
		return bad, nil
	}
	p, err := t.engine.CreateProject(ctx, name)
	if err != nil {
		return errorResult(err)
	}
	summary := fmt.Sprintf("# Project Created\n\n**Name:** %s\n**ID:** `%s`\n**Phase:** %s\n\n"+
		"Next: capture statements with `socrates_add_spec`, starting with goals.", p.Name, p.ID, p.Phase)
	return withJSON(summary, p)
}

// ListProjectsTool handles the socrates_list_projects MCP tool.
type ListProjectsTool struct {
	engine Engine
}

// NewListProjectsTool creates a ListProjectsTool.
func NewListProjectsTool(e Engine) *ListProjectsTool {
	return &ListProjectsTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ListProjectsTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_list_projects",
		mcp.WithDescription("List every project with its phase and overall maturity."),
	)
}

// Handle processes the socrates_list_projects tool call.
func (t *ListProjectsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.engine.ListProjects(ctx)
	if err != nil {
		return errorResult(err)
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects yet. Create one with `socrates_create_project`."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Projects (%d)\n\n", len(projects))
	for _, p := range projects {
		fmt.Fprintf(&b, "- **%s** `%s`: %s, %.2f%%\n", p.Name, p.ID, p.Phase, p.MaturityScore)
	}
	return withJSON(strings.TrimRight(b.String(), "\n"), projects)
}
