package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/mark3labs/mcp-go/mcp"
)

var phaseNames = []string{
	string(model.PhaseDiscovery),
	string(model.PhaseAnalysis),
	string(model.PhaseDesign),
	string(model.PhaseImplementation),
}

// CanAdvanceTool handles the socrates_can_advance MCP tool.
type CanAdvanceTool struct {
	engine Engine
}

// NewCanAdvanceTool creates a CanAdvanceTool.
func NewCanAdvanceTool(e Engine) *CanAdvanceTool {
	return &CanAdvanceTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *CanAdvanceTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_can_advance",
		mcp.WithDescription(
			"Check whether the project may move to the next phase, without changing anything. "+
				"Lists every blocker: categories below the required minimum, blocking conflicts, "+
				"and unresolved compatibility conflicts before implementation.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
		mcp.WithString("target",
			mcp.Description("Phase to check (default: the next one)"),
			mcp.Enum(phaseNames...),
		),
	)
}

// Handle processes the socrates_can_advance tool call.
func (t *CanAdvanceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	gate, err := t.engine.CanAdvance(ctx, projectID, req.GetString("target", ""))
	if err != nil {
		return errorResult(err)
	}
	var summary string
	if gate.Allowed {
		summary = fmt.Sprintf("# Gate Open\n\n%s → %s is allowed. Call `socrates_advance` to move.", gate.From, gate.Target)
	} else {
		summary = "# Gate Closed\n\n" + formatBlockers(gate.From, gate.Target, gate.Blockers)
	}
	return withJSON(summary, gate)
}

// AdvanceTool handles the socrates_advance MCP tool.
type AdvanceTool struct {
	engine Engine
}

// NewAdvanceTool creates an AdvanceTool.
func NewAdvanceTool(e Engine) *AdvanceTool {
	return &AdvanceTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *AdvanceTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_advance",
		mcp.WithDescription(
			"Move the project to the next phase. Fails with the list of blockers, and changes nothing, "+
				"if any gate guard is unmet.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
		mcp.WithString("target",
			mcp.Description("Phase to move to (default: the next one; phases cannot be skipped)"),
			mcp.Enum(phaseNames...),
		),
	)
}

// Handle processes the socrates_advance tool call.
func (t *AdvanceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	res, err := t.engine.Advance(ctx, projectID, req.GetString("target", ""))
	if err != nil {
		return errorResult(err)
	}
	summary := fmt.Sprintf("# Phase Advanced\n\n**%s → %s**\n\nThe project is now in %s.",
		res.Transition.From, res.Transition.To, res.Project.Phase)
	return withJSON(summary, res)
}

// RevertTool handles the socrates_revert MCP tool.
type RevertTool struct {
	engine Engine
}

// NewRevertTool creates a RevertTool.
func NewRevertTool(e Engine) *RevertTool {
	return &RevertTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *RevertTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_revert",
		mcp.WithDescription(
			"Move the project back to an earlier phase, for example when new information invalidates earlier answers. "+
				"Reverting has no gate.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
		mcp.WithString("target",
			mcp.Description("Earlier phase to return to (default: the previous one)"),
			mcp.Enum(phaseNames...),
		),
		mcp.WithString("reason",
			mcp.Description("Why the project is going back; kept in the activity history"),
		),
	)
}

// Handle processes the socrates_revert tool call.
func (t *RevertTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	res, err := t.engine.Revert(ctx, projectID, req.GetString("target", ""), strings.TrimSpace(req.GetString("reason", "")))
	if err != nil {
		return errorResult(err)
	}
	summary := fmt.Sprintf("# Phase Reverted\n\n**%s → %s**", res.Transition.From, res.Transition.To)
	return withJSON(summary, res)
}
