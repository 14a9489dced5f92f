package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/mark3labs/mcp-go/mcp"
)

// MaturityTool handles the socrates_get_maturity MCP tool.
type MaturityTool struct {
	engine Engine
}

// NewMaturityTool creates a MaturityTool.
func NewMaturityTool(e Engine) *MaturityTool {
	return &MaturityTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *MaturityTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_get_maturity",
		mcp.WithDescription(
			"Show how complete a project's specifications are: overall percentage and, per category, "+
				"completeness, spec count, missing subtopics, and whether it meets the next phase's minimum.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
	)
}

// Handle processes the socrates_get_maturity tool call.
func (t *MaturityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	m, err := t.engine.GetMaturity(ctx, projectID)
	if err != nil {
		return errorResult(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Maturity\n\n**Phase:** %s\n", m.Phase)
	if m.Target != "" {
		fmt.Fprintf(&b, "**Next phase:** %s (each category needs %.2f%%)\n", m.Target, m.RequiredMinimum)
	}
	b.WriteString("\n")
	formatMaturity(&b, m.Overall, m.ByCategory)
	return withJSON(strings.TrimRight(b.String(), "\n"), m)
}

// ListConflictsTool handles the socrates_list_conflicts MCP tool.
type ListConflictsTool struct {
	engine Engine
}

// NewListConflictsTool creates a ListConflictsTool.
func NewListConflictsTool(e Engine) *ListConflictsTool {
	return &ListConflictsTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ListConflictsTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_list_conflicts",
		mcp.WithDescription(
			"List a project's conflicts. Open conflicts of high or critical severity block phase advancement "+
				"until resolved or overridden.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
		mcp.WithString("status",
			mcp.Description("Only this status (default: all)"),
			mcp.Enum(string(model.StatusOpen), string(model.StatusResolved), string(model.StatusOverridden)),
		),
	)
}

// Handle processes the socrates_list_conflicts tool call.
func (t *ListConflictsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	conflicts, err := t.engine.ListConflicts(ctx, projectID, req.GetString("status", ""))
	if err != nil {
		return errorResult(err)
	}
	if len(conflicts) == 0 {
		return mcp.NewToolResultText("No conflicts."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Conflicts (%d)\n\n", len(conflicts))
	for _, c := range conflicts {
		block := ""
		if c.Blocking() {
			block = " **blocking**"
		}
		fmt.Fprintf(&b, "- `%s` [%s] %s/%s%s: %s\n", c.ID, c.Status, c.Severity, c.Type, block, c.Reason)
	}
	return withJSON(strings.TrimRight(b.String(), "\n"), conflicts)
}

// ResolveConflictTool handles the socrates_resolve_conflict MCP tool.
type ResolveConflictTool struct {
	engine Engine
}

// NewResolveConflictTool creates a ResolveConflictTool.
func NewResolveConflictTool(e Engine) *ResolveConflictTool {
	return &ResolveConflictTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ResolveConflictTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_resolve_conflict",
		mcp.WithDescription(
			"Record the user's decision on an open conflict. use_new and manual_edit resolve it "+
				"(update the specifications with socrates_supersede_spec or socrates_delete_spec as agreed). "+
				"keep_old and both_valid may instead be recorded as an override, accepting the conflict as-is. "+
				"A closed conflict is never reopened by later scans.",
		),
		mcp.WithString("conflict_id",
			mcp.Required(),
			mcp.Description("Conflict id"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("The user's choice"),
			mcp.Enum(string(model.DecisionKeepOld), string(model.DecisionUseNew), string(model.DecisionManualEdit), string(model.DecisionBothValid)),
		),
		mcp.WithString("rationale",
			mcp.Description("Why, in the user's words"),
		),
		mcp.WithBoolean("override",
			mcp.Description("Accept the conflict as-is instead of resolving it (keep_old or both_valid only)"),
		),
	)
}

// Handle processes the socrates_resolve_conflict tool call.
func (t *ResolveConflictTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requiredString(req, "conflict_id")
	if bad != nil {
		return bad, nil
	}
	decision, bad := requiredString(req, "decision")
	if bad != nil {
		return bad, nil
	}
	c, err := t.engine.ResolveConflict(ctx, id, model.Resolution{
		Decision:  model.Decision(decision),
		Rationale: strings.TrimSpace(req.GetString("rationale", "")),
		Override:  boolArg(req, "override", false),
	})
	if err != nil {
		return errorResult(err)
	}
	summary := fmt.Sprintf("# Conflict Closed\n\n**ID:** `%s`\n**Status:** %s\n**Decision:** %s", c.ID, c.Status, c.Resolution.Decision)
	return withJSON(summary, c)
}

// RescanTool handles the socrates_rescan MCP tool.
type RescanTool struct {
	engine Engine
}

// NewRescanTool creates a RescanTool.
func NewRescanTool(e Engine) *RescanTool {
	return &RescanTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *RescanTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_rescan",
		mcp.WithDescription(
			"Compare every pair of current specifications again, for example after the rule tables changed. "+
				"Conflicts already recorded, in any status, are not recreated.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
	)
}

// Handle processes the socrates_rescan tool call.
func (t *RescanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	res, err := t.engine.Rescan(ctx, projectID)
	if err != nil {
		return errorResult(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Rescan Complete\n\n%d new, %d already recorded.\n", len(res.Opened), res.Skipped)
	formatOpened(&b, res.Opened)
	return withJSON(strings.TrimRight(b.String(), "\n"), res)
}
