package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/engine"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/mark3labs/mcp-go/mcp"
)

func categoryNames() []string {
	out := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		out[i] = string(c)
	}
	return out
}

var sourceNames = []string{
	string(model.SourceUserStated),
	string(model.SourceDerived),
	string(model.SourceInferred),
}

// AddSpecTool handles the socrates_add_spec MCP tool.
type AddSpecTool struct {
	engine Engine
}

// NewAddSpecTool creates an AddSpecTool.
func NewAddSpecTool(e Engine) *AddSpecTool {
	return &AddSpecTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *AddSpecTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_add_spec",
		mcp.WithDescription(
			"Record one statement the user made (or that was derived from what they said) as a specification. "+
				"The engine checks it against every other current specification, opens conflicts it finds, "+
				"and recomputes maturity before returning. Call once per distinct statement.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id from socrates_create_project"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Topic category of the statement"),
			mcp.Enum(categoryNames()...),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The statement itself, in plain language"),
		),
		mcp.WithString("source",
			mcp.Description("Where it came from (default: user_stated)"),
			mcp.Enum(sourceNames...),
		),
		mcp.WithNumber("confidence",
			mcp.Description("How sure the user is, 0 to 1 (default: 1). Statements below 0.3 do not cover subtopics."),
		),
	)
}

// Handle processes the socrates_add_spec tool call.
func (t *AddSpecTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	category, bad := requiredString(req, "category")
	if bad != nil {
		return bad, nil
	}
	content, bad := requiredString(req, "content")
	if bad != nil {
		return bad, nil
	}
	confidence, ok := floatArg(req, "confidence")
	if !ok {
		confidence = 1
	}

	res, err := t.engine.AddSpecification(ctx, engine.AddInput{
		ProjectID:  projectID,
		Category:   category,
		Content:    content,
		Source:     req.GetString("source", ""),
		Confidence: confidence,
	})
	if err != nil {
		return errorResult(err)
	}
	return withJSON(writeSummary("Specification Added", res), res)
}

// SupersedeSpecTool handles the socrates_supersede_spec MCP tool.
type SupersedeSpecTool struct {
	engine Engine
}

// NewSupersedeSpecTool creates a SupersedeSpecTool.
func NewSupersedeSpecTool(e Engine) *SupersedeSpecTool {
	return &SupersedeSpecTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *SupersedeSpecTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_supersede_spec",
		mcp.WithDescription(
			"Replace a specification with a new version when the user changes their mind. "+
				"The old version is kept in the lineage history but stops counting. "+
				"Category is inherited; source and confidence are inherited unless given.",
		),
		mcp.WithString("lineage_id",
			mcp.Required(),
			mcp.Description("Lineage id of the specification to replace"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The new statement"),
		),
		mcp.WithString("source",
			mcp.Description("Source of the new version (default: same as before)"),
			mcp.Enum(sourceNames...),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Confidence of the new version, 0 to 1 (default: same as before)"),
		),
	)
}

// Handle processes the socrates_supersede_spec tool call.
func (t *SupersedeSpecTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lineageID, bad := requiredString(req, "lineage_id")
	if bad != nil {
		return bad, nil
	}
	content, bad := requiredString(req, "content")
	if bad != nil {
		return bad, nil
	}
	in := engine.SupersedeInput{
		LineageID: lineageID,
		Content:   content,
		Source:    req.GetString("source", ""),
	}
	if c, ok := floatArg(req, "confidence"); ok {
		in.Confidence = &c
	}

	res, err := t.engine.Supersede(ctx, in)
	if err != nil {
		return errorResult(err)
	}
	return withJSON(writeSummary("Specification Superseded", res), res)
}

// DeleteSpecTool handles the socrates_delete_spec MCP tool.
type DeleteSpecTool struct {
	engine Engine
}

// NewDeleteSpecTool creates a DeleteSpecTool.
func NewDeleteSpecTool(e Engine) *DeleteSpecTool {
	return &DeleteSpecTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *DeleteSpecTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_delete_spec",
		mcp.WithDescription(
			"Withdraw a specification. It stays in history for audit but no longer counts toward "+
				"maturity or takes part in conflict detection. A deleted lineage cannot be superseded.",
		),
		mcp.WithString("lineage_id",
			mcp.Required(),
			mcp.Description("Lineage id of the specification to withdraw"),
		),
	)
}

// Handle processes the socrates_delete_spec tool call.
func (t *DeleteSpecTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lineageID, bad := requiredString(req, "lineage_id")
	if bad != nil {
		return bad, nil
	}
	res, err := t.engine.SoftDelete(ctx, lineageID)
	if err != nil {
		return errorResult(err)
	}
	return withJSON(writeSummary("Specification Deleted", res), res)
}

// ListSpecsTool handles the socrates_list_specs MCP tool.
type ListSpecsTool struct {
	engine Engine
}

// NewListSpecsTool creates a ListSpecsTool.
func NewListSpecsTool(e Engine) *ListSpecsTool {
	return &ListSpecsTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ListSpecsTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_list_specs",
		mcp.WithDescription("List a project's current specifications, optionally for one category."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
		mcp.WithString("category",
			mcp.Description("Only this category (default: all)"),
			mcp.Enum(categoryNames()...),
		),
	)
}

// Handle processes the socrates_list_specs tool call.
func (t *ListSpecsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	specs, err := t.engine.ListSpecifications(ctx, projectID, req.GetString("category", ""))
	if err != nil {
		return errorResult(err)
	}
	if len(specs) == 0 {
		return mcp.NewToolResultText("No current specifications."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Specifications (%d)\n\n", len(specs))
	for _, sp := range specs {
		flag := ""
		if sp.Unanalyzed {
			flag = " (unanalyzed)"
		}
		fmt.Fprintf(&b, "- [%s] v%d `%s`%s: %s\n", sp.Category, sp.Version, sp.LineageID, flag, sp.Content)
	}
	return withJSON(strings.TrimRight(b.String(), "\n"), specs)
}

// HistoryTool handles the socrates_spec_history MCP tool.
type HistoryTool struct {
	engine Engine
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(e Engine) *HistoryTool {
	return &HistoryTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_spec_history",
		mcp.WithDescription("Show every version of a specification lineage, oldest first, including superseded and deleted ones."),
		mcp.WithString("lineage_id",
			mcp.Required(),
			mcp.Description("Lineage id"),
		),
	)
}

// Handle processes the socrates_spec_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lineageID, bad := requiredString(req, "lineage_id")
	if bad != nil {
		return bad, nil
	}
	versions, err := t.engine.History(ctx, lineageID)
	if err != nil {
		return errorResult(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Lineage `%s` (%d versions)\n\n", lineageID, len(versions))
	for _, sp := range versions {
		state := "superseded"
		switch {
		case sp.DeletedAt != nil:
			state = "deleted"
		case sp.IsCurrent:
			state = "current"
		}
		fmt.Fprintf(&b, "- v%d (%s, %s): %s\n", sp.Version, state, sp.CreatedAt, sp.Content)
	}
	return withJSON(strings.TrimRight(b.String(), "\n"), versions)
}

func writeSummary(title string, res *engine.WriteResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if sp := res.Specification; sp != nil {
		fmt.Fprintf(&b, "**Lineage:** `%s` v%d\n**Category:** %s\n", sp.LineageID, sp.Version, sp.Category)
		if sp.Unanalyzed {
			b.WriteString("\n**Warning:** the statement could not be analyzed; it counts toward maturity but is skipped by conflict detection. Consider rephrasing it.\n")
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "\n**Warning (%s/%s):** the statement contradicts itself: %s\n", w.Severity, w.Type, w.Reason)
	}
	formatOpened(&b, res.Opened)
	fmt.Fprintf(&b, "\n**Overall maturity:** %.2f%%", res.Maturity.Overall)
	if res.Maturity.Target != "" {
		fmt.Fprintf(&b, " (%s requires %.2f%% per category)", res.Maturity.Target, res.Maturity.RequiredMinimum)
	}
	return b.String()
}
