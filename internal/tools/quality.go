package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pathcost"
	"github.com/Nireus79/Socrates2-sub000/internal/quality"
	"github.com/mark3labs/mcp-go/mcp"
)

// AnalyzeQualityTool handles the socrates_analyze_quality MCP tool.
type AnalyzeQualityTool struct {
	engine Engine
}

// NewAnalyzeQualityTool creates an AnalyzeQualityTool.
func NewAnalyzeQualityTool(e Engine) *AnalyzeQualityTool {
	return &AnalyzeQualityTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *AnalyzeQualityTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_analyze_quality",
		mcp.WithDescription(
			"Review how the conversation is going: bias in recorded questions and recommendations, "+
				"the weakest categories to ask about next, and bad patterns such as skipped tests or "+
				"features added late. Each section reports insufficient_data rather than guessing.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
	)
}

// Handle processes the socrates_analyze_quality tool call.
func (t *AnalyzeQualityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	r, err := t.engine.AnalyzeQuality(ctx, projectID)
	if err != nil {
		return errorResult(err)
	}

	var b strings.Builder
	b.WriteString("# Quality Report\n\n")
	if r.Bias.Status == quality.StatusOK && r.Bias.Summary != nil {
		fmt.Fprintf(&b, "**Bias:** %.2f over %d item(s)\n", r.Bias.Summary.Score, r.Bias.Summary.Samples)
	} else {
		fmt.Fprintf(&b, "**Bias:** %s\n", r.Bias.Status)
	}
	if r.Coverage.Status == quality.StatusOK {
		b.WriteString("**Ask next about:**")
		for _, row := range r.Coverage.Lowest {
			fmt.Fprintf(&b, " %s (%.0f%%)", row.Category, row.Completeness)
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "**Coverage:** %s\n", r.Coverage.Status)
	}
	for _, p := range r.Patterns {
		if p.Finding != nil {
			fmt.Fprintf(&b, "- **%s**: %s\n", p.Check, p.Finding.Message)
		}
	}
	return withJSON(strings.TrimRight(b.String(), "\n"), r)
}

// RecordActivityTool handles the socrates_record_activity MCP tool.
type RecordActivityTool struct {
	engine Engine
}

// NewRecordActivityTool creates a RecordActivityTool.
func NewRecordActivityTool(e Engine) *RecordActivityTool {
	return &RecordActivityTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *RecordActivityTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_record_activity",
		mcp.WithDescription(
			"Append an event to the project's history: a question you asked, a recommendation you made, "+
				"the user's answer, or a code/test/feature change. Questions and recommendations are "+
				"checked for leading or solution-biased phrasing.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Kind of event"),
			mcp.Enum(
				string(model.ActivityQuestion),
				string(model.ActivityRecommendation),
				string(model.ActivityAnswer),
				string(model.ActivityTestChange),
				string(model.ActivityCodeChange),
				string(model.ActivityFeatureAdded),
			),
		),
		mcp.WithString("content",
			mcp.Description("Text of the question, answer or change description"),
		),
		mcp.WithString("category",
			mcp.Description("Category the event is about, if any"),
			mcp.Enum(categoryNames()...),
		),
		mcp.WithString("target",
			mcp.Description("What a change touched, e.g. a test or feature name"),
		),
	)
}

// Handle processes the socrates_record_activity tool call.
func (t *RecordActivityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, bad := requiredString(req, "project_id")
	if bad != nil {
		return bad, nil
	}
	kind, bad := requiredString(req, "kind")
	if bad != nil {
		return bad, nil
	}
	res, err := t.engine.RecordActivity(ctx, model.Activity{
		ProjectID: projectID,
		Kind:      model.ActivityKind(kind),
		Category:  model.Category(strings.TrimSpace(req.GetString("category", ""))),
		Target:    req.GetString("target", ""),
		Content:   req.GetString("content", ""),
	})
	if err != nil {
		return errorResult(err)
	}
	summary := fmt.Sprintf("Recorded %s #%d.", res.Activity.Kind, res.Activity.ID)
	if res.Bias != nil && len(res.Bias.Matches) > 0 {
		summary += fmt.Sprintf("\n\n**Bias score %.2f.** Consider rephrasing:", res.Bias.Score)
		for _, m := range res.Bias.Matches {
			summary += fmt.Sprintf("\n- %s: %q", m.Kind, m.Excerpt)
		}
	}
	return withJSON(summary, res)
}

// LintTextTool handles the socrates_lint_text MCP tool.
type LintTextTool struct {
	engine Engine
}

// NewLintTextTool creates a LintTextTool.
func NewLintTextTool(e Engine) *LintTextTool {
	return &LintTextTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *LintTextTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_lint_text",
		mcp.WithDescription(
			"Score a question or recommendation for bias before asking it. Returns 0 for neutral text "+
				"and lists the phrases that make it leading or solution-first.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The question or recommendation to check"),
		),
	)
}

// Handle processes the socrates_lint_text tool call.
func (t *LintTextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.LintText(req.GetString("text", ""))
	if err != nil {
		return errorResult(err)
	}
	summary := fmt.Sprintf("**Bias score:** %.2f", res.Score)
	if len(res.Matches) == 0 {
		summary += " (neutral)"
	}
	return withJSON(summary, res)
}

// RecommendPathsTool handles the socrates_recommend_paths MCP tool.
type RecommendPathsTool struct {
	engine Engine
}

// NewRecommendPathsTool creates a RecommendPathsTool.
func NewRecommendPathsTool(e Engine) *RecommendPathsTool {
	return &RecommendPathsTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *RecommendPathsTool) Definition() mcp.Tool {
	return mcp.NewTool("socrates_recommend_paths",
		mcp.WithDescription(
			"Rank candidate implementation paths by expected cost (direct cost plus failure probability "+
				"times rework cost). With a project id, also reports whether its maturity is high enough "+
				"that the user must pick a path explicitly rather than take the ranking as advice.",
		),
		mcp.WithArray("candidates",
			mcp.Required(),
			mcp.Description("Paths to compare"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":                map[string]any{"type": "string"},
					"direct_cost":         map[string]any{"type": "number", "minimum": 0},
					"failure_probability": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"rework_cost":         map[string]any{"type": "number", "minimum": 0},
				},
				"required": []string{"name", "direct_cost", "failure_probability", "rework_cost"},
			}),
		),
		mcp.WithString("project_id",
			mcp.Description("Project whose decision policy applies (optional)"),
		),
	)
}

// Handle processes the socrates_recommend_paths tool call.
func (t *RecommendPathsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var candidates []pathcost.Candidate
	if err := decodeArg(req, "candidates", &candidates); err != nil {
		return errorResult(err)
	}
	res, err := t.engine.RecommendPaths(ctx, strings.TrimSpace(req.GetString("project_id", "")), candidates)
	if err != nil {
		return errorResult(err)
	}

	var b strings.Builder
	b.WriteString("# Paths by Expected Cost\n\n")
	for _, r := range res.Ranked {
		fmt.Fprintf(&b, "%d. **%s**: %.2f (direct %.2f, p(fail) %.2f, rework %.2f)\n",
			r.Rank, r.Name, r.ExpectedCost, r.DirectCost, r.FailureProbability, r.ReworkCost)
	}
	if res.Maturity != nil {
		if res.RequiresExplicitChoice {
			fmt.Fprintf(&b, "\nMaturity %.2f%% is at or above %.2f%%: ask the user to choose a path explicitly.", *res.Maturity, *res.Threshold)
		} else {
			fmt.Fprintf(&b, "\nMaturity %.2f%% is below %.2f%%: the ranking is advisory.", *res.Maturity, *res.Threshold)
		}
	}
	return withJSON(strings.TrimRight(b.String(), "\n"), res)
}
