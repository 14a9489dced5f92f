// Package tools implements the MCP tool handlers over the engine.
//
// Each tool is a struct holding its dependency (the Engine interface),
// a Definition for registration and a Handle compatible with mcp-go's
// CallToolRequest signature. Caller mistakes and gate denials come back
// as tool error results the model can act on; only internal failures are
// returned as Go errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/engine"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pathcost"
	"github.com/Nireus79/Socrates2-sub000/internal/pipeline"
	"github.com/Nireus79/Socrates2-sub000/internal/quality"
	"github.com/mark3labs/mcp-go/mcp"
)

// Engine is what the tools call. *engine.Engine implements it.
type Engine interface {
	CreateProject(ctx context.Context, name string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)

	AddSpecification(ctx context.Context, in engine.AddInput) (*engine.WriteResult, error)
	Supersede(ctx context.Context, in engine.SupersedeInput) (*engine.WriteResult, error)
	SoftDelete(ctx context.Context, lineageID string) (*engine.WriteResult, error)
	ListSpecifications(ctx context.Context, projectID, category string) ([]model.Specification, error)
	History(ctx context.Context, lineageID string) ([]model.Specification, error)

	GetMaturity(ctx context.Context, projectID string) (*engine.MaturityView, error)
	ListConflicts(ctx context.Context, projectID, status string) ([]model.Conflict, error)
	ResolveConflict(ctx context.Context, conflictID string, res model.Resolution) (*model.Conflict, error)
	Rescan(ctx context.Context, projectID string) (*engine.RescanResult, error)

	CanAdvance(ctx context.Context, projectID, target string) (*pipeline.GateResult, error)
	Advance(ctx context.Context, projectID, target string) (*engine.AdvanceResult, error)
	Revert(ctx context.Context, projectID, target, reason string) (*engine.RevertResult, error)

	AnalyzeQuality(ctx context.Context, projectID string) (*quality.Report, error)
	RecordActivity(ctx context.Context, a model.Activity) (*engine.RecordResult, error)
	LintText(text string) (quality.BiasResult, error)
	RecommendPaths(ctx context.Context, projectID string, candidates []pathcost.Candidate) (*engine.PathRecommendation, error)
}

// errorResult turns an engine error into a tool result.
func errorResult(err error) (*mcp.CallToolResult, error) {
	var blocked *model.GateBlockedError
	switch {
	case errors.As(err, &blocked):
		return mcp.NewToolResultError(formatBlockers(blocked.From, blocked.Target, blocked.Blockers)), nil
	case model.IsValidation(err):
		return mcp.NewToolResultError("Invalid input: " + strings.TrimPrefix(err.Error(), "validation: ")), nil
	case model.IsNotFound(err):
		return mcp.NewToolResultError("Not found: " + err.Error()), nil
	case model.IsInvalidState(err):
		return mcp.NewToolResultError("Not allowed: " + err.Error()), nil
	default:
		return nil, err
	}
}

// withJSON appends v as a fenced JSON block to a markdown summary so the
// host gets both a readable answer and the full structured data.
func withJSON(summary string, v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(summary + "\n\n```json\n" + string(data) + "\n```"), nil
}

// requiredString returns a trimmed string argument or an error result
// naming it.
func requiredString(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("'%s' is required", key))
	}
	return v, nil
}

// floatArg extracts an optional number; ok is false when it is missing.
func floatArg(req mcp.CallToolRequest, key string) (v float64, ok bool) {
	v, ok = req.GetArguments()[key].(float64)
	return v, ok
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// decodeArg re-decodes a structured argument (an array or object) into v.
func decodeArg(req mcp.CallToolRequest, key string, v any) error {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return model.Invalid(key, "is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return model.Invalid(key, err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return model.Invalid(key, err.Error())
	}
	return nil
}

func formatBlockers(from, target model.Phase, blockers []model.Blocker) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cannot advance from %s to %s. %d blocker(s):\n", from, target, len(blockers))
	for _, bl := range blockers {
		fmt.Fprintf(&b, "- [%s] %s\n", bl.Kind, bl.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMaturity(b *strings.Builder, overall float64, rows []model.CategoryMaturity) {
	fmt.Fprintf(b, "**Overall maturity:** %.2f%%\n\n", overall)
	b.WriteString("| Category | Completeness | Specs | Satisfied | Missing |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range rows {
		mark := "no"
		if r.Satisfied {
			mark = "yes"
		}
		fmt.Fprintf(b, "| %s | %.2f%% | %d | %s | %s |\n",
			r.Category, r.Completeness, r.SpecCount, mark, strings.Join(r.MissingTopics, ", "))
	}
}

func formatOpened(b *strings.Builder, opened []model.Conflict) {
	if len(opened) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**New conflicts (%d):**\n", len(opened))
	for _, c := range opened {
		fmt.Fprintf(b, "- `%s` %s/%s: %s\n", c.ID, c.Severity, c.Type, c.Reason)
	}
}
