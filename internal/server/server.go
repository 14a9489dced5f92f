// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it takes the engine built by main and
// injects it into the tools, prompts and resources that depend on it.
// No business logic lives here, only wiring.
package server

import (
	"context"

	"github.com/Nireus79/Socrates2-sub000/internal/engine"
	"github.com/Nireus79/Socrates2-sub000/internal/prompts"
	"github.com/Nireus79/Socrates2-sub000/internal/resources"
	"github.com/Nireus79/Socrates2-sub000/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// tool is the shape every handler in the tools package shares.
type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
func New(eng *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"socrates",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	for _, t := range toolset(eng) {
		s.AddTool(t.Definition(), t.Handle)
	}

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(eng)
	s.AddResource(resourceHandler.RulesResource(), resourceHandler.HandleRules)
	s.AddResourceTemplate(resourceHandler.MaturityTemplate(), resourceHandler.HandleMaturity)

	return s
}

// toolset lists every tool in registration order.
func toolset(eng tools.Engine) []tool {
	return []tool{
		// --- Projects ---
		tools.NewCreateProjectTool(eng),
		tools.NewListProjectsTool(eng),

		// --- Specifications ---
		tools.NewAddSpecTool(eng),
		tools.NewSupersedeSpecTool(eng),
		tools.NewDeleteSpecTool(eng),
		tools.NewListSpecsTool(eng),
		tools.NewHistoryTool(eng),

		// --- Maturity and conflicts ---
		tools.NewMaturityTool(eng),
		tools.NewListConflictsTool(eng),
		tools.NewResolveConflictTool(eng),
		tools.NewRescanTool(eng),

		// --- Phase gate ---
		tools.NewCanAdvanceTool(eng),
		tools.NewAdvanceTool(eng),
		tools.NewRevertTool(eng),

		// --- Quality ---
		tools.NewAnalyzeQualityTool(eng),
		tools.NewRecordActivityTool(eng),
		tools.NewLintTextTool(eng),
		tools.NewRecommendPathsTool(eng),
	}
}

// serverInstructions returns the system instructions that tell the AI
// how to use the engine.
func serverInstructions() string {
	return `You have access to Socrates, a specification maturity engine.

## WHEN TO ACTIVATE

Use Socrates when the user wants to plan a new project or a large feature
and the requirements are still vague. Do not use it for bug fixes,
refactors or one-line changes.

## HOW IT WORKS

A project moves through four phases: discovery, analysis, design,
implementation. Moving forward requires every category to reach the
phase's minimum completeness (analysis 60%, design and implementation
100%) and no open conflict of high or critical severity. Moving back is
always allowed.

Every statement the user makes becomes a specification in one of ten
categories: goals, functional_requirements, technology, constraints,
team, timeline, deployment, success_criteria, testing, operability.

## RULES

1. Ask open, neutral questions. Check each with socrates_lint_text before
   asking it; a score above 0 means rephrase.
2. Record one statement per socrates_add_spec call. Never invent
   statements the user did not make; use source=inferred with a low
   confidence if you must record an assumption.
3. When a write reports new conflicts, stop and show them to the user.
   Only the user decides how a conflict is resolved. Never call
   socrates_resolve_conflict without the user's explicit choice.
4. When the user changes their mind, use socrates_supersede_spec rather
   than adding a second statement.
5. Never call socrates_advance without asking the user first. If it
   fails, explain each blocker in plain words.
6. Use socrates_analyze_quality to find the weakest categories and ask
   about those next.
7. Before recommending an implementation approach, compare the options
   with socrates_recommend_paths. When it says an explicit choice is
   required, present the ranking and let the user choose.

## RESOURCES

- socrates://rules/active: the rule tables currently in effect
- socrates://projects/{project_id}/maturity: a project's maturity`
}
