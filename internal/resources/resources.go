// Package resources implements MCP resource handlers for the engine.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (socrates://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Nireus79/Socrates2-sub000/internal/engine"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/mark3labs/mcp-go/mcp"
)

// Resource URIs.
const (
	RulesURI            = "socrates://rules/active"
	MaturityURITemplate = "socrates://projects/{project_id}/maturity"
)

// Source is what the resources read from. *engine.Engine implements it.
type Source interface {
	Tables() *rules.Tables
	GetMaturity(ctx context.Context, projectID string) (*engine.MaturityView, error)
}

// Handler manages the resource endpoints.
type Handler struct {
	src Source
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

// RulesResource returns the MCP resource definition for the active rule tables.
func (h *Handler) RulesResource() mcp.Resource {
	return mcp.NewResource(
		RulesURI,
		"Active Rule Tables",
		mcp.WithResourceDescription("Category checklists, technology catalog, contradiction concepts and bias patterns currently in effect"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleRules returns the active rule tables as JSON. After a hot reload
// this reflects the new tables.
func (h *Handler) HandleRules(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.src.Tables())
}

// MaturityTemplate returns the resource template for a project's maturity.
func (h *Handler) MaturityTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		MaturityURITemplate,
		"Project Maturity",
		mcp.WithTemplateDescription("Overall and per-category maturity of one project, scored against its next gate"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleMaturity returns a project's maturity view as JSON.
func (h *Handler) HandleMaturity(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projectID, err := projectIDFromURI(req.Params.URI)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	m, err := h.src.GetMaturity(ctx, projectID)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, m)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
