package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/nav"
	"github.com/hpungsan/topicnav/internal/topic"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	ctrl *nav.Controller
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctrl *nav.Controller) *Handlers {
	return &Handlers{ctrl: ctrl}
}

// Request types for each tool

// NavigateRequest represents the arguments for topic_navigate.
type NavigateRequest struct {
	ID string `json:"id,omitempty"`
}

// AddRequest represents the arguments for topic_add.
type AddRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateRequest represents the arguments for topic_update.
type UpdateRequest struct {
	ID          string  `json:"id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// DeleteRequest represents the arguments for topic_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// PostsListRequest represents the arguments for posts_list.
type PostsListRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

// DomainOutput is returned by the tools that create or edit a topic.
type DomainOutput struct {
	Domain *topic.Domain `json:"domain"`
	View   nav.View      `json:"view"`
}

// PostsOutput is returned by posts_list.
type PostsOutput struct {
	DomainID *string      `json:"domain_id"`
	Posts    []topic.Post `json:"posts"`
	Status   string       `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// SummaryOutput is returned by summary_generate.
type SummaryOutput struct {
	DomainID string `json:"domain_id"`
	Summary  string `json:"summary"`
}

// Handler implementations

// HandleState handles the topic_state tool call.
func (h *Handlers) HandleState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.ctrl.View())
}

// HandleNavigate handles the topic_navigate tool call.
func (h *Handlers) HandleNavigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[NavigateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.ctrl.Navigate(ctx, strings.TrimSpace(input.ID)); err != nil {
		return errorResult(err), nil
	}
	return successResult(h.ctrl.View())
}

// HandleAdd handles the topic_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[AddRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	created, err := h.ctrl.AddDomain(ctx, input.Name, input.Description)
	if err != nil && created == nil {
		return errorResult(err), nil
	}
	// A failed resync after a successful create still reports the new topic; the
	// view carries the load error.
	return successResult(DomainOutput{Domain: created, View: h.ctrl.View()})
}

// HandleUpdate handles the topic_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[UpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	updated, err := h.ctrl.UpdateDomain(ctx, input.ID, input.Name, input.Description)
	if err != nil && updated == nil {
		return errorResult(err), nil
	}
	return successResult(DomainOutput{Domain: updated, View: h.ctrl.View()})
}

// HandleDelete handles the topic_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[DeleteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.ctrl.DeleteDomain(ctx, input.ID); err != nil && !errors.Is(err, errors.ErrFetchFailed) && !errors.Is(err, errors.ErrPathFetchFailed) {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"deleted": input.ID,
		"view":    h.ctrl.View(),
	})
}

// HandlePostsList handles the posts_list tool call.
func (h *Handlers) HandlePostsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[PostsListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if input.Refresh {
		// Failures land in the view and are reported below.
		_ = h.ctrl.Reload(ctx)
	}

	v := h.ctrl.View()
	if v.ActiveID == nil {
		return errorResult(errors.NewInvalidRequest("no active news topic: navigate to one first")), nil
	}
	return successResult(PostsOutput{
		DomainID: v.ActiveID,
		Posts:    v.Posts,
		Status:   string(v.PostsStatus),
		Error:    v.PostsError,
	})
}

// HandleSummaryGenerate handles the summary_generate tool call.
func (h *Handlers) HandleSummaryGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := h.ctrl.Summarize(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	v := h.ctrl.View()
	out := SummaryOutput{Summary: summary}
	if v.SummaryDomainID != nil {
		out.DomainID = *v.SummaryDomainID
	}
	return successResult(out)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if navErr, ok := errors.As(err); ok {
		message := navErr.Message
		// Keep context added by wrapping, e.g. "items[2]: ..."
		if wrapped := err.Error(); wrapped != navErr.Error() {
			message = strings.TrimSuffix(wrapped, navErr.Error()) + message
		}
		errorObj := map[string]any{
			"code":    navErr.Code,
			"message": message,
			"status":  navErr.Status,
		}
		if navErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if navErr.Code != errors.ErrInternal && navErr.Details != nil {
			errorObj["details"] = navErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
