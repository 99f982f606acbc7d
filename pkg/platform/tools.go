package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-commerce-router/pkg/profile"
	"github.com/txn2/mcp-commerce-router/pkg/router"
)

// routeMessageInput is the payload for the route_message tool.
type routeMessageInput struct {
	UserID          string `json:"user_id" jsonschema:"external user identifier owning the conversation"`
	Message         string `json:"message" jsonschema:"the user's message to route"`
	ForceService    string `json:"force_service,omitempty" jsonschema:"optional service id to route to, bypassing classification"`
	ForceNewSession bool   `json:"force_new_session,omitempty" jsonschema:"start a fresh session even if one exists"`
}

// registerRouteTool registers the route_message tool, the router's main
// entry point.
func (p *Platform) registerRouteTool() {
	mcp.AddTool(p.mcpServer, &mcp.Tool{
		Name: "route_message",
		Description: "Route a user message to the matching commerce service " +
			"(food ordering, restaurant reservations, ride booking) and return " +
			"the service's reply. Conversations persist per user and service.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in routeMessageInput) (*mcp.CallToolResult, any, error) {
		return p.handleRouteMessage(ctx, in)
	})
}

func (p *Platform) handleRouteMessage(ctx context.Context, in routeMessageInput) (*mcp.CallToolResult, any, error) {
	if in.UserID == "" || in.Message == "" {
		return toolError("user_id and message are required"), nil, nil
	}

	var opts []router.Option
	if in.ForceService != "" {
		opts = append(opts, router.WithForceService(in.ForceService))
	}
	if in.ForceNewSession {
		opts = append(opts, router.WithNewSession())
	}

	reply, err := p.router.Route(ctx, in.UserID, in.Message, opts...)
	switch {
	case errors.Is(err, router.ErrUnroutable):
		return toolError("I specialize in commerce services like ordering food, " +
			"booking restaurants, and arranging rides. Could you clarify what " +
			"you'd like to do?"), nil, nil
	case errors.Is(err, router.ErrUpstream):
		return toolError("Sorry, the service is having trouble right now. " +
			"Please try again in a moment."), nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("routing message: %w", err)
	}

	data, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return toolError("Error: " + err.Error()), nil, nil
	}
	return toolText(string(data)), reply, nil
}

// profileInfoInput is the payload for the profile_info tool.
type profileInfoInput struct {
	UserID string `json:"user_id" jsonschema:"external user identifier to look up"`
}

// profileInfoOutput is a redacted profile summary: presence flags instead
// of raw contact data.
type profileInfoOutput struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name,omitempty"`
	HasEmail   bool   `json:"has_email"`
	HasPhone   bool   `json:"has_phone"`
	HasAddress bool   `json:"has_address"`
}

// registerProfileTool registers the profile_info debug tool.
func (p *Platform) registerProfileTool() {
	mcp.AddTool(p.mcpServer, &mcp.Tool{
		Name: "profile_info",
		Description: "Check whether a user profile exists and which fields are " +
			"populated. Returns a redacted summary, never raw contact data.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, in profileInfoInput) (*mcp.CallToolResult, any, error) {
		return p.handleProfileInfo(ctx, in)
	})
}

func (p *Platform) handleProfileInfo(ctx context.Context, in profileInfoInput) (*mcp.CallToolResult, any, error) {
	if in.UserID == "" {
		return toolError("user_id is required"), nil, nil
	}
	if p.profiles == nil {
		return toolText("No profile provider is configured."), nil, nil
	}

	prof, err := p.profiles.GetProfile(ctx, in.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		return toolText(fmt.Sprintf("No profile found for user %s", in.UserID)), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("looking up profile: %w", err)
	}

	out := profileInfoOutput{
		UserID:     in.UserID,
		Name:       prof.FullName,
		HasEmail:   prof.Email != "",
		HasPhone:   prof.Phone != "",
		HasAddress: len(prof.Addresses) > 0,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return toolError("Error: " + err.Error()), nil, nil
	}
	return toolText(string(data)), out, nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
