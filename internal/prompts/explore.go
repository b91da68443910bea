// Package prompts implements MCP prompt handlers for the stuart server.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ExplorePrompt handles the stuart-explore MCP prompt.
// It instructs the AI to survey the stored codebase and present its shape.
type ExplorePrompt struct{}

// NewExplorePrompt creates an ExplorePrompt.
func NewExplorePrompt() *ExplorePrompt {
	return &ExplorePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ExplorePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("stuart-explore",
		mcp.WithPromptDescription(
			"Survey the stored codebase. "+
				"Shows the project, its modules and elements, relationship "+
				"counts, and suggests where to look next.",
		),
		mcp.WithArgument("focus",
			mcp.ArgumentDescription("Optional module or element to zoom in on, e.g. 'auth' or 'auth.login'"),
		),
	)
}

// Handle processes the stuart-explore prompt request.
func (p *ExplorePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	focus := ""
	if args := req.Params.Arguments; args != nil {
		if f, ok := args["focus"]; ok && f != "" {
			focus = f
		}
	}

	text := "Please run `codebase_stats` and `module_list` to survey the stored codebase.\n\n" +
		"Then:\n" +
		"1. Show me the project and its modules with their element counts\n" +
		"2. Point out the most connected elements (use `context_build` on anything interesting)\n" +
		"3. Tell me where the entry points are and how the modules relate"
	if focus != "" {
		text = fmt.Sprintf(
			"Please survey the stored codebase around '%s'.\n\n"+
				"1. Run `element_search` with query='%s' to find it\n"+
				"2. Run `context_build` on the best match to pull in its callers and callees\n"+
				"3. Summarize what it does and what depends on it",
			focus, focus,
		)
	}

	return &mcp.GetPromptResult{
		Description: "Explore the stored codebase",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}
