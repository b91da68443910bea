package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ChangePrompt handles the stuart-change MCP prompt.
// It guides the AI through the read-then-mutate workflow: build context
// around the affected elements first, then apply the change through the
// mutation tools.
type ChangePrompt struct{}

// NewChangePrompt creates a ChangePrompt.
func NewChangePrompt() *ChangePrompt {
	return &ChangePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ChangePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("stuart-change",
		mcp.WithPromptDescription(
			"Make a change to the stored codebase. "+
				"Guides the AI to gather context around the affected elements "+
				"before mutating, and to record call and type relationships "+
				"for anything it writes.",
		),
		mcp.WithArgument("request",
			mcp.ArgumentDescription("What to change, in plain language"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the stuart-change prompt request.
func (p *ChangePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	request := ""
	if args := req.Params.Arguments; args != nil {
		request = args["request"]
	}
	if request == "" {
		return nil, fmt.Errorf("stuart-change requires a 'request' argument")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Change: %s", request),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to make this change to the stored codebase:\n\n%s\n\n"+
						"Please:\n"+
						"1. Run `element_search` to find the elements involved\n"+
						"2. Run `context_build` on each to see their callers and callees before touching them\n"+
						"3. Apply the change with `element_create` / `element_update` / `element_delete`\n"+
						"4. Record every new call with `edge_create` (kind='calls') and every type use with kind='uses_type'\n"+
						"5. Run `consistency_check`, then `codebase_render` and tell me which files changed",
					request,
				)),
			},
		},
	}, nil
}
