// Package agent turns natural-language requests into change sets.
//
// The agent asks a chat model for a JSON change set, applies it through the
// mutation gateway, and feeds any rejection back to the model for repair.
// Attempts are bounded; when they run out the agent escalates to the caller
// instead of looping.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/stuart-dev/stuart/internal/config"
	"github.com/stuart-dev/stuart/internal/gateway"
	"github.com/stuart-dev/stuart/internal/store"
)

// EscalateFunc is called when the agent exhausts its attempts. The request
// and the last rejection are handed to a human.
type EscalateFunc func(request string, lastErr error)

// Agent proposes and applies change sets for free-form requests.
type Agent struct {
	store   *store.Store
	gateway *gateway.Gateway
	caller  Caller
	model   string

	// supervisorModel, when set and different from model, gets one last
	// attempt after the regular attempts run out, before escalating to a
	// human.
	supervisorModel string

	maxAttempts int
	escalate    EscalateFunc
	log         *zap.Logger
}

// New creates an Agent. escalate may be nil.
func New(st *store.Store, gw *gateway.Gateway, caller Caller, cfg config.AgentSettings, escalate EscalateFunc, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Agent{
		store:           st,
		gateway:         gw,
		caller:          caller,
		model:           cfg.CodingModel,
		supervisorModel: cfg.ReasoningModel,
		maxAttempts:     attempts,
		escalate:        escalate,
		log:             log,
	}
}

// Run proposes a change set for the request and applies it, retrying with
// the rejection message until it applies or attempts run out. When the
// regular attempts are exhausted and a supervisor model is configured, that
// model gets one final attempt before the request escalates to a human.
func (a *Agent) Run(ctx context.Context, request string) (*gateway.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		result, err := a.attempt(ctx, request, lastErr, a.model)
		if err == nil {
			a.log.Info("request applied",
				zap.Int("attempt", attempt),
				zap.Int("ops", result.OpsApplied))
			return result, nil
		}
		if isFatal(err) {
			return nil, err
		}
		lastErr = err
		a.log.Warn("attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	if a.supervisorModel != "" && a.supervisorModel != a.model {
		result, err := a.attempt(ctx, request, lastErr, a.supervisorModel)
		if err == nil {
			a.log.Info("request applied by supervisor model",
				zap.String("model", a.supervisorModel),
				zap.Int("ops", result.OpsApplied))
			return result, nil
		}
		if isFatal(err) {
			return nil, err
		}
		lastErr = err
		a.log.Warn("supervisor attempt failed", zap.Error(err))
	}

	if a.escalate != nil {
		a.escalate(request, lastErr)
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", a.maxAttempts, lastErr)
}

// attempt is one propose-then-apply cycle with the given model.
func (a *Agent) attempt(ctx context.Context, request string, lastErr error, model string) (*gateway.Result, error) {
	cs, err := a.propose(ctx, request, lastErr, model)
	if err != nil {
		return nil, err
	}
	return a.gateway.Apply(ctx, cs)
}

// Propose asks the coding model for a change set. lastErr, when non-nil, is
// the previous rejection and is included so the model can repair its output.
func (a *Agent) Propose(ctx context.Context, request string, lastErr error) (*gateway.ChangeSet, error) {
	return a.propose(ctx, request, lastErr, a.model)
}

func (a *Agent) propose(ctx context.Context, request string, lastErr error, model string) (*gateway.ChangeSet, error) {
	project, modules, err := a.summarize(ctx)
	if err != nil {
		return nil, err
	}

	data := promptData{Project: project, Modules: modules, Request: request}
	if lastErr != nil {
		data.LastError = lastErr.Error()
	}
	prompt, err := renderPrompt(proposeTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	resp, err := a.caller.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}

	cs, err := ParseChangeSet(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

// ParseChangeSet decodes a model response into a change set. Code fences
// are tolerated even though the prompt forbids them.
func ParseChangeSet(content string) (*gateway.ChangeSet, error) {
	content = stripFences(content)

	var parsed struct {
		Reason string       `json:"reason"`
		Ops    []gateway.Op `json:"ops"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("response is not a valid change set: %w", err)
	}

	cs := gateway.NewChangeSet(parsed.Reason)
	cs.Ops = parsed.Ops
	return cs, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// summarize renders the project header and a module inventory for the
// prompt. A store with no project yet is fine.
func (a *Agent) summarize(ctx context.Context) (project, modules string, err error) {
	p, err := a.store.GetProject(ctx)
	if err != nil {
		var nf *store.NotFoundError
		if !errors.As(err, &nf) {
			return "", "", err
		}
		project = "(no project recorded yet)"
	} else {
		project = p.Name
		if p.Description != "" {
			project += ": " + p.Description
		}
	}

	mods, err := a.store.ListModules(ctx)
	if err != nil {
		return "", "", err
	}
	if len(mods) == 0 {
		return project, "(no modules yet)", nil
	}

	var b strings.Builder
	for _, m := range mods {
		fmt.Fprintf(&b, "- %s (%s)", m.Name, m.Filename)
		if m.Description != "" {
			fmt.Fprintf(&b, ": %s", m.Description)
		}
		b.WriteString("\n")
		elems, err := a.store.ListElements(ctx, m.ID)
		if err != nil {
			return "", "", err
		}
		for _, e := range elems {
			fmt.Fprintf(&b, "  - %s %s", e.Kind, e.Name)
			if e.Signature != "" {
				fmt.Fprintf(&b, " (%s)", e.Signature)
			}
			b.WriteString("\n")
		}
	}
	return project, strings.TrimRight(b.String(), "\n"), nil
}

// isFatal reports errors that retrying cannot fix.
func isFatal(err error) bool {
	var corrupt *store.StoreCorruptionError
	var timeout *store.TimeoutError
	return errors.As(err, &corrupt) || errors.As(err, &timeout) || errors.Is(err, context.Canceled)
}
