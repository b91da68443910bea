package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stuart-dev/stuart/internal/agent"
	"github.com/stuart-dev/stuart/internal/gateway"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Have the LLM agent apply a natural-language change",
		Long: `Ask the agent to change the stored codebase. The agent proposes a
change set; you review and confirm it before anything is applied. With
--yes the agent applies directly and retries rejected proposals a bounded
number of times before giving up.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	cmd.Flags().BoolP("yes", "y", false, "Apply without confirmation, with automatic repair retries")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")

	app, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.cfg.ValidateForAgent(); err != nil {
		return err
	}

	ctx := cmd.Context()
	caller, err := agent.NewCaller(ctx, app.cfg.Agent, app.cfg.Agent.CodingModel)
	if err != nil {
		return err
	}

	escalate := func(req string, lastErr error) {
		fmt.Fprintf(cmd.ErrOrStderr(),
			"The agent could not produce an applicable change set for %q.\nLast rejection: %v\n"+
				"Resolve the conflict manually, then try again.\n", req, lastErr)
	}
	ag := agent.New(app.store, app.gateway, caller, app.cfg.Agent, escalate, app.log)

	autoApply, _ := cmd.Flags().GetBool("yes")
	if autoApply {
		result, err := ag.Run(ctx, request)
		if err != nil {
			return err
		}
		printResult(cmd, result)
		return nil
	}

	cs, err := ag.Propose(ctx, request, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Proposed change set (%s):\n", cs.Reason)
	for i, op := range cs.Ops {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, describeOp(op))
	}
	if !confirm(cmd, "Apply these changes?") {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	result, err := app.gateway.Apply(ctx, cs)
	if err != nil {
		return err
	}
	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, result *gateway.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d operation(s) (change set %s)\n",
		result.OpsApplied, result.ChangeSetID)
	for _, p := range result.Rendered {
		fmt.Fprintf(cmd.OutOrStdout(), "  rendered %s\n", p)
	}
}

func describeOp(op gateway.Op) string {
	switch op.Kind {
	case gateway.OpCreateEdge, gateway.OpDeleteEdge:
		return fmt.Sprintf("%s %s %s -> %s", op.Kind, op.EdgeKind, op.From, op.To)
	case gateway.OpAddImport, gateway.OpRemoveImport:
		return fmt.Sprintf("%s %s imports %s", op.Kind, op.Module, op.Imported)
	case gateway.OpSetProject:
		return fmt.Sprintf("%s %s", op.Kind, op.Project.Name)
	default:
		if op.Element != "" {
			return fmt.Sprintf("%s %s.%s", op.Kind, op.Module, op.Element)
		}
		return fmt.Sprintf("%s %s", op.Kind, op.Module)
	}
}

// confirm asks on stdin, defaulting to yes on a bare return.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [Y/n] ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}
