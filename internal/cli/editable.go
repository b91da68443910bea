package cli

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stuart-dev/stuart/internal/editable"
)

func newEditableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "editable <module.element>",
		Short: "Check an element out into a writable scratch file",
		Long: `Write one element into a writable scratch file and watch it. Every
save is re-parsed and committed back through the mutation gateway with
full validation, then the affected module is re-rendered. Press Ctrl-C
to stop watching; the scratch file is removed on exit.`,
		Args: cobra.ExactArgs(1),
		RunE: runEditable,
	}
}

func runEditable(cmd *cobra.Command, args []string) error {
	module, element, ok := strings.Cut(args[0], ".")
	if !ok || module == "" || element == "" {
		return fmt.Errorf("expected <module>.<element>, got %q", args[0])
	}

	app, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	scratchDir := filepath.Join(app.cfg.DataDir, "editable")
	session, err := editable.Checkout(cmd.Context(), app.store, app.gateway, scratchDir, module, element, app.log)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Editing %s.%s in %s\n", module, element, session.Path)
	fmt.Fprintln(cmd.OutOrStdout(), "Each save commits through the gateway. Ctrl-C to finish.")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Watch(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Done.")
	return nil
}
