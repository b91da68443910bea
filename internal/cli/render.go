package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Serialize the stored codebase to read-only source files",
		Long: `Write the store's modules as source files in the artifact directory.
Rendering is deterministic: the same store state always produces
byte-identical files. Rendered files are read-only; use 'stuart editable'
to change code by hand.`,
		RunE: runRender,
	}
	cmd.Flags().String("module", "", "Render only this module")
	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	app, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	var paths []string
	if module, _ := cmd.Flags().GetString("module"); module != "" {
		m, err := app.store.GetModuleByName(ctx, module)
		if err != nil {
			return err
		}
		p, err := app.renderer.RenderModule(ctx, m.ID)
		if err != nil {
			return err
		}
		paths = []string{p}
	} else {
		paths, err = app.renderer.RenderAll(ctx)
		if err != nil {
			return err
		}
	}

	if len(paths) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to render: the store has no modules.")
		return nil
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
