// Package cli implements the stuart command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stuart-dev/stuart/internal/assemble"
	"github.com/stuart-dev/stuart/internal/config"
	"github.com/stuart-dev/stuart/internal/gateway"
	"github.com/stuart-dev/stuart/internal/graph"
	"github.com/stuart-dev/stuart/internal/render"
	"github.com/stuart-dev/stuart/internal/store"
)

// NewRootCommand builds the stuart command tree.
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stuart",
		Short: "Codebase-as-a-database: store code as elements, render files on demand",
		Long: `Stuart stores a codebase as structured elements (functions, types,
constants) and typed relationships in a relational store. Source files are
a derived, read-only artifact. All changes flow through a validating
mutation gateway, whether from this CLI, MCP tools, or the LLM agent.`,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newRenderCmd(),
		newEditableCmd(),
		newCheckCmd(),
		newVersionCmd(version),
	)
	return rootCmd
}

// app holds the wired dependencies shared by the store-facing commands.
type app struct {
	cfg       *config.Settings
	store     *store.Store
	index     *graph.Index
	renderer  *render.Renderer
	gateway   *gateway.Gateway
	assembler *assemble.Assembler
	log       *zap.Logger
}

// newApp wires the store stack for a CLI command. The returned cleanup
// closes the store and flushes the logger.
func newApp(cmd *cobra.Command) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(store.Config{DataDir: cfg.DataDir, OpTimeout: cfg.OpTimeout})
	if err != nil {
		return nil, nil, fmt.Errorf("opening element store: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Warn("closing store", zap.Error(err))
		}
		_ = log.Sync()
	}

	idx, err := graph.Build(cmd.Context(), st)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("building relationship index: %w", err)
	}

	renderer := render.New(st, cfg.ArtifactDir, log)
	return &app{
		cfg:       cfg,
		store:     st,
		index:     idx,
		renderer:  renderer,
		gateway:   gateway.New(st, idx, renderer, log),
		assembler: assemble.New(st, idx),
		log:       log,
	}, cleanup, nil
}

// newLogger builds the CLI logger. Everything goes to stderr: stdout is
// reserved for command output and, under serve, the MCP stdio transport.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stuart version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stuart v%s\n", version)
		},
	}
}
