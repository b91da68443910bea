// Package render serializes store modules into source files.
//
// Rendering is deterministic and idempotent: the same store state always
// produces byte-identical files. The output directory is a one-way, derived
// artifact: the renderer never reads it back, and written files are marked
// read-only so reviewers are not tempted to edit them.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/stuart-dev/stuart/internal/store"
)

// Renderer writes module source files derived from the element store.
type Renderer struct {
	store  *store.Store
	outDir string
	log    *zap.Logger
}

// New creates a Renderer writing into outDir.
func New(st *store.Store, outDir string, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{store: st, outDir: outDir, log: log}
}

// OutDir returns the artifact directory.
func (r *Renderer) OutDir() string { return r.outDir }

// RenderModule serializes one module and writes its file. Returns the
// written path.
func (r *Renderer) RenderModule(ctx context.Context, moduleID int64) (string, error) {
	m, err := r.store.GetModule(ctx, moduleID)
	if err != nil {
		return "", err
	}

	text, err := r.ModuleText(ctx, m)
	if err != nil {
		return "", err
	}

	path := filepath.Join(r.outDir, filepath.FromSlash(m.Filename))
	if err := writeReadOnly(path, text); err != nil {
		return "", fmt.Errorf("render: writing %s: %w", path, err)
	}

	r.log.Debug("rendered module", zap.String("module", m.Name), zap.String("path", path))
	return path, nil
}

// RenderModules serializes the given modules, in ID order for determinism.
func (r *Renderer) RenderModules(ctx context.Context, moduleIDs []int64) ([]string, error) {
	var paths []string
	for _, id := range moduleIDs {
		p, err := r.RenderModule(ctx, id)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// RenderAll serializes every module in the store.
func (r *Renderer) RenderAll(ctx context.Context) ([]string, error) {
	modules, err := r.store.ListModules(ctx)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, m := range modules {
		p, err := r.RenderModule(ctx, m.ID)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	r.log.Info("full render complete", zap.Int("modules", len(paths)))
	return paths, nil
}

// Remove deletes a module's artifact file, for modules deleted from the
// store. Missing files are fine: the module may never have been rendered.
func (r *Renderer) Remove(filename string) error {
	path := filepath.Join(r.outDir, filepath.FromSlash(filename))
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("render: removing %s: %w", path, err)
	}
	return nil
}

// ModuleText serializes a module to source text: header comment, imports in
// declaration order, then constants, types, and functions interleaved by
// their recorded positions.
func (r *Renderer) ModuleText(ctx context.Context, m *store.Module) (string, error) {
	comment := commentPrefix(m.Filename)

	var b strings.Builder
	fmt.Fprintf(&b, "%s Module %s. Generated by stuart; do not edit.\n", comment, m.Name)
	if m.Description != "" {
		for _, line := range strings.Split(m.Description, "\n") {
			fmt.Fprintf(&b, "%s %s\n", comment, line)
		}
	}

	imports, err := r.store.Imports(ctx, m.ID)
	if err != nil {
		return "", err
	}
	if len(imports) > 0 {
		b.WriteString("\n")
		for _, imp := range imports {
			target, err := r.store.GetModule(ctx, imp.ImportedID)
			if err != nil {
				return "", fmt.Errorf("resolving import %d: %w", imp.ImportedID, err)
			}
			fmt.Fprintf(&b, "import %s\n", target.Name)
		}
	}

	elements, err := r.store.ListElements(ctx, m.ID)
	if err != nil {
		return "", err
	}
	for _, e := range elements {
		b.WriteString("\n")
		b.WriteString(ElementText(e))
	}

	return b.String(), nil
}

// ElementText serializes a single element.
func ElementText(e store.Element) string {
	var b strings.Builder
	switch e.Kind {
	case store.KindConstant:
		fmt.Fprintf(&b, "%s = %s\n", e.Name, e.Value)
	case store.KindFunction:
		if e.Signature != "" {
			b.WriteString(e.Signature)
			b.WriteString("\n")
		}
		b.WriteString(e.Body)
		if !strings.HasSuffix(e.Body, "\n") {
			b.WriteString("\n")
		}
	default: // type
		b.WriteString(e.Body)
		if !strings.HasSuffix(e.Body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func commentPrefix(filename string) string {
	switch filepath.Ext(filename) {
	case ".go", ".js", ".ts", ".c", ".h", ".rs", ".java":
		return "//"
	default:
		return "#"
	}
}

// writeReadOnly writes content atomically (temp file + rename) and marks the
// result read-only. Rename replaces any previous read-only artifact.
func writeReadOnly(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Chmod(path, 0444)
}
