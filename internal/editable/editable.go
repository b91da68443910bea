// Package editable provides the manual escape hatch from generated,
// read-only artifacts: one element is checked out into a writable scratch
// file, edits are watched, and each save is committed back through the
// mutation gateway as an update.
package editable

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/stuart-dev/stuart/internal/gateway"
	"github.com/stuart-dev/stuart/internal/store"
)

const (
	markerPrefix    = "# stuart:editable "
	signaturePrefix = "# stuart:signature "

	debounceWindow = 200 * time.Millisecond
)

// Session is one checked-out element.
type Session struct {
	store   *store.Store
	gateway *gateway.Gateway
	log     *zap.Logger

	Module  string
	Element string
	Kind    string
	Path    string

	closeOnce sync.Once
}

// Checkout writes the element into a writable scratch file under dir and
// returns a session for committing edits back.
func Checkout(ctx context.Context, st *store.Store, gw *gateway.Gateway, dir, module, element string, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}

	m, err := st.GetModuleByName(ctx, module)
	if err != nil {
		return nil, err
	}
	e, err := st.GetElementByName(ctx, m.ID, element)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.stuart", module, element))
	if err := os.WriteFile(path, []byte(scratchText(module, e)), 0644); err != nil {
		return nil, err
	}

	log.Info("element checked out",
		zap.String("module", module), zap.String("element", element), zap.String("path", path))
	return &Session{
		store:   st,
		gateway: gw,
		log:     log,
		Module:  module,
		Element: element,
		Kind:    e.Kind,
		Path:    path,
	}, nil
}

// scratchText serializes an element for editing: a marker header, the
// signature on its own marker line when present, then the content.
func scratchText(module string, e *store.Element) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%smodule=%s element=%s kind=%s\n", markerPrefix, module, e.Name, e.Kind)
	if e.Kind == store.KindFunction && e.Signature != "" {
		fmt.Fprintf(&b, "%s%s\n", signaturePrefix, e.Signature)
	}
	switch e.Kind {
	case store.KindConstant:
		b.WriteString(e.Value)
	default:
		b.WriteString(e.Body)
	}
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// Commit re-parses the scratch file and applies the edit through the
// gateway. The element keeps its position; only content changes.
func (s *Session) Commit(ctx context.Context) (*gateway.Result, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}

	sig, content, err := parseScratch(string(raw), s.Module, s.Element)
	if err != nil {
		return nil, err
	}

	op := gateway.Op{Kind: gateway.OpUpdateElement, Module: s.Module, Element: s.Element}
	switch s.Kind {
	case store.KindConstant:
		op.Value = &content
	default:
		op.Body = &content
		if s.Kind == store.KindFunction {
			op.Signature = &sig
		}
	}

	cs := gateway.NewChangeSet("editable: " + s.Module + "." + s.Element).Add(op)
	return s.gateway.Apply(ctx, cs)
}

// Watch blocks, committing the scratch file after each burst of writes,
// until ctx is done. Commit failures are logged and watching continues, so
// a bad intermediate save does not end the session.
func (s *Session) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file on save, which
	// drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(s.Path)); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.Path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if result, err := s.Commit(ctx); err != nil {
				s.log.Warn("commit of edited element failed",
					zap.String("path", s.Path), zap.Error(err))
			} else {
				s.log.Info("edited element committed",
					zap.String("change_set", result.ChangeSetID))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// Close removes the scratch file.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = os.Remove(s.Path)
	})
	return err
}

// parseScratch splits a scratch file back into signature and content. The
// marker must name the same element the session checked out.
func parseScratch(raw, module, element string) (sig, content string, err error) {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], markerPrefix) {
		return "", "", &store.ValidationError{
			Invariant: "editable-marker",
			Detail:    "scratch file is missing its header marker; was it edited away?",
		}
	}

	fields := map[string]string{}
	for _, kv := range strings.Fields(strings.TrimPrefix(lines[0], markerPrefix)) {
		if k, v, ok := strings.Cut(kv, "="); ok {
			fields[k] = v
		}
	}
	if fields["module"] != module || fields["element"] != element {
		return "", "", &store.ValidationError{
			Invariant: "editable-marker",
			Detail: fmt.Sprintf("scratch file header names %s.%s, session is for %s.%s",
				fields["module"], fields["element"], module, element),
		}
	}

	rest := lines[1:]
	if len(rest) > 0 && strings.HasPrefix(rest[0], signaturePrefix) {
		sig = strings.TrimPrefix(rest[0], signaturePrefix)
		rest = rest[1:]
	}
	content = strings.TrimRight(strings.Join(rest, "\n"), "\n")
	if content == "" {
		return "", "", &store.ValidationError{
			Invariant: "editable-content",
			Detail:    "scratch file has no content below the header",
		}
	}
	return sig, content, nil
}
