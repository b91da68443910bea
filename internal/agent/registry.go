package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

const defaultProxyURL = "https://proxy.golang.org"

// ModuleInfo is the latest published version of a dependency, as reported
// by the module proxy. The agent includes it in prompts so proposed code
// imports real packages at real versions.
type ModuleInfo struct {
	Path    string
	Version string    `json:"Version"`
	Time    time.Time `json:"Time"`
}

// Registry looks up dependencies on a Go module proxy.
type Registry struct {
	base   string
	client *http.Client
	log    *zap.Logger
}

// NewRegistry creates a Registry against proxy.golang.org.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		base:   defaultProxyURL,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Latest fetches the newest version of the given module path.
func (r *Registry) Latest(ctx context.Context, modulePath string) (*ModuleInfo, error) {
	url := fmt.Sprintf("%s/%s/@latest", r.base, escapeModulePath(modulePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying module proxy for %s: %w", modulePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("module %s not found on proxy", modulePath)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("module proxy returned %s for %s", resp.Status, modulePath)
	}

	var info ModuleInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding proxy response for %s: %w", modulePath, err)
	}
	info.Path = modulePath

	r.log.Debug("resolved module version",
		zap.String("module", modulePath), zap.String("version", info.Version))
	return &info, nil
}

// escapeModulePath applies the proxy's case encoding: each uppercase letter
// becomes '!' plus its lowercase form.
func escapeModulePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if unicode.IsUpper(r) {
			b.WriteByte('!')
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
