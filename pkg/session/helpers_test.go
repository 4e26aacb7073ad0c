package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

// collectingHandler records diagnostics and returns ret from every call.
type collectingHandler struct {
	mu       sync.Mutex
	ret      error
	errors   []*engine.Diagnostic
	warnings []*engine.Diagnostic
}

func (h *collectingHandler) HandleError(d *engine.Diagnostic) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, d)
	return h.ret
}

func (h *collectingHandler) HandleWarning(d *engine.Diagnostic) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.warnings = append(h.warnings, d)
	return h.ret
}
