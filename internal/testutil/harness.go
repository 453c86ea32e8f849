// Package testutil provides shared helpers for engine and rule tests: a
// thread-safe log buffer and a tmp-dir harness that stands up a project
// root, a session directory, and a fully wired rule environment.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/sessionkit/internal/engine"
	"github.com/vk/sessionkit/internal/rule"
	"github.com/vk/sessionkit/internal/secgate"
	"github.com/vk/sessionkit/internal/tmpl"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness is a provisioned test fixture: a project tree, an empty session
// directory, and an engine wired with a test-friendly whitelist.
type Harness struct {
	ProjectDir string
	SessionDir string
	Env        *rule.Env
	Engine     *engine.Engine
}

// testWhitelist permits the harmless utilities tests run instead of real
// package managers.
func testWhitelist() *secgate.CommandWhitelist {
	return secgate.NewCommandWhitelist(map[string][]string{
		"echo":  nil,
		"true":  nil,
		"false": nil,
		"sleep": nil,
		"env":   nil,
		"touch": nil,
		"mkdir": nil,
	})
}

// NewHarness builds a harness whose project root contains the given files.
func NewHarness(t *testing.T, projectFiles map[string]string) *Harness {
	t.Helper()
	return NewHarnessWithWhitelist(t, projectFiles, testWhitelist())
}

// NewHarnessWithWhitelist builds a harness with a caller-supplied command
// whitelist.
func NewHarnessWithWhitelist(t *testing.T, projectFiles map[string]string, whitelist *secgate.CommandWhitelist) *Harness {
	t.Helper()

	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project")
	sessionDir := filepath.Join(tmpDir, "session")
	require.NoError(t, os.Mkdir(projectDir, 0o755))
	require.NoError(t, os.Mkdir(sessionDir, 0o755))

	for name, content := range projectFiles {
		path := filepath.Join(projectDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	paths := secgate.NewPathValidator()
	env := &rule.Env{
		ProjectPath: projectDir,
		SessionPath: sessionDir,
		Paths:       paths,
		Copier:      secgate.NewFileCopier(paths, secgate.NewArtifactCipher()),
		Commands:    secgate.NewCommandExecutor(whitelist),
		Whitelist:   whitelist,
		Templates:   tmpl.NewEngine(),
		Variables: map[string]cty.Value{
			"project_path": cty.StringVal(projectDir),
			"session_path": cty.StringVal(sessionDir),
			"session_name": cty.StringVal("session"),
		},
	}

	return &Harness{
		ProjectDir: projectDir,
		SessionDir: sessionDir,
		Env:        env,
		Engine:     engine.New(env),
	}
}

// SessionFile reads a file from the session directory, failing the test if
// it does not exist.
func (h *Harness) SessionFile(t *testing.T, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(h.SessionDir, name))
	require.NoError(t, err)
	return string(raw)
}
