package secgate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandWhitelist(t *testing.T) {
	w := DefaultCommandWhitelist()

	t.Run("permitted subcommands pass", func(t *testing.T) {
		assert.True(t, w.Allowed([]string{"bundle", "install"}))
		assert.True(t, w.Allowed([]string{"npm", "ci"}))
		assert.True(t, w.Allowed([]string{"rails", "db:create"}))
		assert.True(t, w.Allowed([]string{"bin/setup"}))
	})

	t.Run("unlisted executable is denied", func(t *testing.T) {
		err := w.Check([]string{"rm", "-rf", "/"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "command not whitelisted")
	})

	t.Run("unlisted subcommand is denied", func(t *testing.T) {
		err := w.Check([]string{"bundle", "open"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `subcommand "open" is not permitted`)
	})

	t.Run("bare executable that requires a subcommand is denied", func(t *testing.T) {
		assert.False(t, w.Allowed([]string{"bundle"}))
	})

	t.Run("shell metacharacters are denied anywhere in the argv", func(t *testing.T) {
		for _, argv := range [][]string{
			{"echo", "hi; rm -rf /"},
			{"echo", "$(whoami)"},
			{"echo", "a", "&&", "b"},
			{"echo", "out > file"},
			{"echo", "`id`"},
		} {
			err := w.Check(argv)
			require.Error(t, err, "argv %v should be denied", argv)
			assert.Contains(t, err.Error(), "shell metacharacters")
		}
	})

	t.Run("interpreter with inline code is denied even if whitelisted", func(t *testing.T) {
		custom := NewCommandWhitelist(map[string][]string{"ruby": nil, "sh": nil})
		err := custom.Check([]string{"ruby", "-e", "puts 1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inline code")

		err = custom.Check([]string{"sh", "-c", "ls"})
		assert.Error(t, err)
	})

	t.Run("absolute path to a listed name is denied", func(t *testing.T) {
		assert.False(t, w.Allowed([]string{"/usr/bin/make"}))
	})

	t.Run("empty argv is denied", func(t *testing.T) {
		assert.False(t, w.Allowed(nil))
	})

	t.Run("checking never executes anything", func(t *testing.T) {
		marker := filepath.Join(t.TempDir(), "marker")
		w.Check([]string{"touch", marker})
		_, err := os.Stat(marker)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestWhitelistMergeFile(t *testing.T) {
	w := NewCommandWhitelist(map[string][]string{"echo": nil})

	path := filepath.Join(t.TempDir(), "whitelist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
commands:
  - name: mix
    subcommands: ["deps.get", "ecto.setup"]
  - name: cargo
`), 0o644))

	require.NoError(t, w.MergeFile(path))

	assert.True(t, w.Allowed([]string{"mix", "deps.get"}))
	assert.False(t, w.Allowed([]string{"mix", "phx.server"}))
	assert.True(t, w.Allowed([]string{"cargo", "build"}))
	assert.True(t, w.Allowed([]string{"echo", "still there"}))

	t.Run("missing file errors", func(t *testing.T) {
		assert.Error(t, w.MergeFile(filepath.Join(t.TempDir(), "nope.yaml")))
	})

	t.Run("entry without a name errors", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("commands:\n  - subcommands: [x]\n"), 0o644))
		assert.Error(t, w.MergeFile(bad))
	})
}
