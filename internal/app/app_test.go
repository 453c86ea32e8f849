package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sessionkit/internal/app"
	"github.com/vk/sessionkit/internal/hclconf"
	"github.com/vk/sessionkit/internal/testutil"
)

// fixture lays out a project tree, a rules file, and an empty session
// directory, returning a ready-to-run config.
func fixture(t *testing.T, projectFiles map[string]string, rules string) *app.Config {
	t.Helper()
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "project")
	sessionDir := filepath.Join(tmp, "session")
	require.NoError(t, os.Mkdir(projectDir, 0o755))
	require.NoError(t, os.Mkdir(sessionDir, 0o755))

	for name, content := range projectFiles {
		path := filepath.Join(projectDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	rulesPath := filepath.Join(tmp, "rules.hcl")
	require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o644))

	cfg, err := app.NewConfig(app.Config{
		RulesPath:   rulesPath,
		ProjectPath: projectDir,
		SessionPath: sessionDir,
		LogFormat:   "text",
		LogLevel:    "debug",
	})
	require.NoError(t, err)
	return cfg
}

func TestAppRun(t *testing.T) {
	ctx := context.Background()

	t.Run("provisions a session end to end", func(t *testing.T) {
		cfg := fixture(t, map[string]string{
			"Gemfile":   "source 'https://rubygems.org'\n",
			"conf.tmpl": "session: ${session_name}\n",
		}, `
rule "copy_files" "base_files" {
  file { source = "Gemfile" }
}

rule "template" "conf" {
  depends_on = ["base_files"]
  template {
    source      = "conf.tmpl"
    destination = "conf.yml"
  }
}

rule "setup_commands" "announce" {
  depends_on = ["conf"]
  command {
    argv = ["echo", "session ready"]
  }
}
`)

		var out testutil.SafeBuffer
		a := app.NewApp(&out, cfg, hclconf.NewLoader())
		require.NoError(t, a.Run(ctx))

		assert.FileExists(t, filepath.Join(cfg.SessionPath, "Gemfile"))
		rendered, err := os.ReadFile(filepath.Join(cfg.SessionPath, "conf.yml"))
		require.NoError(t, err)
		assert.Equal(t, "session: session\n", string(rendered))

		assert.Contains(t, out.String(), "applied  base_files")
		assert.Contains(t, out.String(), "applied  conf")
		assert.Contains(t, out.String(), "3 applied, 0 failed, 0 skipped")
	})

	t.Run("validate-only reports and touches nothing", func(t *testing.T) {
		cfg := fixture(t, map[string]string{"Gemfile": "gems\n"}, `
rule "copy_files" "base_files" {
  file { source = "Gemfile" }
}
`)
		cfg.ValidateOnly = true

		var out testutil.SafeBuffer
		a := app.NewApp(&out, cfg, hclconf.NewLoader())
		require.NoError(t, a.Run(ctx))

		assert.Contains(t, out.String(), "Rules configuration is valid.")
		assert.NoFileExists(t, filepath.Join(cfg.SessionPath, "Gemfile"))
	})

	t.Run("invalid config fails before execution", func(t *testing.T) {
		cfg := fixture(t, nil, `
rule "copy_files" "base_files" {
  file { source = "Gemfile" }
}
`)
		var out testutil.SafeBuffer
		a := app.NewApp(&out, cfg, hclconf.NewLoader())
		err := a.Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rules validation failed")
		assert.Contains(t, err.Error(), "Required source file does not exist: Gemfile")
	})

	t.Run("rollback-on-failure undoes created files", func(t *testing.T) {
		cfg := fixture(t, map[string]string{"Gemfile": "gems\n"}, `
rule "copy_files" "base_files" {
  file { source = "Gemfile" }
}

rule "setup_commands" "broken" {
  depends_on = ["base_files"]
  command {
    argv = ["false"]
  }
}
`)
		cfg.RollbackOnFailure = true

		// The default whitelist carries real package managers, not /bin/false.
		whitelistPath := filepath.Join(filepath.Dir(cfg.RulesPath), "whitelist.yml")
		require.NoError(t, os.WriteFile(whitelistPath, []byte("commands:\n  - name: \"false\"\n"), 0o644))
		cfg.WhitelistPath = whitelistPath

		var out testutil.SafeBuffer
		a := app.NewApp(&out, cfg, hclconf.NewLoader())
		err := a.Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 rule(s) failed")

		assert.Contains(t, out.String(), "failed   broken")
		assert.Contains(t, out.String(), "Rolled back")
		assert.NoFileExists(t, filepath.Join(cfg.SessionPath, "Gemfile"))
	})

	t.Run("user vars reach templates", func(t *testing.T) {
		cfg := fixture(t, map[string]string{"t.tmpl": "branch: ${branch}\n"}, `
rule "template" "t" {
  template {
    source      = "t.tmpl"
    destination = "t.yml"
  }
}
`)
		cfg.Vars = map[string]string{"branch": "feature-x"}

		var out testutil.SafeBuffer
		a := app.NewApp(&out, cfg, hclconf.NewLoader())
		require.NoError(t, a.Run(ctx))

		rendered, err := os.ReadFile(filepath.Join(cfg.SessionPath, "t.yml"))
		require.NoError(t, err)
		assert.Equal(t, "branch: feature-x\n", string(rendered))
	})
}
