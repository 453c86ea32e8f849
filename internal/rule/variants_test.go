package rule_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/rule"
	"github.com/vk/sessionkit/internal/testutil"
)

func buildRule(t *testing.T, h *testutil.Harness, spec *config.RuleSpec) rule.Rule {
	t.Helper()
	spec.Normalize()
	require.NoError(t, spec.CheckFields())
	r, err := rule.Builtins().New(context.Background(), spec, h.Env)
	require.NoError(t, err)
	return r
}

func TestCopyFilesRule(t *testing.T) {
	ctx := context.Background()

	t.Run("copies required files into the session", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{
			"Gemfile":      "source 'https://rubygems.org'\n",
			"Gemfile.lock": "GEM\n",
		})
		r := buildRule(t, h, &config.RuleSpec{
			Name: "base_files",
			Type: config.RuleCopyFiles,
			Files: []*config.CopyFileSpec{
				{Source: "Gemfile", Required: true},
				{Source: "Gemfile.lock", Required: true},
			},
		})

		require.NoError(t, r.Validate(ctx))
		result := r.Apply(ctx)
		require.True(t, result.Success(), "apply failed: %v", result.Err)
		require.Len(t, result.Artifacts, 2)
		assert.Equal(t, rule.OpCopy, result.Artifacts[0].Operation)
		assert.Equal(t, "source 'https://rubygems.org'\n", h.SessionFile(t, "Gemfile"))
	})

	t.Run("validation reports every missing required source", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		r := buildRule(t, h, &config.RuleSpec{
			Name: "base_files",
			Type: config.RuleCopyFiles,
			Files: []*config.CopyFileSpec{
				{Source: "Gemfile", Required: true},
				{Source: ".env", Required: true},
			},
		})

		err := r.Validate(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Required source file does not exist: Gemfile")
		assert.Contains(t, err.Error(), "Required source file does not exist: .env")
	})

	t.Run("missing optional sources are skipped", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{"Gemfile": "gems\n"})
		r := buildRule(t, h, &config.RuleSpec{
			Name: "base_files",
			Type: config.RuleCopyFiles,
			Files: []*config.CopyFileSpec{
				{Source: "Gemfile", Required: true},
				{Source: ".env.local", Required: false},
			},
		})

		require.NoError(t, r.Validate(ctx))
		result := r.Apply(ctx)
		require.True(t, result.Success())
		assert.Len(t, result.Artifacts, 1)
	})

	t.Run("traversal in a destination fails validation", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{"Gemfile": "gems\n"})
		r := buildRule(t, h, &config.RuleSpec{
			Name: "escape",
			Type: config.RuleCopyFiles,
			Files: []*config.CopyFileSpec{
				{Source: "Gemfile", Destination: "../outside", Required: true},
			},
		})
		assert.Error(t, r.Validate(ctx))
	})

	t.Run("rollback removes copied destinations", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{"Gemfile": "gems\n"})
		spec := &config.RuleSpec{
			Name:  "base_files",
			Type:  config.RuleCopyFiles,
			Files: []*config.CopyFileSpec{{Source: "Gemfile", Required: true}},
		}
		r := buildRule(t, h, spec)

		result := r.Apply(ctx)
		require.True(t, result.Success())
		dest := filepath.Join(h.SessionDir, "Gemfile")
		require.FileExists(t, dest)

		rev, ok := r.(rule.Reverser)
		require.True(t, ok, "copy_files must be reversible")
		require.NoError(t, rev.Rollback(ctx, result.Artifacts))
		assert.NoFileExists(t, dest)

		// A second rollback of the same artifacts is harmless.
		assert.NoError(t, rev.Rollback(ctx, result.Artifacts))
	})
}

func TestSetupCommandsRule(t *testing.T) {
	ctx := context.Background()

	t.Run("validation rejects non-whitelisted commands before anything runs", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		r := buildRule(t, h, &config.RuleSpec{
			Name: "danger",
			Type: config.RuleSetupCommands,
			Commands: []*config.CommandSpec{
				{Command: []string{"rm", "-rf", "/"}, Timeout: time.Minute},
			},
		})

		err := r.Validate(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "command not whitelisted")
	})

	t.Run("runs commands in order inside the session directory", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		r := buildRule(t, h, &config.RuleSpec{
			Name: "setup",
			Type: config.RuleSetupCommands,
			Commands: []*config.CommandSpec{
				{Command: []string{"mkdir", "tmp"}, Timeout: time.Minute},
				{Command: []string{"touch", "tmp/.keep"}, Timeout: time.Minute},
			},
		})

		require.NoError(t, r.Validate(ctx))
		result := r.Apply(ctx)
		require.True(t, result.Success(), "apply failed: %v", result.Err)
		require.Len(t, result.Artifacts, 2)
		assert.Equal(t, rule.OpCommand, result.Artifacts[0].Operation)
		assert.FileExists(t, filepath.Join(h.SessionDir, "tmp", ".keep"))
	})

	t.Run("a satisfied file_not_exists condition skips the command", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		require.NoError(t, os.WriteFile(filepath.Join(h.SessionDir, "schema.rb"), []byte("done\n"), 0o644))

		r := buildRule(t, h, &config.RuleSpec{
			Name: "migrate",
			Type: config.RuleSetupCommands,
			Commands: []*config.CommandSpec{
				{
					Command:       []string{"touch", "should-not-exist"},
					Timeout:       time.Minute,
					Condition:     config.CondFileNotExists,
					ConditionPath: "schema.rb",
				},
			},
		})

		result := r.Apply(ctx)
		require.True(t, result.Success())
		assert.Empty(t, result.Artifacts, "skipped commands record no artifacts")
		assert.NoFileExists(t, filepath.Join(h.SessionDir, "should-not-exist"))
	})

	t.Run("a satisfied db_not_exists condition skips the command", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		require.NoError(t, os.MkdirAll(filepath.Join(h.SessionDir, "db"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(h.SessionDir, "db", "development.sqlite3"), nil, 0o644))

		r := buildRule(t, h, &config.RuleSpec{
			Name: "db_setup",
			Type: config.RuleSetupCommands,
			Commands: []*config.CommandSpec{
				{
					Command:   []string{"touch", "db-created"},
					Timeout:   time.Minute,
					Condition: config.CondDBNotExists,
				},
			},
		})

		result := r.Apply(ctx)
		require.True(t, result.Success())
		assert.NoFileExists(t, filepath.Join(h.SessionDir, "db-created"))
	})

	t.Run("a failing command fails the rule and stops the sequence", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		r := buildRule(t, h, &config.RuleSpec{
			Name: "broken",
			Type: config.RuleSetupCommands,
			Commands: []*config.CommandSpec{
				{Command: []string{"false"}, Timeout: time.Minute},
				{Command: []string{"touch", "never"}, Timeout: time.Minute},
			},
		})

		result := r.Apply(ctx)
		require.False(t, result.Success())
		var execErr *rule.ExecutionError
		require.ErrorAs(t, result.Err, &execErr)
		assert.Equal(t, "broken", execErr.Rule)
		assert.NoFileExists(t, filepath.Join(h.SessionDir, "never"))
	})

	t.Run("ignore_failure tolerates a failing command", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		r := buildRule(t, h, &config.RuleSpec{
			Name: "tolerant",
			Type: config.RuleSetupCommands,
			Commands: []*config.CommandSpec{
				{Command: []string{"false"}, Timeout: time.Minute, IgnoreFailure: true},
				{Command: []string{"touch", "after"}, Timeout: time.Minute},
			},
		})

		result := r.Apply(ctx)
		require.True(t, result.Success())
		assert.FileExists(t, filepath.Join(h.SessionDir, "after"))
	})
}

func TestTemplateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("renders variables into the session", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{
			"config/database.yml.tmpl": "database: app_${session_name}\n",
		})
		r := buildRule(t, h, &config.RuleSpec{
			Name: "db_config",
			Type: config.RuleTemplate,
			Template: &config.TemplateSpec{
				Source:      "config/database.yml.tmpl",
				Destination: "config/database.yml",
				Process:     true,
			},
		})

		require.NoError(t, r.Validate(ctx))
		result := r.Apply(ctx)
		require.True(t, result.Success(), "apply failed: %v", result.Err)
		require.Len(t, result.Artifacts, 1)
		assert.Equal(t, rule.OpRender, result.Artifacts[0].Operation)
		assert.Equal(t, "database: app_session\n", h.SessionFile(t, "config/database.yml"))
	})

	t.Run("process=false copies the template verbatim", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{
			"raw.conf": "literal ${not_a_variable}\n",
		})
		r := buildRule(t, h, &config.RuleSpec{
			Name: "raw",
			Type: config.RuleTemplate,
			Template: &config.TemplateSpec{
				Source:      "raw.conf",
				Destination: "raw.conf",
				Process:     false,
			},
		})

		require.NoError(t, r.Validate(ctx))
		result := r.Apply(ctx)
		require.True(t, result.Success())
		assert.Equal(t, "literal ${not_a_variable}\n", h.SessionFile(t, "raw.conf"))
	})

	t.Run("validation catches missing sources and bad syntax", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{
			"bad.tmpl": "broken ${unterminated",
		})

		missing := buildRule(t, h, &config.RuleSpec{
			Name: "missing",
			Type: config.RuleTemplate,
			Template: &config.TemplateSpec{
				Source: "absent.tmpl", Destination: "out", Process: true,
			},
		})
		err := missing.Validate(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Required source file does not exist")

		bad := buildRule(t, h, &config.RuleSpec{
			Name: "bad",
			Type: config.RuleTemplate,
			Template: &config.TemplateSpec{
				Source: "bad.tmpl", Destination: "out", Process: true,
			},
		})
		err = bad.Validate(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "template syntax error")
	})

	t.Run("rollback removes the rendered file", func(t *testing.T) {
		h := testutil.NewHarness(t, map[string]string{"t.tmpl": "x\n"})
		r := buildRule(t, h, &config.RuleSpec{
			Name: "t",
			Type: config.RuleTemplate,
			Template: &config.TemplateSpec{
				Source: "t.tmpl", Destination: "t.out", Process: true,
			},
		})

		result := r.Apply(ctx)
		require.True(t, result.Success())
		dest := filepath.Join(h.SessionDir, "t.out")
		require.FileExists(t, dest)

		rev, ok := r.(rule.Reverser)
		require.True(t, ok)
		require.NoError(t, rev.Rollback(ctx, result.Artifacts))
		assert.NoFileExists(t, dest)
	})
}

func TestRegistry(t *testing.T) {
	r := rule.Builtins()
	assert.True(t, r.Known(config.RuleCopyFiles))
	assert.True(t, r.Known(config.RuleSetupCommands))
	assert.True(t, r.Known(config.RuleTemplate))
	assert.False(t, r.Known(config.RuleType("exotic")))

	_, err := r.New(context.Background(), &config.RuleSpec{Name: "x", Type: "exotic"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown rule type")

	assert.Panics(t, func() {
		r.Register(config.RuleCopyFiles, func(*config.RuleSpec, *rule.Env) rule.Rule { return nil })
	})
}
