// Package app wires the session provisioner together: logger, rules
// loader, security gate, template engine, and the rules engine itself.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
	"github.com/vk/sessionkit/internal/engine"
	"github.com/vk/sessionkit/internal/rule"
	"github.com/vk/sessionkit/internal/secgate"
	"github.com/vk/sessionkit/internal/tmpl"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	model  *config.Model
	engine *engine.Engine
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and engine.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.RulesPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load rules configuration: %w", err))
	}
	logger.Debug("Rules configuration loaded.", "rules", len(model.Rules))

	whitelist := secgate.DefaultCommandWhitelist()
	if appConfig.WhitelistPath != "" {
		if err := whitelist.MergeFile(appConfig.WhitelistPath); err != nil {
			panic(fmt.Errorf("failed to load command whitelist: %w", err))
		}
		logger.Debug("Command whitelist extended from file.", "path", appConfig.WhitelistPath)
	}

	paths := secgate.NewPathValidator()
	env := &rule.Env{
		ProjectPath: appConfig.ProjectPath,
		SessionPath: appConfig.SessionPath,
		Paths:       paths,
		Copier:      secgate.NewFileCopier(paths, secgate.NewArtifactCipher()),
		Commands:    secgate.NewCommandExecutor(whitelist),
		Whitelist:   whitelist,
		Templates:   tmpl.NewEngine(),
		Variables:   templateVariables(appConfig),
	}

	return &App{
		outW:   outW,
		logger: logger,
		config: appConfig,
		model:  model,
		engine: engine.New(env),
	}
}

// Engine returns the application's rules engine. This is primarily for
// testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// templateVariables builds the per-apply template variable set: the
// built-in session variables plus any user-supplied -var pairs.
func templateVariables(cfg *Config) map[string]cty.Value {
	vars := map[string]cty.Value{
		"project_path": cty.StringVal(cfg.ProjectPath),
		"session_path": cty.StringVal(cfg.SessionPath),
		"session_name": cty.StringVal(filepath.Base(cfg.SessionPath)),
	}
	for k, v := range cfg.Vars {
		vars[k] = cty.StringVal(v)
	}
	return vars
}
