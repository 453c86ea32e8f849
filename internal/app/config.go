package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// RulesPath is a .hcl file or a directory of .hcl files.
	RulesPath string
	// ProjectPath is the read-only source tree rules copy from.
	ProjectPath string
	// SessionPath is the destination working copy rules provision.
	SessionPath string
	// WhitelistPath optionally extends the command whitelist from a YAML
	// file.
	WhitelistPath string

	ValidateOnly      bool
	RollbackOnFailure bool
	Parallel          bool
	MaxParallelism    int
	ContinueOnFailure bool

	// Vars are extra template variables, merged over the built-in
	// project_path / session_path / session_name set.
	Vars map[string]string

	LogFormat string
	LogLevel  string
}

// NewConfig validates the required fields and returns the config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.RulesPath == "" {
		return nil, errors.New("RulesPath is a required configuration field and cannot be empty")
	}
	if cfg.ProjectPath == "" {
		return nil, errors.New("ProjectPath is a required configuration field and cannot be empty")
	}
	if cfg.SessionPath == "" {
		return nil, errors.New("SessionPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
