// Package cli parses command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/sessionkit/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("sessionkit", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
sessionkit - provisions isolated development sessions from declarative rules.

Usage:
  sessionkit [options] -project PROJECT_PATH -session SESSION_PATH RULES_PATH

Arguments:
  RULES_PATH
    Path to a single .hcl rules file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	rulesFlag := flagSet.String("rules", "", "Path to the rules file or directory.")
	projectFlag := flagSet.String("project", "", "Absolute path of the read-only project root.")
	sessionFlag := flagSet.String("session", "", "Absolute path of the session directory to provision.")
	whitelistFlag := flagSet.String("whitelist", "", "Optional YAML file extending the command whitelist.")
	validateFlag := flagSet.Bool("validate", false, "Validate the rules configuration and exit.")
	rollbackFlag := flagSet.Bool("rollback-on-failure", false, "Roll back created files when the apply fails.")
	parallelFlag := flagSet.Bool("parallel", false, "Execute independent rules of a wave concurrently.")
	maxParallelFlag := flagSet.Int("max-parallel", 4, "Worker pool size for parallel execution.")
	continueFlag := flagSet.Bool("continue-on-failure", false, "Keep executing rules after a failure.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	vars := make(map[string]string)
	flagSet.Func("var", "Template variable as key=value. Repeatable.", func(s string) error {
		key, value, found := strings.Cut(s, "=")
		if !found || key == "" {
			return fmt.Errorf("invalid -var %q: expected key=value", s)
		}
		vars[key] = value
		return nil
	})

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	rulesPath := *rulesFlag
	if rulesPath == "" && flagSet.NArg() > 0 {
		rulesPath = flagSet.Arg(0)
	}
	if rulesPath == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		RulesPath:         rulesPath,
		ProjectPath:       *projectFlag,
		SessionPath:       *sessionFlag,
		WhitelistPath:     *whitelistFlag,
		ValidateOnly:      *validateFlag,
		RollbackOnFailure: *rollbackFlag,
		Parallel:          *parallelFlag,
		MaxParallelism:    *maxParallelFlag,
		ContinueOnFailure: *continueFlag,
		Vars:              vars,
		LogFormat:         logFormat,
		LogLevel:          logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
