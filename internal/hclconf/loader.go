// Package hclconf is the HCL front end for rules configuration: it
// discovers .hcl files, decodes `rule` blocks, and translates them into the
// format-agnostic config model.
package hclconf

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
	"github.com/vk/sessionkit/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL rules loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes the top-level blocks of one rules file.
type fileRoot struct {
	Rules  []*ruleBlock `hcl:"rule,block"`
	Remain hcl.Body     `hcl:",remain"`
}

// ruleBlock is the raw HCL shape of `rule "<type>" "<name>" { ... }`.
type ruleBlock struct {
	Type              string          `hcl:"type,label"`
	Name              string          `hcl:"name,label"`
	DependsOn         []string        `hcl:"depends_on,optional"`
	ContinueOnFailure bool            `hcl:"continue_on_failure,optional"`
	Files             []*fileBlock    `hcl:"file,block"`
	Commands          []*commandBlock `hcl:"command,block"`
	Template          *templateBlock  `hcl:"template,block"`
}

type fileBlock struct {
	Source      string `hcl:"source"`
	Destination string `hcl:"destination,optional"`
	Strategy    string `hcl:"strategy,optional"`
	// Permissions is an octal string like "0600".
	Permissions string `hcl:"permissions,optional"`
	Encrypt     bool   `hcl:"encrypt,optional"`
	Required    *bool  `hcl:"required,optional"`
}

type commandBlock struct {
	Argv        []string          `hcl:"argv"`
	Description string            `hcl:"description,optional"`
	Timeout     string            `hcl:"timeout,optional"`
	Environment map[string]string `hcl:"environment,optional"`
	Condition   string            `hcl:"condition,optional"`
	// ConditionPath is checked by the file_not_exists condition.
	ConditionPath string `hcl:"condition_path,optional"`
	IgnoreFailure bool   `hcl:"ignore_failure,optional"`
}

type templateBlock struct {
	Source      string `hcl:"source"`
	Destination string `hcl:"destination"`
	Process     *bool  `hcl:"process,optional"`
}

// Load discovers and parses every .hcl file under the given paths and
// translates the rule blocks into the config model, preserving declaration
// order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL rules loader started.", "path_count", len(paths))

	files, err := l.findRuleFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered rules files.", "count", len(files))

	model := &config.Model{}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse rules file %s: %s", file, diags.Error())
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode rules file %s: %s", file, diags.Error())
		}

		for _, block := range root.Rules {
			spec, err := l.translateRule(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Rules = append(model.Rules, spec)
		}
	}

	logger.Debug("HCL loading complete.", "rules", len(model.Rules))
	return model, nil
}

// findRuleFiles flattens the given paths into the list of .hcl files they
// name or contain.
func (l *Loader) findRuleFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing rules path %s: %w", path, err)
		}

		var found []string
		if info.IsDir() {
			found, err = fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
		} else {
			found = []string{path}
		}
		for _, f := range found {
			if _, dup := seen[f]; !dup {
				all = append(all, f)
				seen[f] = struct{}{}
			}
		}
	}
	return all, nil
}

// translateRule converts one decoded block into an immutable RuleSpec with
// defaults applied.
func (l *Loader) translateRule(block *ruleBlock) (*config.RuleSpec, error) {
	spec := &config.RuleSpec{
		Name:              block.Name,
		Type:              config.RuleType(block.Type),
		Dependencies:      block.DependsOn,
		ContinueOnFailure: block.ContinueOnFailure,
	}

	for _, f := range block.Files {
		mode := config.DefaultFileMode
		if f.Permissions != "" {
			parsed, err := strconv.ParseUint(f.Permissions, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("rule '%s': invalid permissions %q: %w", block.Name, f.Permissions, err)
			}
			mode = os.FileMode(parsed)
		}
		required := true
		if f.Required != nil {
			required = *f.Required
		}
		spec.Files = append(spec.Files, &config.CopyFileSpec{
			Source:      f.Source,
			Destination: f.Destination,
			Strategy:    config.CopyStrategy(f.Strategy),
			Permissions: mode,
			Encrypt:     f.Encrypt,
			Required:    required,
		})
	}

	for _, c := range block.Commands {
		var timeout time.Duration
		if c.Timeout != "" {
			parsed, err := time.ParseDuration(c.Timeout)
			if err != nil {
				return nil, fmt.Errorf("rule '%s': invalid timeout %q: %w", block.Name, c.Timeout, err)
			}
			timeout = parsed
		}
		spec.Commands = append(spec.Commands, &config.CommandSpec{
			Command:       c.Argv,
			Description:   c.Description,
			Timeout:       timeout,
			Environment:   c.Environment,
			Condition:     config.Condition(c.Condition),
			ConditionPath: c.ConditionPath,
			IgnoreFailure: c.IgnoreFailure,
		})
	}

	if block.Template != nil {
		process := true
		if block.Template.Process != nil {
			process = *block.Template.Process
		}
		spec.Template = &config.TemplateSpec{
			Source:      block.Template.Source,
			Destination: block.Template.Destination,
			Process:     process,
		}
	}

	spec.Normalize()
	return spec, nil
}

var _ config.Loader = (*Loader)(nil)
