// Package tmpl implements the template collaborator: HCL template syntax
// rendered against cty variables. The engine is instance-scoped; concurrent
// workers render through their own evaluation contexts and never touch
// process-wide state.
package tmpl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Engine parses and renders `${...}` interpolation templates.
type Engine struct {
	// funcs would hold custom template functions; none are registered by
	// default.
	funcs map[string]struct{}
}

// NewEngine returns a fresh engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// ValidateSyntax parses the template and reports syntax problems without
// evaluating anything.
func (e *Engine) ValidateSyntax(content string) error {
	_, diags := hclsyntax.ParseTemplate([]byte(content), "template", hcl.InitialPos)
	if diags.HasErrors() {
		return fmt.Errorf("template syntax error: %s", diags.Error())
	}
	return nil
}

// Render evaluates the template with the provided variables and returns the
// resulting string. Unknown variable references and type mismatches surface
// as errors.
func (e *Engine) Render(content string, variables map[string]cty.Value) (string, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(content), "template", hcl.InitialPos)
	if diags.HasErrors() {
		return "", fmt.Errorf("template syntax error: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{Variables: variables}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("template render error: %s", diags.Error())
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("template produced a non-string value: %w", err)
	}
	if str.IsNull() {
		return "", fmt.Errorf("template produced a null value")
	}
	return str.AsString(), nil
}
