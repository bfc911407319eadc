package query

import (
	"fmt"

	"github.com/dnswlt/qgisrepo/internal/catalog"
	"github.com/dnswlt/qgisrepo/internal/dispatch"
	"github.com/google/cel-go/cel"
)

// Evaluator holds a compiled filter expression and matches it against plugin records.
type Evaluator struct {
	expr string
	prg  cel.Program
	// Defaults for records that do not declare their QGIS range.
	defaults dispatch.Config
}

// NewEvaluator compiles expr. Missing QGIS bounds of records are taken from defaults.
func NewEvaluator(expr string, defaults dispatch.Config) (*Evaluator, error) {
	prg, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Evaluator{expr: expr, prg: prg, defaults: defaults}, nil
}

func (e *Evaluator) activation(p *catalog.Plugin) map[string]any {
	minVersion, maxVersion := dispatch.VersionsForPlugin(catalog.New(p), e.defaults)
	return map[string]any{
		VarName:               p.Name,
		VarVersion:            p.Version,
		VarExperimental:       p.Experimental,
		VarQGISMinimumVersion: minVersion,
		VarQGISMaximumVersion: maxVersion,
	}
}

// Matches evaluates the expression for p.
func (e *Evaluator) Matches(p *catalog.Plugin) (bool, error) {
	out, _, err := e.prg.Eval(e.activation(p))
	if err != nil {
		return false, fmt.Errorf("filter %q failed for %s: %w", e.expr, p, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", e.expr, out.Value())
	}
	return b, nil
}

// Filter returns the records of c that match, in catalog order.
func (e *Evaluator) Filter(c *catalog.Catalog) ([]*catalog.Plugin, error) {
	var result []*catalog.Plugin
	for _, p := range c.Plugins {
		ok, err := e.Matches(p)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, p)
		}
	}
	return result, nil
}
