// Package query filters plugin records with CEL expressions, e.g.
//
//	experimental && name.startsWith("Pg")
//	qgis_maximum_version == "3.99"
//
// Expressions see the variables name, version, experimental,
// qgis_minimum_version and qgis_maximum_version and must evaluate to a bool.
package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// Variable names available in expressions.
const (
	VarName               = "name"
	VarVersion            = "version"
	VarExperimental       = "experimental"
	VarQGISMinimumVersion = "qgis_minimum_version"
	VarQGISMaximumVersion = "qgis_maximum_version"
)

var pluginEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		cel.Variable(VarName, cel.StringType),
		cel.Variable(VarVersion, cel.StringType),
		cel.Variable(VarExperimental, cel.BoolType),
		cel.Variable(VarQGISMinimumVersion, cel.StringType),
		cel.Variable(VarQGISMaximumVersion, cel.StringType),
	)
})

// Parse compiles expr into a program. Syntax errors and references to
// unknown variables are reported here, not during evaluation.
func Parse(expr string) (cel.Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("empty filter expression")
	}
	env, err := pluginEnv()
	if err != nil {
		return nil, fmt.Errorf("cannot create CEL environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	return prg, nil
}
