// Package celdp implements the deterministic CEL profile used by
// methodology admissibility predicates. Expressions are pure functions
// of the supplied usage context: wall-clock reads, floating point, and
// map-iteration constructs are rejected before compilation so a
// predicate can never produce run-dependent results.
package celdp

import (
	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Issue is one determinism violation found in an expression.
type Issue struct {
	Message  string
	Severity string
}

// ValidationResult reports whether an expression conforms to the
// deterministic profile.
type ValidationResult struct {
	Valid  bool
	Issues []Issue
}

// Validator checks expressions against the deterministic profile.
type Validator struct {
	env *cel.Env
}

// NewValidator builds a validator with a parse-only environment.
func NewValidator() (*Validator, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, err
	}
	return &Validator{env: env}, nil
}

// Validate parses the expression and walks its AST for forbidden
// constructs. A parse failure is returned as an error; profile
// violations come back as issues.
func (v *Validator) Validate(exprSource string) (*ValidationResult, error) {
	parsed, issues := v.env.Parse(exprSource)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	result := &ValidationResult{Valid: true, Issues: []Issue{}}

	expr := parsed.Expr() //nolint:staticcheck // Deprecated but no alternative for AST traversal yet
	walk(expr, &result.Issues)

	if len(result.Issues) > 0 {
		result.Valid = false
	}
	return result, nil
}

func walk(e *exprpb.Expr, issues *[]Issue) {
	if e == nil {
		return
	}

	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		switch k.ConstExpr.ConstantKind.(type) {
		case *exprpb.Constant_DoubleValue:
			*issues = append(*issues, Issue{Message: "floating point literals are forbidden", Severity: "ERROR"})
		}

	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		switch call.Function {
		case "now", "timestamp", "duration":
			*issues = append(*issues, Issue{Message: call.Function + "() is forbidden: predicates must not read the clock", Severity: "ERROR"})
		case "keys", "values":
			*issues = append(*issues, Issue{Message: "map iteration (keys/values) is forbidden: order is not deterministic", Severity: "ERROR"})
		}
		if call.Target != nil {
			walk(call.Target, issues)
		}
		for _, arg := range call.Args {
			walk(arg, issues)
		}

	case *exprpb.Expr_SelectExpr:
		walk(k.SelectExpr.Operand, issues)

	case *exprpb.Expr_IdentExpr:
		// No children.

	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			walk(el, issues)
		}

	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if entry.GetMapKey() != nil {
				walk(entry.GetMapKey(), issues)
			}
			walk(entry.Value, issues)
		}

	case *exprpb.Expr_ComprehensionExpr:
		comp := k.ComprehensionExpr
		walk(comp.IterRange, issues)
		walk(comp.AccuInit, issues)
		walk(comp.LoopCondition, issues)
		walk(comp.LoopStep, issues)
		walk(comp.Result, issues)
	}
}
