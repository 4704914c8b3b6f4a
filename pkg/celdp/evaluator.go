package celdp

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// PredicateError is a typed failure from compiling or evaluating an
// admissibility predicate. Callers treat it as fail-closed.
type PredicateError struct {
	Expr   string
	Stage  string
	Reason string
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("celdp: %s failed for predicate %q: %s", e.Stage, e.Expr, e.Reason)
}

// FailClosed marks predicate errors as blocking.
func (e *PredicateError) FailClosed() bool { return true }

// Evaluator compiles admissibility predicates against a fixed
// environment. Predicates see two variables:
//
//	usage — the claim usage context (materiality, ic_bound, sole_support, ...)
//	tier  — the evidence tier under evaluation (id, ceiling, gradeable, ...)
type Evaluator struct {
	env       *cel.Env
	validator *Validator
}

// NewEvaluator builds the evaluation environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("usage", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("tier", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("celdp: environment setup: %w", err)
	}
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("celdp: validator setup: %w", err)
	}
	return &Evaluator{env: env, validator: validator}, nil
}

// Predicate is a validated, compiled admissibility expression. It is
// safe for concurrent evaluation.
type Predicate struct {
	expr string
	prg  cel.Program
}

// Expr returns the source expression.
func (p *Predicate) Expr() string { return p.expr }

// Compile validates the expression against the deterministic profile,
// type-checks it, and builds an evaluable program. The result type
// must be boolean.
func (e *Evaluator) Compile(exprSource string) (*Predicate, error) {
	if strings.TrimSpace(exprSource) == "" {
		return nil, &PredicateError{Expr: exprSource, Stage: "validation", Reason: "empty expression"}
	}

	vr, err := e.validator.Validate(exprSource)
	if err != nil {
		return nil, &PredicateError{Expr: exprSource, Stage: "parse", Reason: err.Error()}
	}
	if !vr.Valid {
		msgs := make([]string, 0, len(vr.Issues))
		for _, issue := range vr.Issues {
			msgs = append(msgs, issue.Message)
		}
		return nil, &PredicateError{Expr: exprSource, Stage: "validation", Reason: strings.Join(msgs, "; ")}
	}

	ast, issues := e.env.Compile(exprSource)
	if issues != nil && issues.Err() != nil {
		return nil, &PredicateError{Expr: exprSource, Stage: "compile", Reason: issues.Err().Error()}
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, &PredicateError{Expr: exprSource, Stage: "compile", Reason: fmt.Sprintf("predicate must evaluate to bool, got %s", ast.OutputType())}
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, &PredicateError{Expr: exprSource, Stage: "program", Reason: err.Error()}
	}
	return &Predicate{expr: exprSource, prg: prg}, nil
}

// Eval runs the predicate over the given usage and tier bindings.
// Either map may be nil; predicates touching absent keys fail, which
// callers surface as a blocking conflict.
func (p *Predicate) Eval(usage, tier map[string]any) (bool, error) {
	if usage == nil {
		usage = map[string]any{}
	}
	if tier == nil {
		tier = map[string]any{}
	}
	out, _, err := p.prg.Eval(map[string]any{
		"usage": usage,
		"tier":  tier,
	})
	if err != nil {
		return false, &PredicateError{Expr: p.expr, Stage: "eval", Reason: err.Error()}
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, &PredicateError{Expr: p.expr, Stage: "eval", Reason: fmt.Sprintf("predicate returned %T, want bool", out.Value())}
	}
	return b, nil
}
