package celdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

func TestValidatorRejectsNondeterminism(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name       string
		expr       string
		wantIssues int
	}{
		{
			name:       "clean boolean expression",
			expr:       `usage.materiality == "MATERIAL" && tier.id == "MANAGEMENT_REP"`,
			wantIssues: 0,
		},
		{
			name:       "size is allowed",
			expr:       `["a", "b"].size() > 0`,
			wantIssues: 0,
		},
		{
			name:       "integer literals are allowed",
			expr:       `1 + 2 == 3`,
			wantIssues: 0,
		},
		{
			name:       "float literal is banned",
			expr:       `0.5 < 1.0`,
			wantIssues: 2,
		},
		{
			name:       "now is banned",
			expr:       `now() == now()`,
			wantIssues: 2,
		},
		{
			name:       "timestamp is banned",
			expr:       `timestamp("2024-01-01T00:00:00Z") == timestamp("2024-01-01T00:00:00Z")`,
			wantIssues: 2,
		},
		{
			name:       "map iteration is banned",
			expr:       `usage.keys() == usage.keys()`,
			wantIssues: 2,
		},
		{
			name:       "float buried in list literal",
			expr:       `[1, 2.5].size() == 2`,
			wantIssues: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := v.Validate(tc.expr)
			require.NoError(t, err)
			assert.Len(t, result.Issues, tc.wantIssues)
			assert.Equal(t, tc.wantIssues == 0, result.Valid)
		})
	}
}

func TestValidatorParseFailure(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	_, err = v.Validate(`usage.ic_bound &&`)
	require.Error(t, err)
}

func TestCompileRejectsProfileViolations(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantStage string
	}{
		{
			name:      "empty expression",
			expr:      "   ",
			wantStage: "validation",
		},
		{
			name:      "clock read",
			expr:      `now() != now()`,
			wantStage: "validation",
		},
		{
			name:      "undeclared variable",
			expr:      `claim.id == "x"`,
			wantStage: "compile",
		},
		{
			name:      "non-boolean result",
			expr:      `1 + 2`,
			wantStage: "compile",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eval.Compile(tc.expr)
			require.Error(t, err)
			var perr *PredicateError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.wantStage, perr.Stage)
			assert.True(t, contracts.IsFailClosed(err))
		})
	}
}

func TestPredicateEval(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	pred, err := eval.Compile(`usage.ic_bound && usage.sole_support && tier.id == "MANAGEMENT_REP"`)
	require.NoError(t, err)

	tests := []struct {
		name  string
		usage map[string]any
		tier  map[string]any
		want  bool
	}{
		{
			name:  "ic-bound sole management rep fires",
			usage: map[string]any{"ic_bound": true, "sole_support": true},
			tier:  map[string]any{"id": "MANAGEMENT_REP"},
			want:  true,
		},
		{
			name:  "corroborated claim does not fire",
			usage: map[string]any{"ic_bound": true, "sole_support": false},
			tier:  map[string]any{"id": "MANAGEMENT_REP"},
			want:  false,
		},
		{
			name:  "other tier does not fire",
			usage: map[string]any{"ic_bound": true, "sole_support": true},
			tier:  map[string]any{"id": "PRIMARY_AUDITED"},
			want:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pred.Eval(tc.usage, tc.tier)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPredicateEvalMissingFieldFailsClosed(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	pred, err := eval.Compile(`usage.ic_bound == true`)
	require.NoError(t, err)

	_, err = pred.Eval(map[string]any{"materiality": "MATERIAL"}, nil)
	require.Error(t, err)
	var perr *PredicateError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "eval", perr.Stage)
	assert.True(t, contracts.IsFailClosed(err))
}

func TestPredicateIsReusable(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	pred, err := eval.Compile(`tier.gradeable == false`)
	require.NoError(t, err)
	assert.Equal(t, `tier.gradeable == false`, pred.Expr())

	for i := 0; i < 3; i++ {
		got, err := pred.Eval(nil, map[string]any{"gradeable": false})
		require.NoError(t, err)
		assert.True(t, got)
	}
}
