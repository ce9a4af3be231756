package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_Evaluate_Operators(t *testing.T) {
	evaluator := NewEvaluator()

	fields := map[string]any{
		"status":   "in_progress",
		"priority": 3,
		"estimate": 2.5,
		"tags":     []string{"backend", "urgent"},
		"title":    "Fix login timeout",
		"archived": false,
		"notes":    "",
	}

	testCases := []struct {
		name string
		cond Condition
		want bool
	}{
		{
			name: "equals text",
			cond: Condition{Field: "status", Operator: OpEquals, Value: "in_progress"},
			want: true,
		},
		{
			name: "equals number across int and float",
			cond: Condition{Field: "priority", Operator: OpEquals, Value: 3.0},
			want: true,
		},
		{
			name: "not equals",
			cond: Condition{Field: "status", Operator: OpNotEquals, Value: "done"},
			want: true,
		},
		{
			name: "greater than",
			cond: Condition{Field: "priority", Operator: OpGreaterThan, Value: 2},
			want: true,
		},
		{
			name: "greater than fails on non-number",
			cond: Condition{Field: "status", Operator: OpGreaterThan, Value: 2},
			want: false,
		},
		{
			name: "less than",
			cond: Condition{Field: "estimate", Operator: OpLessThan, Value: 3},
			want: true,
		},
		{
			name: "contains list membership",
			cond: Condition{Field: "tags", Operator: OpContains, Value: "urgent"},
			want: true,
		},
		{
			name: "contains substring",
			cond: Condition{Field: "title", Operator: OpContains, Value: "login"},
			want: true,
		},
		{
			name: "not contains",
			cond: Condition{Field: "tags", Operator: OpNotContains, Value: "frontend"},
			want: true,
		},
		{
			name: "in list",
			cond: Condition{Field: "status", Operator: OpIn, Value: []string{"todo", "in_progress"}},
			want: true,
		},
		{
			name: "not in list",
			cond: Condition{Field: "status", Operator: OpNotIn, Value: []string{"done", "cancelled"}},
			want: true,
		},
		{
			name: "is empty on empty string",
			cond: Condition{Field: "notes", Operator: OpIsEmpty},
			want: true,
		},
		{
			name: "is empty on missing field",
			cond: Condition{Field: "missing", Operator: OpIsEmpty},
			want: true,
		},
		{
			name: "is not empty",
			cond: Condition{Field: "status", Operator: OpIsNotEmpty},
			want: true,
		},
		{
			name: "bool equals",
			cond: Condition{Field: "archived", Operator: OpEquals, Value: false},
			want: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(tc.cond, fields)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluator_Evaluate_UnknownOperator(t *testing.T) {
	evaluator := NewEvaluator()

	_, err := evaluator.Evaluate(Condition{Field: "x", Operator: "between"}, map[string]any{})
	require.ErrorIs(t, err, ErrUnknownOperator)
}

func TestEvaluator_EvaluateAll(t *testing.T) {
	evaluator := NewEvaluator()

	fields := map[string]any{"status": "done", "priority": 5}

	both := []Condition{
		{Field: "status", Operator: OpEquals, Value: "done"},
		{Field: "priority", Operator: OpGreaterThan, Value: 3},
	}

	oneOfTwo := []Condition{
		{Field: "status", Operator: OpEquals, Value: "todo"},
		{Field: "priority", Operator: OpGreaterThan, Value: 3},
	}

	t.Run("empty list always matches", func(t *testing.T) {
		ok, err := evaluator.EvaluateAll(nil, LogicAnd, fields)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("and requires all", func(t *testing.T) {
		ok, err := evaluator.EvaluateAll(both, LogicAnd, fields)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = evaluator.EvaluateAll(oneOfTwo, LogicAnd, fields)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty logic defaults to and", func(t *testing.T) {
		ok, err := evaluator.EvaluateAll(oneOfTwo, "", fields)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("or requires one", func(t *testing.T) {
		ok, err := evaluator.EvaluateAll(oneOfTwo, LogicOr, fields)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown logic", func(t *testing.T) {
		_, err := evaluator.EvaluateAll(both, "XOR", fields)
		require.ErrorIs(t, err, ErrUnknownLogic)
	})
}

func TestEvaluator_Expression(t *testing.T) {
	evaluator := NewEvaluator()

	fields := map[string]any{"priority": 4, "status": "in_progress"}

	ok, err := evaluator.Evaluate(Condition{
		Operator: OpExpression,
		Value:    `priority > 3 && status != "done"`,
	}, fields)
	require.NoError(t, err)
	assert.True(t, ok)

	// Compiled programs are cached; a second run with different fields
	// must still evaluate correctly.
	ok, err = evaluator.Evaluate(Condition{
		Operator: OpExpression,
		Value:    `priority > 3 && status != "done"`,
	}, map[string]any{"priority": 1, "status": "done"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = evaluator.Evaluate(Condition{Operator: OpExpression, Value: 42}, fields)
	require.Error(t, err)

	_, err = evaluator.Evaluate(Condition{Operator: OpExpression, Value: "priority +"}, fields)
	require.Error(t, err)
}
