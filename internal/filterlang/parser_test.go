package filterlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimplePredicate(t *testing.T) {
	n, err := Parse(`@"attribute1": test`)
	require.NoError(t, err)
	require.Equal(t, NodePredicate, n.Kind)
	assert.Equal(t, "attribute1", n.Predicate.Name)
	assert.False(t, n.Predicate.Inherent)
	assert.Equal(t, ExprWildcard, n.Predicate.Value.Kind)
	assert.Equal(t, "test", n.Predicate.Value.Literal)
}

func TestParseImplicitAnd(t *testing.T) {
	n, err := Parse(`#level: >=WARN @"attribute1": test @"attribute2": A`)
	require.NoError(t, err)
	require.Equal(t, NodeAnd, n.Kind)
	require.Len(t, n.Children, 3)
	assert.True(t, n.Children[0].Predicate.Inherent)
	assert.Equal(t, PropertyLevel, n.Children[0].Predicate.Property)
	assert.Equal(t, OpGte, n.Children[0].Predicate.Value.CompareOp)
}

func TestParseOrAndGrouping(t *testing.T) {
	n, err := Parse(`@a: x OR (@b: y AND @c: z)`)
	require.NoError(t, err)
	require.Equal(t, NodeOr, n.Kind)
	require.Len(t, n.Children, 2)
	assert.Equal(t, NodeAnd, n.Children[1].Kind)
}

func TestParseNegation(t *testing.T) {
	n, err := Parse(`!@a: x`)
	require.NoError(t, err)
	require.Equal(t, NodeNot, n.Kind)
	assert.Equal(t, "a", n.Inner.Predicate.Name)
}

func TestParseRegex(t *testing.T) {
	n, err := Parse(`@name: /^foo.*/`)
	require.NoError(t, err)
	assert.Equal(t, ExprRegex, n.Predicate.Value.Kind)
	assert.Equal(t, "^foo.*", n.Predicate.Value.Literal)
}

func TestParseEmptyIsMatchAll(t *testing.T) {
	n, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, NodeAnd, n.Kind)
	assert.Empty(t, n.Children)
}

func TestValidateLevelRejectsBadOperator(t *testing.T) {
	n, err := Parse(`#level: <WARN`)
	require.NoError(t, err)
	err = Validate(n)
	assert.Error(t, err)
}

func TestValidateLevelAcceptsKnownSeverity(t *testing.T) {
	n, err := Parse(`#level: >=WARN`)
	require.NoError(t, err)
	assert.NoError(t, Validate(n))
}

func TestSimplifyDoubleNegation(t *testing.T) {
	inner := Pred(Predicate{Name: "a", Value: ValueExpr{Kind: ExprWildcard, Literal: "x"}})
	n := Not(Not(inner))
	simplified := Simplify(n)
	assert.Equal(t, NodePredicate, simplified.Kind)
}
