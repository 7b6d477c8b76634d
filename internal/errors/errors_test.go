package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_WrapsAndCategorizes(t *testing.T) {
	base := stderrors.New("boom")
	err := New(base).
		Component("processing").
		Category(CategoryNode).
		Context("node_id", "gain").
		Build()

	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "processing", err.Component)
	assert.Equal(t, CategoryNode, err.Category)
	assert.Equal(t, "gain", err.GetContext()["node_id"])
	assert.True(t, stderrors.Is(err, base), "wrapped error must unwrap")
}

func TestBuilder_NilErrorIsSafe(t *testing.T) {
	err := New(nil).Category(CategoryValidation).Build()
	require.NotNil(t, err)
	assert.NotEmpty(t, err.Error())
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf("bad value %d", 42).Build()
	assert.Equal(t, "bad value 42", err.Error())
	assert.Equal(t, CategoryGeneric, err.Category, "category defaults to generic")
}

func TestIs_MatchesByCategory(t *testing.T) {
	a := Newf("first").Category(CategoryTimeout).Build()
	b := Newf("second").Category(CategoryTimeout).Build()
	c := Newf("third").Category(CategoryNetwork).Build()

	assert.True(t, stderrors.Is(a, b), "same category matches")
	assert.False(t, stderrors.Is(a, c), "different category does not")
}

func TestGetContext_ReturnsCopy(t *testing.T) {
	err := Newf("x").Context("k", "v").Build()
	ctx := err.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", err.GetContext()["k"])
}
