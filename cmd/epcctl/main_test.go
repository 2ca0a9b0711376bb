package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandia-minimega/epc/internal/registry"
)

func TestParseLiteralArgs(t *testing.T) {
	vals, err := parseLiteralArgs([]string{"2", `"hello"`, "sym"})
	require.NoError(t, err)
	require.Len(t, vals, 3)

	n, ok := vals[0].Integer()
	require.True(t, ok)
	assert.Equal(t, int64(2), n)

	s, ok := vals[1].Text()
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	sym, ok := vals[2].Symbol()
	require.True(t, ok)
	assert.Equal(t, "sym", sym)
}

func TestParseLiteralArgsError(t *testing.T) {
	_, err := parseLiteralArgs([]string{"(unterminated"})
	assert.Error(t, err)
}

func TestSameMethodList(t *testing.T) {
	a := []registry.MethodInfo{{Name: "add", ArgSpec: "a b", Doc: "sum"}}
	b := []registry.MethodInfo{{Name: "add", ArgSpec: "a b", Doc: "sum"}}
	c := []registry.MethodInfo{{Name: "add", ArgSpec: "a b", Doc: "different"}}

	assert.True(t, sameMethodList(a, b))
	assert.False(t, sameMethodList(a, c))
	assert.False(t, sameMethodList(a, nil))
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, 0, levelFromString("debug"))
	assert.NotEqual(t, levelFromString("debug"), levelFromString("warn"))
}
