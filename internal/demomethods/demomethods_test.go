package demomethods

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

func TestRegisterEcho(t *testing.T) {
	reg := registry.New()
	Register(reg)

	result, appErr := reg.Invoke(context.Background(), "echo", []sexp.Value{sexp.Str("hi")})
	require.Nil(t, appErr)

	items, ok := result.Slice()
	require.True(t, ok)
	require.Len(t, items, 1)
	s, ok := items[0].Text()
	require.True(t, ok)
	assert.Equal(t, "hi", s)
}

func TestRegisterAdd(t *testing.T) {
	reg := registry.New()
	Register(reg)

	result, appErr := reg.Invoke(context.Background(), "add", []sexp.Value{sexp.Int64(2), sexp.Int64(3)})
	require.Nil(t, appErr)

	n, ok := result.Integer()
	require.True(t, ok)
	assert.Equal(t, int64(5), n)
}

func TestListIncludesBoth(t *testing.T) {
	reg := registry.New()
	Register(reg)

	names := map[string]bool{}
	for _, m := range reg.List() {
		names[m.Name] = true
	}
	assert.True(t, names["echo"])
	assert.True(t, names["add"])
}
