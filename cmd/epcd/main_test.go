package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/pkg/epclog"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

func TestRegisterLogHistoryReturnsRecentLines(t *testing.T) {
	ring := epclog.NewRing(10)
	reg := registry.New()
	registerLogHistory(reg, ring)

	ring.Write([]byte("line one"))
	ring.Write([]byte("line two"))

	result, appErr := reg.Invoke(context.Background(), "epcd-log-history", nil)
	require.Nil(t, appErr)

	items, ok := result.Slice()
	require.True(t, ok)
	require.Len(t, items, 2)

	first, _ := items[0].Text()
	second, _ := items[1].Text()
	assert.Equal(t, "line one", first)
	assert.Equal(t, "line two", second)
}

func TestLevelFromStringDefaultsToInfo(t *testing.T) {
	assert.Equal(t, epclog.INFO, levelFromString("bogus"))
	assert.Equal(t, epclog.DEBUG, levelFromString("debug"))
}
