package epclog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingDumpOrder(t *testing.T) {
	r := NewRing(3)
	fmt.Fprint(r, "one")
	fmt.Fprint(r, "two")
	fmt.Fprint(r, "three")

	assert.Equal(t, []string{"one", "two", "three"}, r.Dump())
}

func TestRingDropsOldest(t *testing.T) {
	r := NewRing(2)
	fmt.Fprint(r, "one")
	fmt.Fprint(r, "two")
	fmt.Fprint(r, "three")

	assert.Equal(t, []string{"two", "three"}, r.Dump())
}

func TestRingImplementsWriter(t *testing.T) {
	r := NewRing(1)
	n, err := r.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"hello"}, r.Dump())
}
