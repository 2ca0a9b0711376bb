package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnReadsPortLine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Spawn(ctx, "sh", "-c", "echo 4242; sleep 2")
	require.NoError(t, err)
	assert.Equal(t, 4242, p.Port)

	require.NoError(t, p.Stop(100*time.Millisecond))
}

func TestSpawnMalformedPortLine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Spawn(ctx, "sh", "-c", "echo not-a-port")
	require.Error(t, err)
}
