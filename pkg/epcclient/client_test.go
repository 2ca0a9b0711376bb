package epcclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/internal/session"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

func startEchoServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	reg := registry.New()
	reg.Register("echo", func(ctx context.Context, args []sexp.Value) (sexp.Value, error) {
		return sexp.List(args...), nil
	}, "args", "echoes its arguments")

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			sess := session.New(conn, reg)
			sess.Start()
		}
	}()

	return ln.Addr().String()
}

func TestDialAndCall(t *testing.T) {
	addr := startEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer conn.Close()

	result, err := conn.Call(ctx, "echo", []sexp.Value{sexp.Str("hi")})
	require.NoError(t, err)

	items, ok := result.Slice()
	require.True(t, ok)
	require.Len(t, items, 1)
	s, ok := items[0].Text()
	require.True(t, ok)
	assert.Equal(t, "hi", s)
}

func TestDialRetriesUntilListenerExists(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	probe.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)
		l2, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer l2.Close()
		conn, err := l2.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := Dial(ctx, addr, registry.New())
	require.NoError(t, err)
	conn.Close()
}

func TestParseReplLine(t *testing.T) {
	method, args, err := parseReplLine(`add 2 3`)
	require.NoError(t, err)
	assert.Equal(t, "add", method)
	require.Len(t, args, 2)

	_, _, err = parseReplLine("")
	assert.Error(t, err)
}
