// Package epcclient is a thin convenience wrapper over internal/session
// for processes that only ever dial out as a client, plus an interactive
// REPL, the way the reference codebase's pkg/miniclient wraps a raw
// connection for minimega's own CLI front-ends.
package epcclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/internal/session"
	"github.com/sandia-minimega/epc/pkg/epclog"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

// Conn is a dialed EPC peer connection. It owns a *session.Session and
// exposes a slightly friendlier surface for one-shot callers and the
// Attach REPL; concurrent callers needing the full session API (Notify,
// QueryMethods, Go/async) should use Session directly.
type Conn struct {
	addr    string
	session *session.Session
}

// Dial connects to an EPC server at addr ("host:port"), retrying after any
// dial failure with exponential backoff (10ms doubling, capped at 1s) the
// way the reference codebase's miniclient Dial retries a not-yet-listening
// local socket, until ctx is done.
func Dial(ctx context.Context, addr string, reg *registry.Registry) (*Conn, error) {
	if reg == nil {
		reg = registry.New()
	}

	var conn net.Conn
	backoff := 10 * time.Millisecond

	for {
		var dialer net.Dialer
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn = c
			break
		}

		var netErr net.Error
		if ne, ok := err.(net.Error); ok {
			netErr = ne
		}
		if netErr == nil || !netErr.Timeout() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sess := session.New(conn, reg)
	sess.Start()

	epclog.Debug("epcclient: connected to %s (session %s)", addr, sess.ID())

	return &Conn{addr: addr, session: sess}, nil
}

// Session returns the underlying session, for callers that need Notify,
// QueryMethods, or async Go calls.
func (c *Conn) Session() *session.Session { return c.session }

// Call is a convenience synchronous call.
func (c *Conn) Call(ctx context.Context, method string, args []sexp.Value) (sexp.Value, error) {
	return c.session.Call(ctx, method, args)
}

// Close tears down the connection.
func (c *Conn) Close() error {
	return c.session.Close()
}

// Attach starts an interactive REPL against this connection: each line of
// input is parsed as `method arg1 arg2 ...` where each argN is parsed as
// an S-expression literal, the way pkg/_miniclient_src/client.go's Attach
// reads a line, ships it to the server, and prints the response.
func (c *Conn) Attach() error {
	fmt.Printf("connected to %s\n", c.addr)
	fmt.Println("enter `method arg1 arg2 ...`; ^d or `quit` to exit")
	fmt.Println()

	input := liner.NewLiner()
	defer input.Close()

	input.SetCtrlCAborts(true)

	prompt := fmt.Sprintf("epc:%s$ ", c.addr)

	for {
		line, err := input.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		if line == "quit" || line == "disconnect" {
			break
		}

		method, args, err := parseReplLine(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result, err := c.session.Call(ctx, method, args)
		cancel()

		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(sexp.Print(result))
	}

	return nil
}

// parseReplLine splits line into a leading method name and a sequence of
// S-expression-literal arguments: `add 2 3` -> ("add", [Int64(2),
// Int64(3)]). Arguments containing spaces must be quoted like a normal
// S-expression string literal.
func parseReplLine(line string) (string, []sexp.Value, error) {
	wrapped := "(" + line + ")"
	v, err := sexp.Parse(wrapped)
	if err != nil {
		return "", nil, err
	}

	items, ok := v.Slice()
	if !ok || len(items) == 0 {
		return "", nil, fmt.Errorf("empty input")
	}

	method, ok := items[0].Symbol()
	if !ok {
		return "", nil, fmt.Errorf("method name must be a symbol")
	}
	return method, items[1:], nil
}
