// Package launcher spawns and supervises a managed epcd child process for
// cmd/epcctl's "spawn" subcommand. It is explicitly outside the core
// session/registry/codec layer -- the core only ever accepts an already-
// established io.ReadWriteCloser.
package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sandia-minimega/epc/pkg/epclog"
)

// Process is a spawned epcd child. Its Port is set by Spawn from the
// child's port line.
type Process struct {
	cmd  *exec.Cmd
	Port int

	mu      sync.Mutex
	killed  bool
	waitErr error
}

// Spawn starts binary with args as a managed server process and reads its
// port-line side channel (a decimal port number followed by a newline,
// written to the child's stdout before it starts accepting connections).
// Grounded on the reference codebase's own pattern of starting a
// long-lived external process with exec.Command and keeping the *exec.Cmd
// around for a later Kill/Wait (minirouter's birdRestart), generalized
// here to also capture one line of startup output over a pipe instead of
// firing the process and forgetting it.
func Spawn(ctx context.Context, binary string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "launcher: stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "launcher: start %s", binary)
	}

	epclog.Info("launcher: started %s (pid %d)", binary, cmd.Process.Pid)

	port, err := readPortLine(stdout)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, errors.Wrap(err, "launcher: reading port line")
	}

	p := &Process{cmd: cmd, Port: port}

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		if err != nil && !p.wasKilled() {
			epclog.Error("launcher: %s exited: %v", binary, err)
		}
	}()

	return p, nil
}

func (p *Process) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Stop sends the child an interrupt and then kills it. grace bounds only how
// long Stop waits for the interrupt to be sent; Stop does not wait for the
// child to exit before killing it, nor after.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.cmd.Process.Signal(os.Interrupt)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
	}

	return p.cmd.Process.Kill()
}

func readPortLine(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("child closed stdout before writing a port line")
	}

	line := strings.TrimSpace(scanner.Text())
	port, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("malformed port line %q: %w", line, err)
	}
	return port, nil
}
