// Command epcctl is a small interactive/one-shot EPC client: dial a peer,
// invoke a method with argv-supplied S-expression-literal arguments, list
// a peer's registered methods, or spawn and attach to a managed epcd
// child process.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandia-minimega/epc/internal/launcher"
	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/pkg/epcclient"
	"github.com/sandia-minimega/epc/pkg/epclog"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

var (
	addr    string
	timeout time.Duration
	watch   time.Duration
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "epcctl",
	Short:         "EPC client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		epclog.AddLogger("stderr", os.Stderr, levelFromString(logLevel), true)
	},
}

var callCmd = &cobra.Command{
	Use:   "call METHOD [ARG...]",
	Short: "call a method on the peer and print its result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCall,
}

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "list the peer's registered methods",
	Args:  cobra.NoArgs,
	RunE:  runMethods,
}

var spawnCmd = &cobra.Command{
	Use:   "spawn BINARY [ARG...]",
	Short: "start a managed epcd child process and attach an interactive session to it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSpawn,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:4000", "EPC server address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "per-call timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	methodsCmd.Flags().DurationVar(&watch, "watch", 0, "if nonzero, re-query on this interval and print only when the method list changes")

	rootCmd.AddCommand(callCmd, methodsCmd, spawnCmd)
}

func levelFromString(s string) int {
	switch s {
	case "debug":
		return epclog.DEBUG
	case "info":
		return epclog.INFO
	case "error":
		return epclog.ERROR
	default:
		return epclog.WARN
	}
}

func parseLiteralArgs(raw []string) ([]sexp.Value, error) {
	out := make([]sexp.Value, 0, len(raw))
	for _, a := range raw {
		v, err := sexp.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	method := args[0]
	callArgs, err := parseLiteralArgs(args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := epcclient.Dial(ctx, addr, registry.New())
	if err != nil {
		return err
	}
	defer conn.Close()

	result, err := conn.Call(ctx, method, callArgs)
	if err != nil {
		return err
	}

	fmt.Println(sexp.Print(result))
	return nil
}

func runMethods(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	conn, err := epcclient.Dial(ctx, addr, registry.New())
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	var cached []registry.MethodInfo
	for {
		qctx, qcancel := context.WithTimeout(context.Background(), timeout)
		methods, err := conn.Session().QueryMethods(qctx)
		qcancel()
		if err != nil {
			return err
		}

		if watch == 0 || !sameMethodList(cached, methods) {
			printMethods(methods)
			cached = methods
		}

		if watch == 0 {
			return nil
		}
		time.Sleep(watch)
	}
}

func printMethods(methods []registry.MethodInfo) {
	for _, m := range methods {
		fmt.Printf("%-20s %-20s %s\n", m.Name, m.ArgSpec, m.Doc)
	}
}

func sameMethodList(a, b []registry.MethodInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	proc, err := launcher.Spawn(ctx, args[0], args[1:]...)
	if err != nil {
		return err
	}
	defer proc.Stop(2 * time.Second)

	spawnAddr := fmt.Sprintf("127.0.0.1:%d", proc.Port)

	dialCtx, cancel := context.WithTimeout(context.Background(), timeout)
	conn, err := epcclient.Dial(dialCtx, spawnAddr, registry.New())
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Attach()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
