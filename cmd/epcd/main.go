// Command epcd is a standalone EPC server process: it listens on a TCP
// port, optionally serves a handful of demo methods, and reports its port
// to whatever spawned it the way a managed Emacs-epc child process does.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandia-minimega/epc/internal/demomethods"
	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/internal/session"
	"github.com/sandia-minimega/epc/pkg/epclog"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

// logHistorySize bounds how many recent log lines epcd keeps queryable
// over the epcd-log-history method.
const logHistorySize = 200

// registerLogHistory exposes ring's buffered lines as an EPC method so a
// connected peer can pull recent server history without its own log file.
func registerLogHistory(reg *registry.Registry, ring *epclog.Ring) {
	reg.Register("epcd-log-history", func(ctx context.Context, args []sexp.Value) (sexp.Value, error) {
		lines := ring.Dump()
		items := make([]sexp.Value, len(lines))
		for i, l := range lines {
			items[i] = sexp.Str(l)
		}
		return sexp.List(items...), nil
	}, "", "returns the server's recent log lines, oldest first")
}

var (
	cfgFile  string
	addr     string
	logLevel string
	demo     bool
)

var rootCmd = &cobra.Command{
	Use:   "epcd",
	Short: "EPC server daemon",
	Long: `epcd listens for EPC peer connections on a TCP socket and serves
whatever methods are registered against its registry.

Before accepting connections it writes its decimal listen port followed by
a newline to standard output, the side channel a parent process (an Emacs
epc.el client, or a test harness) reads to learn where to dial back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "address to listen on (port 0 picks an ephemeral port)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&demo, "demo", false, "register demo methods (echo, add)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./epcd.yaml if present)")

	viper.BindPFlag("addr", rootCmd.Flags().Lookup("addr"))
	viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("demo", rootCmd.Flags().Lookup("demo"))
}

func initConfig() {
	viper.SetEnvPrefix("epcd")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("epcd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			epclog.Warn("epcd: config file error: %v", err)
		}
	}
}

func levelFromString(s string) int {
	switch s {
	case "debug":
		return epclog.DEBUG
	case "warn":
		return epclog.WARN
	case "error":
		return epclog.ERROR
	default:
		return epclog.INFO
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	initConfig()

	level := levelFromString(viper.GetString("log-level"))
	epclog.AddLogger("stderr", os.Stderr, level, true)

	logRing := epclog.NewRing(logHistorySize)
	epclog.AddLogger("ring", logRing, epclog.DEBUG, false)

	listenAddr := viper.GetString("addr")

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.Wrapf(err, "epcd: listen %s", listenAddr)
	}
	defer ln.Close()

	reg := registry.New()
	registerLogHistory(reg, logRing)
	if viper.GetBool("demo") {
		demomethods.Register(reg)
		epclog.Info("epcd: demo methods registered")
	}

	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("%d\n", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		epclog.Info("epcd: shutdown signal received")
		ln.Close()
		cancel()
	}()

	epclog.Info("epcd: listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errors.Wrap(err, "epcd: accept")
			}
		}

		sess := session.New(conn, reg)
		sess.OnClose(func(cause error) {
			epclog.Info("epcd: session %s closed: %v", sess.ID(), cause)
		})
		sess.Start()
		epclog.Info("epcd: accepted connection from %s (session %s)", conn.RemoteAddr(), sess.ID())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
