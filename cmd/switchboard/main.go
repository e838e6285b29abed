package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/switchboard/pkg/config"
	"github.com/odvcencio/switchboard/pkg/observability"
	"github.com/odvcencio/switchboard/pkg/transport"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rpcClient captures the subset of transport behavior the CLI needs.
// It enables unit-testing subcommands without live calls.
type rpcClient interface {
	Request(ctx context.Context, spec transport.CallSpec, opts map[string]any) (map[string]any, error)
	RequestStream(ctx context.Context, spec transport.CallSpec, opts map[string]any) *transport.Stream
	Close() error
}

var loadConfigFn = config.Load

var newClientFn = func(cfg *config.Config) (rpcClient, error) {
	return transport.New(cfg)
}

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "call":
		return runCommand(runCallCommand, args[1:])
	case "stream":
		return runCommand(runStreamCommand, args[1:])
	case "config":
		return runCommand(runConfigCommand, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printHelp()
		return 2
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error { return e.err }

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitError
	if errors.As(err, &coded) && coded.code != 0 {
		return coded.code
	}
	return 1
}

func printHelp() {
	fmt.Println("Switchboard - authenticated RPC transport shim")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  switchboard <command> [flags] [args]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  call [flags] <service> <method>    Unary call; prints the JSON reply")
	fmt.Println("  stream [flags] <service> <method>  Server stream; prints one JSON object per chunk")
	fmt.Println("  config [check|show|path]           Inspect the effective configuration")
	fmt.Println("  version                            Print version information")
	fmt.Println()
	fmt.Println("CALL/STREAM FLAGS:")
	fmt.Println("  -opt key=value     Request field (repeatable; values stay strings)")
	fmt.Println("  -json '{...}'      Request payload as a JSON object")
	fmt.Println("  -timeout 5s        Per-call deadline")
	fmt.Println("  -trace             Export spans for this invocation")
	fmt.Println("  -object-mode       (stream only) Decode each chunk into native fields")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("  SWITCHBOARD_CONFIG points at a YAML config file; defaults apply without one.")
	fmt.Println("  SWITCHBOARD_TARGET, SWITCHBOARD_AUTH_MODE, SWITCHBOARD_AUTH_TOKEN,")
	fmt.Println("  SWITCHBOARD_AUTH_SECRET, SWITCHBOARD_CA_FILE and SWITCHBOARD_SANDBOX override it.")
}

func printVersion() {
	fmt.Printf("Switchboard %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

func runConfigCommand(args []string) error {
	subCmd := "show"
	if len(args) > 0 {
		subCmd = args[0]
	}

	switch subCmd {
	case "check":
		return runConfigCheck()
	case "show":
		return runConfigShow()
	case "path":
		return runConfigPath()
	default:
		return fmt.Errorf("unknown config command: %s (use check, show, or path)", subCmd)
	}
}

func runConfigCheck() error {
	cfg, err := loadConfigFn()
	if err != nil {
		return withExitCode(err, 2)
	}
	fmt.Println("Configuration OK")
	if cfg.Sandbox.Enabled {
		fmt.Println("  Mode:   sandbox (no network I/O)")
	} else {
		fmt.Printf("  Target: %s\n", cfg.Target)
		fmt.Printf("  Auth:   %s\n", cfg.Auth.Mode)
	}
	return nil
}

func runConfigShow() error {
	cfg, err := loadConfigFn()
	if err != nil {
		return withExitCode(err, 2)
	}
	redacted := *cfg
	if redacted.Auth.Token != "" {
		redacted.Auth.Token = "[redacted]"
	}
	if redacted.Auth.Secret != "" {
		redacted.Auth.Secret = "[redacted]"
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runConfigPath() error {
	if path := os.Getenv("SWITCHBOARD_CONFIG"); path != "" {
		fmt.Println(path)
		return nil
	}
	fmt.Println("(built-in defaults; set SWITCHBOARD_CONFIG to use a file)")
	return nil
}

// setupTracing starts span export for one invocation and returns the
// flush hook.
func setupTracing() (func(), error) {
	tp, err := observability.NewTracerProvider("switchboard")
	if err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}
