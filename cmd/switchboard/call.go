package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/odvcencio/switchboard/pkg/statusmap"
	"github.com/odvcencio/switchboard/pkg/transport"
)

// kvFlag collects repeatable key=value request fields.
type kvFlag []string

func (f *kvFlag) String() string { return strings.Join(*f, ",") }

func (f *kvFlag) Set(v string) error {
	if _, _, ok := strings.Cut(v, "="); !ok {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*f = append(*f, v)
	return nil
}

// buildOptions merges a JSON payload with -opt overrides. Values from
// -opt stay strings; use -json for typed fields.
func buildOptions(payload string, kvs kvFlag) (map[string]any, error) {
	opts := map[string]any{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &opts); err != nil {
			return nil, fmt.Errorf("invalid -json payload: %w", err)
		}
	}
	for _, kv := range kvs {
		k, v, _ := strings.Cut(kv, "=")
		opts[k] = v
	}
	return opts, nil
}

type callFlags struct {
	timeout time.Duration
	trace   bool
	opts    map[string]any
	service string
	method  string
}

func parseCallFlags(name string, args []string, extra func(*flag.FlagSet)) (*callFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	timeout := fs.Duration("timeout", 0, "Per-call deadline (0 uses the configured default)")
	payload := fs.String("json", "", "Request payload as a JSON object")
	trace := fs.Bool("trace", false, "Export spans for this invocation")
	var kvs kvFlag
	fs.Var(&kvs, "opt", "Request field as key=value (repeatable)")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) != 2 {
		return nil, withExitCode(fmt.Errorf("usage: switchboard %s [flags] <service> <method>", name), 2)
	}

	opts, err := buildOptions(*payload, kvs)
	if err != nil {
		return nil, withExitCode(err, 2)
	}

	return &callFlags{
		timeout: *timeout,
		trace:   *trace,
		opts:    opts,
		service: rest[0],
		method:  rest[1],
	}, nil
}

func runCallCommand(args []string) error {
	cf, err := parseCallFlags("call", args, nil)
	if err != nil {
		return err
	}

	cfg, err := loadConfigFn()
	if err != nil {
		return withExitCode(err, 2)
	}

	if cf.trace {
		flush, err := setupTracing()
		if err != nil {
			return err
		}
		defer flush()
	}

	client, err := newClientFn(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := transport.CallSpec{Service: cf.service, Method: cf.method, Timeout: cf.timeout}
	reply, err := client.Request(ctx, spec, cf.opts)
	if err != nil {
		return callExitError(err)
	}

	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// callExitError picks the process exit code from the failure class:
// 4 for caller mistakes, 5 for service-side failures.
func callExitError(err error) error {
	var se *statusmap.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPCode >= 500:
			return withExitCode(err, 5)
		case se.HTTPCode >= 400:
			return withExitCode(err, 4)
		}
	}
	return err
}
