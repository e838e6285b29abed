package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/odvcencio/switchboard/pkg/structcodec"
	"github.com/odvcencio/switchboard/pkg/transport"
)

func runStreamCommand(args []string) error {
	var objectMode bool
	cf, err := parseCallFlags("stream", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&objectMode, "object-mode", false, "Decode each chunk into native fields")
	})
	if err != nil {
		return err
	}
	if objectMode {
		cf.opts[transport.OptionObjectMode] = true
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
	st := client.RequestStream(ctx, spec, cf.opts)
	defer st.Close()

	enc := json.NewEncoder(os.Stdout)
	for {
		chunk, err := st.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return callExitError(err)
		}
		fields := chunk.Fields
		if fields == nil {
			fields = structcodec.DecodeStruct(chunk.Struct)
		}
		if err := enc.Encode(fields); err != nil {
			return err
		}
	}
}
