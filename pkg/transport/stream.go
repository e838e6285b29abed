package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/odvcencio/switchboard/pkg/observability"
	"github.com/odvcencio/switchboard/pkg/structcodec"
)

const streamChunkBuffer = 64

// Chunk is one server message. Struct is always the wire form; Fields
// is the decoded native form when the stream was opened in object mode.
type Chunk struct {
	Struct structcodec.Struct
	Fields map[string]any
}

// Stream is the caller-visible side of a server stream. Chunks already
// received are delivered in order before any terminal error.
type Stream struct {
	cancel context.CancelFunc
	chunks chan Chunk

	// err is written by the pump before chunks is closed.
	err error
}

// Recv returns the next chunk. It returns io.EOF when the stream ended
// cleanly and the terminal error otherwise.
func (st *Stream) Recv() (*Chunk, error) {
	c, ok := <-st.chunks
	if !ok {
		if st.err != nil {
			return nil, st.err
		}
		return nil, io.EOF
	}
	return &c, nil
}

// Close tears down the underlying call. Chunks already buffered remain
// readable; once drained, Recv reports the cancellation.
func (st *Stream) Close() error {
	st.cancel()
	return nil
}

// terminated builds a stream that is already over.
func terminated(err error) *Stream {
	st := &Stream{
		cancel: func() {},
		chunks: make(chan Chunk),
		err:    err,
	}
	close(st.chunks)
	return st
}

// RequestStream opens a server stream and returns immediately; all
// network work happens behind the returned Stream. Transient transport
// failures reopen the underlying call from its beginning, bounded by
// the retry policy; chunks already delivered stay delivered. A clean
// server end surfaces as io.EOF from Recv.
//
// The objectMode option asks for each chunk to also be decoded into a
// native map.
func (s *Shim) RequestStream(ctx context.Context, spec CallSpec, opts map[string]any) *Stream {
	if err := spec.validate(); err != nil {
		return terminated(err)
	}

	if s.cfg.Sandbox.Enabled {
		observability.SandboxResponses.Inc()
		return terminated(nil)
	}

	objectMode, _ := opts[OptionObjectMode].(bool)

	payload, err := structcodec.EncodeStruct(stripControlFields(opts, OptionObjectMode), structcodec.EncodeOptions{})
	if err != nil {
		return terminated(fmt.Errorf("encode request: %w", err))
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	st := &Stream{
		cancel: cancel,
		chunks: make(chan Chunk, streamChunkBuffer),
	}
	go s.pump(pumpCtx, st, spec, payload, objectMode)
	return st
}

// pump owns the lifetime of one caller-visible stream: credentials,
// resolution, the reopen loop, and the terminal hand-off to Recv.
func (s *Shim) pump(ctx context.Context, st *Stream, spec CallSpec, payload structcodec.Struct, objectMode bool) {
	requestID := uuid.NewString()
	log := s.logger.WithCall(spec.Service, spec.Method).WithRequest(requestID)

	ctx, span := observability.StartSpan(ctx, "transport.RequestStream")
	defer span.End()
	observability.SetAttributes(ctx,
		observability.AttrService.String(spec.Service),
		observability.AttrMethod.String(spec.Method),
		observability.AttrRequestID.String(requestID),
		observability.AttrStreaming.Bool(true),
	)

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	chunks := 0
	var termErr error
	defer func() {
		if termErr != nil {
			termErr = normalize(termErr)
			observability.RecordError(ctx, termErr)
			log.StreamClosed(chunks, termErr.Error())
		} else {
			log.StreamClosed(chunks, "eof")
		}
		st.err = termErr
		close(st.chunks)
	}()

	bundle, err := s.gate.Ensure(ctx)
	if err != nil {
		termErr = err
		return
	}
	inst, err := s.registry.Resolve(ctx, spec.Service, bundle)
	if err != nil {
		termErr = err
		return
	}

	// Streams are long-lived, so only an explicit per-call timeout
	// bounds them. The configured default applies to unary calls.
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, headerRequestID, requestID)

	log.StreamOpened()

	in := payload.Proto()
	desc := &grpc.StreamDesc{StreamName: spec.Method, ServerStreams: true}
	attempts := 0
	termErr = s.policy.Execute(ctx, func() error {
		attempts++
		if attempts > 1 {
			log.StreamReopened(attempts)
			observability.StreamReopens.WithLabelValues(spec.Service, spec.Method).Inc()
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return status.FromContextError(err).Err()
			}
		}
		cs, err := inst.Conn.NewStream(ctx, desc, spec.fullMethod())
		if err != nil {
			return err
		}
		if err := cs.SendMsg(in); err != nil {
			return err
		}
		if err := cs.CloseSend(); err != nil {
			return err
		}
		return s.consume(ctx, cs, st, spec, objectMode, &chunks)
	})
	termErr = contextStatus(termErr)
	observability.SetAttributes(ctx, observability.AttrAttempts.Int(attempts))
}

// consume drains one open call into the chunk channel. A clean server
// end returns nil; everything else returns the receive error.
func (s *Shim) consume(ctx context.Context, cs grpc.ClientStream, st *Stream, spec CallSpec, objectMode bool, delivered *int) error {
	for {
		reply := new(structpb.Struct)
		if err := cs.RecvMsg(reply); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		chunk := Chunk{Struct: structcodec.StructFromProto(reply)}
		if objectMode {
			chunk.Fields = structcodec.DecodeStruct(chunk.Struct)
		}
		select {
		case st.chunks <- chunk:
			*delivered++
			observability.StreamChunks.WithLabelValues(spec.Service, spec.Method).Inc()
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		}
	}
}
