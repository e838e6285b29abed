package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/odvcencio/switchboard/pkg/observability"
	"github.com/odvcencio/switchboard/pkg/statusmap"
	"github.com/odvcencio/switchboard/pkg/structcodec"
)

const headerRequestID = "x-request-id"

// Request performs a unary call. The options map, minus the pagination
// controls, becomes the wire request; the reply comes back as a native
// map. Encoding failures surface immediately and are never retried.
// Transient transport failures are retried per the configured policy,
// and terminal failures carrying a known transport status are
// normalized into *statusmap.Error.
func (s *Shim) Request(ctx context.Context, spec CallSpec, opts map[string]any) (map[string]any, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	if s.cfg.Sandbox.Enabled {
		observability.SandboxResponses.Inc()
		return structcodec.DecodeStruct(s.sandbox), nil
	}

	requestID := uuid.NewString()
	log := s.logger.WithCall(spec.Service, spec.Method).WithRequest(requestID)

	ctx, span := observability.StartSpan(ctx, "transport.Request")
	defer span.End()
	observability.SetAttributes(ctx,
		observability.AttrService.String(spec.Service),
		observability.AttrMethod.String(spec.Method),
		observability.AttrRequestID.String(requestID),
	)

	payload, err := structcodec.EncodeStruct(stripControlFields(opts, OptionPageSize, OptionPageToken), structcodec.EncodeOptions{})
	if err != nil {
		err = fmt.Errorf("encode request: %w", err)
		observability.RecordError(ctx, err)
		return nil, err
	}

	bundle, err := s.gate.Ensure(ctx)
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}

	inst, err := s.registry.Resolve(ctx, spec.Service, bundle)
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = s.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, headerRequestID, requestID)

	log.CallStarted()
	start := time.Now()

	in := payload.Proto()
	var out *structpb.Struct
	attempts := 0
	call := func() error {
		attempts++
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return status.FromContextError(err).Err()
			}
		}
		reply := new(structpb.Struct)
		if err := s.invoke(ctx, inst.Conn, spec, in, reply); err != nil {
			if attempts <= s.policy.MaxRetries && statusmap.Retryable(err) {
				log.CallRetried(attempts, err)
				observability.CallRetries.WithLabelValues(spec.Service, spec.Method).Inc()
			}
			return err
		}
		out = reply
		return nil
	}

	err = s.policy.Execute(ctx, call)
	observability.SetAttributes(ctx, observability.AttrAttempts.Int(attempts))
	if err != nil {
		final := normalize(contextStatus(err))
		code := codeLabel(final)
		observability.SetAttributes(ctx, observability.AttrCode.String(code))
		observability.RecordError(ctx, final)
		log.CallFailed(final)
		observability.CallsTotal.WithLabelValues(spec.Service, spec.Method, code).Inc()
		return nil, final
	}

	elapsed := time.Since(start)
	observability.SetAttributes(ctx, observability.AttrCode.String("200"))
	log.CallSucceeded(elapsed)
	observability.CallsTotal.WithLabelValues(spec.Service, spec.Method, "200").Inc()
	observability.CallLatency.WithLabelValues(spec.Service, spec.Method).Observe(elapsed.Seconds())

	return structcodec.DecodeStruct(structcodec.StructFromProto(out)), nil
}

// invoke runs the wire call, behind the breaker when one is configured.
func (s *Shim) invoke(ctx context.Context, conn grpc.ClientConnInterface, spec CallSpec, in, out *structpb.Struct) error {
	do := func() error {
		return conn.Invoke(ctx, spec.fullMethod(), in, out)
	}
	if s.breaker != nil {
		return s.breaker.Execute(do)
	}
	return do()
}

// normalize maps an error carrying a known transport status onto the
// HTTP-style taxonomy. Anything else passes through untouched.
func normalize(err error) error {
	if e, ok := statusmap.Translate(err); ok {
		return e
	}
	return err
}

// contextStatus converts the retry loop's bare context errors into
// transport statuses, so a cancellation or deadline that fires between
// attempts maps the same way as one that fires mid-call.
func contextStatus(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return err
}

func codeLabel(err error) string {
	var e *statusmap.Error
	if errors.As(err, &e) {
		return strconv.Itoa(e.HTTPCode)
	}
	return "unknown"
}
