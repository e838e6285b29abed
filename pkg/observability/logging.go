package observability

import (
	"log/slog"
	"os"
	"time"
)

// Logger is a structured logger for transport components
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new structured logger
func NewLogger(component string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "switchboard"),
	)

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithCall returns a logger with call-specific fields
func (l *Logger) WithCall(service, method string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("service", service),
			slog.String("method", method),
		),
	}
}

// WithRequest returns a logger with the per-call request ID
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("request_id", requestID),
		),
	}
}

// CallStarted logs the start of an outgoing call
func (l *Logger) CallStarted() {
	l.Debug("call started")
}

// CallRetried logs a retry of a failed attempt
func (l *Logger) CallRetried(attempt int, err error) {
	l.Warn("call retried",
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// CallFailed logs a terminal call failure
func (l *Logger) CallFailed(err error) {
	l.Error("call failed",
		slog.String("error", err.Error()),
	)
}

// CallSucceeded logs a completed call
func (l *Logger) CallSucceeded(elapsed time.Duration) {
	l.Debug("call succeeded",
		slog.Float64("duration_ms", elapsed.Seconds()*1000),
	)
}

// StreamOpened logs a stream establishment
func (l *Logger) StreamOpened() {
	l.Debug("stream opened")
}

// StreamReopened logs a stream re-establishment after a retryable failure
func (l *Logger) StreamReopened(attempt int) {
	l.Warn("stream reopened",
		slog.Int("attempt", attempt),
	)
}

// StreamClosed logs the end of a stream
func (l *Logger) StreamClosed(chunks int, reason string) {
	l.Debug("stream closed",
		slog.Int("chunks", chunks),
		slog.String("reason", reason),
	)
}

// CredentialsAcquired logs a successful credential acquisition
func (l *Logger) CredentialsAcquired() {
	l.Debug("credentials acquired")
}

// CredentialsFailed logs a failed credential acquisition
func (l *Logger) CredentialsFailed(err error) {
	l.Error("credential acquisition failed",
		slog.String("error", err.Error()),
	)
}

// BreakerStateChange logs a circuit breaker state change
func (l *Logger) BreakerStateChange(fromState, toState string) {
	l.Warn("breaker state changed",
		slog.String("from_state", fromState),
		slog.String("to_state", toState),
	)
}