// Package errs provides structured error envelopes shared across the control
// graph runtime and the telemetry services.
package errs

import (
	"strconv"
	"strings"
)

// Kind classifies a failure into one of the taxonomy buckets the runtime
// distinguishes on.
type Kind string

const (
	// KindDuplicateBlockName: two blocks were added to a graph builder under the
	// same name.
	KindDuplicateBlockName Kind = "duplicate_block_name"
	// KindDuplicateProducer: a signal already has a bound producer output.
	KindDuplicateProducer Kind = "duplicate_producer"
	// KindUnknownSignal: an input references a signal with no declared producer.
	KindUnknownSignal Kind = "unknown_signal"
	// KindUnknownPort: a wiring entry names a port the block never declared.
	KindUnknownPort Kind = "unknown_port"
	// KindTypeMismatch: a signal was bound twice with incompatible types.
	KindTypeMismatch Kind = "type_mismatch"
	// KindCycle: the non-delay edge subgraph contains a cycle.
	KindCycle Kind = "cycle"
	// KindMissingOrCorruptStore: the parameter store file is missing or unreadable.
	KindMissingOrCorruptStore Kind = "missing_or_corrupt_store"
	// KindDeserializeFailure: a parameter section failed to decode into its type.
	KindDeserializeFailure Kind = "deserialize_failure"
	// KindBlockStep: a block's Step returned an error.
	KindBlockStep Kind = "block_step"
	// KindInvalidChannelName: a telemetry registration used a malformed name.
	KindInvalidChannelName Kind = "invalid_channel_name"
	// KindChannelTypeMismatch: a telemetry channel was reused with a different type.
	KindChannelTypeMismatch Kind = "channel_type_mismatch"
	// KindBadPort: a start_telemetry request named a port outside [0, 65535].
	KindBadPort Kind = "bad_port"
	// KindTransportFailure: the control-plane transport failed independently of
	// request validation.
	KindTransportFailure Kind = "transport_failure"
	// KindInvalid: a generic invalid-argument condition not covered above.
	KindInvalid Kind = "invalid"
	// KindUnavailable: the operation could not proceed because a dependency (a
	// bus, a pool, a socket) is closed or saturated.
	KindUnavailable Kind = "unavailable"
)

// E is a structured error produced by any runtime component.
type E struct {
	Op      string
	Kind    Kind
	Message string
	Block   string
	Signal  string

	cause error
}

// Option configures an error envelope at construction time.
type Option func(*E)

// New constructs an error envelope for the given operation and kind.
func New(op string, kind Kind, opts ...Option) *E {
	e := &E{Op: strings.TrimSpace(op), Kind: kind}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithBlock annotates the error with the offending block's name.
func WithBlock(name string) Option {
	trimmed := strings.TrimSpace(name)
	return func(e *E) { e.Block = trimmed }
}

// WithSignal annotates the error with the signal name involved, used by the
// signal registry (duplicate producer, unknown signal, type mismatch).
func WithSignal(name string) Option {
	trimmed := strings.TrimSpace(name)
	return func(e *E) { e.Signal = trimmed }
}

// WithCause sets the underlying wrapped error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Error renders the structured envelope as a single-line diagnostic string.
func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("kind=")
	b.WriteString(string(e.Kind))
	if e.Block != "" {
		b.WriteString(" block=")
		b.WriteString(strconv.Quote(e.Block))
	}
	if e.Signal != "" {
		b.WriteString(" signal=")
		b.WriteString(strconv.Quote(e.Signal))
	}
	if e.Message != "" {
		b.WriteString(" msg=")
		b.WriteString(strconv.Quote(e.Message))
	}
	if e.cause != nil {
		b.WriteString(" cause=")
		b.WriteString(strconv.Quote(e.cause.Error()))
	}
	return b.String()
}

// Is reports whether target carries the same Kind, matching errors.Is
// semantics for sentinel-style comparisons by kind.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok || other == nil {
		return false
	}
	return e.Kind == other.Kind
}
