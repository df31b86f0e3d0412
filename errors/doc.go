// Package errors provides standardized error handling patterns for simmirror components.
//
// # Overview
//
// Errors are sorted into three classes: Transient (temporary, retryable),
// Invalid (bad input, drop and continue) and Fatal (unrecoverable, stop).
// Streaming code uses the class to decide what happens next: a transient
// dial failure puts the transport into the Error state and waits for the
// next reconnect cadence, an invalid payload is dropped without touching
// frame boundaries, and a fatal configuration error stops the binary.
//
// # Quick Start
//
// Wrap errors with component context:
//
//	if err := json.Unmarshal(payload, &env); err != nil {
//	    return errors.WrapInvalid(err, "logring", "ParseEnvelope", "json decode")
//	}
//
// Check classification for retry logic:
//
//	if errors.IsTransient(err) {
//	    // keep the supervisor cadence running
//	}
//
// The wrapped message always follows "component.method: action failed: cause"
// and every wrapper supports errors.Is and errors.As through Unwrap.
package errors
