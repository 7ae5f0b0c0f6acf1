// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package xerr defines the error taxonomy shared by the catchain receiver
// and the consensus round driver. Every error returned across an actor
// boundary is one of these kinds, wrapped with context via pkg/errors.
package xerr

import (
	"github.com/pkg/errors"
)

// Kind classifies why an operation failed and what the caller should do
// about it.
type Kind int

const (
	// Unknown is never returned directly; it is the zero value used by
	// KindOf when an error doesn't carry one of the sentinels below.
	Unknown Kind = iota
	// ProtocolViolation: malformed TL, bad signature, out-of-range index.
	// The message is dropped; the peer may be penalized by the caller.
	ProtocolViolation
	// ForkDetected: two blocks at the same (src, height) with different
	// payload hashes. The source is blamed and a fork proof is emitted.
	ForkDetected
	// IllBlock: semantic fork/dependency violation. The block and its
	// reverse-dependents are marked ill and never delivered.
	IllBlock
	// NotReady: a DHT lookup found no value. Safe to retry.
	NotReady
	// Timeout: an operation outlived its deadline.
	Timeout
	// Cancellation: the parent scope was cancelled. Never logged as an
	// error; it is expected control flow.
	Cancellation
	// FatalCorruption: the KV store is unreadable or an invariant was
	// violated. The owning actor should terminate.
	FatalCorruption
)

func (k Kind) String() string {
	switch k {
	case ProtocolViolation:
		return "protocol_violation"
	case ForkDetected:
		return "fork_detected"
	case IllBlock:
		return "ill_block"
	case NotReady:
		return "not_ready"
	case Timeout:
		return "timeout"
	case Cancellation:
		return "cancellation"
	case FatalCorruption:
		return "fatal_corruption"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.msg }

// New returns an error of the given kind with msg as its message.
func New(k Kind, msg string) error {
	return &kindError{kind: k, msg: msg}
}

// Wrap attaches msg as context to err while preserving its Kind for
// KindOf/Is lookups.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(err, msg)
}

// KindOf reports the Kind carried by err, or Unknown if none of the chain's
// causes is one of ours.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Is reports whether err (or any error it wraps) is of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
