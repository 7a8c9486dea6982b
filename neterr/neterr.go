// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package neterr defines the error taxonomy shared by wire, host, and
// client: a small enumerated kind plus an optional underlying cause.
// End-of-stream is never an error here; the wire/client report it as
// a close with a nil cause instead.
package neterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the transport-facing error taxonomy (spec §7).
type Kind int

const (
	// UnknownMsgType means the header's msg_type has no registered builder.
	UnknownMsgType Kind = iota
	// FailedToRunReactor means the I/O reactor (accept loop / read-write
	// loops) shut down with an error.
	FailedToRunReactor
	// FailedToConnect means TCP connect, or UDP open/bind/connect, failed.
	FailedToConnect
	// FailedToRead means a socket read failed during handshake or steady state.
	FailedToRead
	// FailedToWrite means a socket write failed during handshake or steady state.
	FailedToWrite
)

func (k Kind) String() string {
	switch k {
	case UnknownMsgType:
		return "received an unknown message type"
	case FailedToRunReactor:
		return "failed to start the server"
	case FailedToConnect:
		return "a request to establish connection has failed"
	case FailedToRead:
		return "failed to read or handle an incoming message"
	case FailedToWrite:
		return "failed to send a message"
	default:
		return "unspecified"
	}
}

// Error is the concrete error type surfaced through OnError and
// OnCloseConnection. Cause is nil for a clean peer close (EOF).
type Error struct {
	Kind  Kind
	Cause error
}

// New wraps cause (which may be nil) as an Error of the given kind.
func New(kind Kind, cause error) *Error {
	if cause == nil {
		return &Error{Kind: kind}
	}
	return &Error{Kind: kind, Cause: errors.Wrap(cause, kind.String())}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsClose reports whether e represents a clean close (no cause), as
// opposed to a genuine I/O failure.
func (e *Error) IsClose() bool { return e == nil || e.Cause == nil }
