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

// Package wireproto implements the message framing and dispatch
// protocol: the four header layouts, the typed-Message abstraction, and
// the well-known admission-response kinds (AcceptedRoster, DuplicateName,
// ServerFull). All multi-byte header fields are little-endian, per the
// Open Question in spec.md §9 (the original source is host-native).
package wireproto

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Kind is a message's msg_type tag. Application kinds are registered by
// the embedding program; the library reserves three values for the
// admission response (spec §6).
type Kind int16

const (
	// AcceptedRoster carries the roster snapshot sent to a newly
	// admitted client.
	AcceptedRoster Kind = 0
	// DuplicateName rejects a client whose requested name collides
	// with an existing roster entry.
	DuplicateName Kind = 1
	// ServerFull rejects a client when the roster has no empty slot.
	ServerFull Kind = 2

	// ClientJoined is the host's internal notification kind broadcast
	// to existing clients when a new client is admitted. It is
	// disjoint from the admission kinds (only ever valid immediately
	// after connect) and from application kinds (which the embedding
	// program is free to number from 0).
	ClientJoined Kind = -1
	// ClientDisconnect is the host's internal notification kind
	// broadcast to remaining clients when a peer's TCP socket closes.
	ClientDisconnect Kind = -2
)

// Message is a typed, length-prefixed wire payload. Encode produces
// the ordered sequence of gather-write buffers that follow the header
// (invariant C1: their total length equals the header's size field).
// Decode reads exactly that many bytes back from r (invariant C2).
type Message interface {
	Encode() [][]byte
	Decode(r io.Reader) error
}

// TCPBuilder constructs an empty Message of the shape implied by a
// received client-TCP or server-TCP header. A nil Message with a nil
// error means "dispatch header-only, no payload to read".
type TCPBuilder func(kind Kind, size uint32) (Message, error)

// UDPBuilder constructs an empty Message sized to hold an incoming
// datagram's payload. Unlike TCP, the datagram is read in a single
// syscall before its header is known, so the builder is handed the
// payload byte count directly rather than a parsed size field.
type UDPBuilder func(kind Kind, payloadSize int) (Message, error)

// ClientTCPHeader is the 6-byte client-to-server TCP header.
type ClientTCPHeader struct {
	Size    uint32
	MsgType Kind
}

// ServerTCPHeader is the 8-byte server-to-client TCP header.
type ServerTCPHeader struct {
	Size    uint32
	MsgType Kind
	FromID  int16
}

// ClientUDPHeader is the 2-byte client-to-server UDP header.
type ClientUDPHeader struct {
	MsgType Kind
}

// ServerUDPHeader is the 4-byte server-to-client UDP header.
type ServerUDPHeader struct {
	MsgType Kind
	FromID  int16
}

const (
	ClientTCPHeaderSize = 6
	ServerTCPHeaderSize = 8
	ClientUDPHeaderSize = 2
	ServerUDPHeaderSize = 4
)

func payloadLen(bufs [][]byte) uint32 {
	var n uint32
	for _, b := range bufs {
		n += uint32(len(b))
	}
	return n
}

// WriteClientTCP gather-writes a client-TCP header plus the message's
// payload buffers to w in one call.
func WriteClientTCP(w io.Writer, kind Kind, msg Message) error {
	bufs := encodeBufs(msg)
	hdr := make([]byte, ClientTCPHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], payloadLen(bufs))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(kind))
	return gatherWrite(w, hdr, bufs)
}

// WriteServerTCP gather-writes a server-TCP header plus the message's
// payload buffers to w in one call.
func WriteServerTCP(w io.Writer, kind Kind, fromID int16, msg Message) error {
	bufs := encodeBufs(msg)
	hdr := make([]byte, ServerTCPHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], payloadLen(bufs))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(kind))
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(fromID))
	return gatherWrite(w, hdr, bufs)
}

// WriteClientUDP gather-writes a client-UDP header plus the message's
// payload buffers as a single datagram.
func WriteClientUDP(w io.Writer, kind Kind, msg Message) error {
	bufs := encodeBufs(msg)
	hdr := make([]byte, ClientUDPHeaderSize)
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(kind))
	return gatherWrite(w, hdr, bufs)
}

// WriteServerUDP gather-writes a server-UDP header plus the message's
// payload buffers as a single datagram.
func WriteServerUDP(w io.Writer, kind Kind, fromID int16, msg Message) error {
	bufs := encodeBufs(msg)
	hdr := make([]byte, ServerUDPHeaderSize)
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(kind))
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(fromID))
	return gatherWrite(w, hdr, bufs)
}

func encodeBufs(msg Message) [][]byte {
	if msg == nil {
		return nil
	}
	return msg.Encode()
}

// gatherWrite submits hdr and bufs as one net.Buffers writev call when
// w is a *net.TCPConn/*net.UDPConn (or anything implementing
// net.Buffers.WriteTo's target, io.Writer), falling back to sequential
// writes otherwise.
func gatherWrite(w io.Writer, hdr []byte, bufs [][]byte) error {
	all := net.Buffers(make([][]byte, 0, len(bufs)+1))
	all = append(all, hdr)
	all = append(all, bufs...)
	_, err := all.WriteTo(w)
	return err
}

// ReadClientTCPHeader reads and decodes a 6-byte client-TCP header.
func ReadClientTCPHeader(r io.Reader) (ClientTCPHeader, error) {
	var raw [ClientTCPHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return ClientTCPHeader{}, err
	}
	return ClientTCPHeader{
		Size:    binary.LittleEndian.Uint32(raw[0:4]),
		MsgType: Kind(binary.LittleEndian.Uint16(raw[4:6])),
	}, nil
}

// ReadServerTCPHeader reads and decodes an 8-byte server-TCP header.
func ReadServerTCPHeader(r io.Reader) (ServerTCPHeader, error) {
	var raw [ServerTCPHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return ServerTCPHeader{}, err
	}
	return ServerTCPHeader{
		Size:    binary.LittleEndian.Uint32(raw[0:4]),
		MsgType: Kind(binary.LittleEndian.Uint16(raw[4:6])),
		FromID:  int16(binary.LittleEndian.Uint16(raw[6:8])),
	}, nil
}

// ReadClientUDPHeader decodes a 2-byte client-UDP header from the
// front of an already-received datagram.
func ReadClientUDPHeader(raw []byte) (ClientUDPHeader, error) {
	if len(raw) < ClientUDPHeaderSize {
		return ClientUDPHeader{}, fmt.Errorf("wireproto: short UDP datagram, want at least %d bytes, have %d", ClientUDPHeaderSize, len(raw))
	}
	return ClientUDPHeader{MsgType: Kind(binary.LittleEndian.Uint16(raw[0:2]))}, nil
}

// ReadServerUDPHeader decodes a 4-byte server-UDP header from the
// front of an already-received datagram.
func ReadServerUDPHeader(raw []byte) (ServerUDPHeader, error) {
	if len(raw) < ServerUDPHeaderSize {
		return ServerUDPHeader{}, fmt.Errorf("wireproto: short UDP datagram, want at least %d bytes, have %d", ServerUDPHeaderSize, len(raw))
	}
	return ServerUDPHeader{
		MsgType: Kind(binary.LittleEndian.Uint16(raw[0:2])),
		FromID:  int16(binary.LittleEndian.Uint16(raw[2:4])),
	}, nil
}

// ReadPayload reads exactly size bytes of a TCP message's payload into
// an io.LimitReader-bounded read, the sequential-read equivalent of a
// scatter-read buffer vector (spec §4.3).
func ReadPayload(r io.Reader, size uint32, msg Message) error {
	if size == 0 {
		return nil
	}
	return msg.Decode(io.LimitReader(r, int64(size)))
}
