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

package wire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/appleGun22/hcnet/internal/logutil"
	"github.com/appleGun22/hcnet/internal/sockopt"
	"github.com/appleGun22/hcnet/neterr"
	"github.com/appleGun22/hcnet/wireproto"
)

var log = logutil.New("wire")

// outboundQueueSize bounds each wire's single-producer/single-consumer
// write queue (spec §4.4).
const outboundQueueSize = 64

// maxUDPDatagram is the largest datagram payload the read loop will
// accept in one receive call.
const maxUDPDatagram = 65507

// Owner is the capability set the host supplies to every Wire: it
// builds typed messages from a received header and receives completed
// packets and terminal errors. It mirrors host.hpp's Wire::running_host
// indirection without the static/global coupling.
type Owner interface {
	BuilderTCP(kind wireproto.Kind, size uint32) (wireproto.Message, error)
	BuilderUDP(kind wireproto.Kind, payloadSize int) (wireproto.Message, error)
	NewPacketTCP(id int16, kind wireproto.Kind, msg wireproto.Message)
	NewPacketUDP(id int16, kind wireproto.Kind, msg wireproto.Message) bool
	OnCloseConnection(id int16, err *neterr.Error)
}

type outboundTCP struct {
	kind wireproto.Kind
	from int16
	msg  wireproto.Message
}

type outboundUDP struct {
	kind wireproto.Kind
	from int16
	msg  wireproto.Message
}

// Wire is one peer's TCP+UDP socket pair plus its admission state
// (spec §4.5).
type Wire struct {
	owner Owner

	tcpConn *net.TCPConn
	udpConn *net.UDPConn

	mu    sync.Mutex
	state State
	id    int16

	outTCP chan outboundTCP
	outUDP chan outboundUDP
	done   chan struct{}

	open      atomic.Bool
	closeOnce sync.Once
}

// NewAccepting wraps a freshly accepted TCP connection in a Wire and
// performs the Accepting state's UDP same-endpoint bind: a UDP socket
// opened on the TCP connection's local 4-tuple and connected to its
// peer, reusing that address via SO_REUSEADDR (spec.md §9).
func NewAccepting(ctx context.Context, tcpConn *net.TCPConn, owner Owner) (*Wire, error) {
	local := tcpConn.LocalAddr().(*net.TCPAddr)
	remote := tcpConn.RemoteAddr().(*net.TCPAddr)

	dialer := net.Dialer{
		LocalAddr: &net.UDPAddr{IP: local.IP, Port: local.Port},
		Control:   sockopt.ControlReuseAddr,
	}

	conn, err := dialer.DialContext(ctx, "udp", (&net.UDPAddr{IP: remote.IP, Port: remote.Port}).String())
	if err != nil {
		return nil, neterr.New(neterr.FailedToConnect, err)
	}

	w := &Wire{
		owner:   owner,
		tcpConn: tcpConn,
		udpConn: conn.(*net.UDPConn),
		state:   AwaitCinfoHeader,
		id:      -1,
		outTCP:  make(chan outboundTCP, outboundQueueSize),
		outUDP:  make(chan outboundUDP, outboundQueueSize),
		done:    make(chan struct{}),
	}
	return w, nil
}

// ReadClientInfo performs AwaitCinfoHeader and AwaitCinfoBody: it reads
// the 6-byte client-TCP header, asks the owner for a builder, and
// scatter-reads the typed payload.
func (w *Wire) ReadClientInfo() (wireproto.Kind, wireproto.Message, error) {
	w.setState(AwaitCinfoHeader)

	hdr, err := wireproto.ReadClientTCPHeader(w.tcpConn)
	if err != nil {
		return 0, nil, neterr.New(neterr.FailedToRead, err)
	}

	w.setState(AwaitCinfoBody)

	msg, err := w.owner.BuilderTCP(hdr.MsgType, hdr.Size)
	if err != nil {
		return 0, nil, neterr.New(neterr.UnknownMsgType, err)
	}
	if msg == nil {
		return hdr.MsgType, nil, nil
	}

	if err := wireproto.ReadPayload(w.tcpConn, hdr.Size, msg); err != nil {
		return 0, nil, neterr.New(neterr.FailedToRead, err)
	}
	return hdr.MsgType, msg, nil
}

// Reject sends a header-only rejection response and tears the wire
// down without ever registering it with the owner; a rejected wire is
// dropped silently, per spec.md §4.5's Decide transition.
func (w *Wire) Reject(kind wireproto.Kind) error {
	w.setState(Decide)

	err := wireproto.WriteServerTCP(w.tcpConn, kind, -1, nil)
	w.shutdownSockets()
	w.setState(Dead)
	if err != nil {
		return neterr.New(neterr.FailedToWrite, err)
	}
	return nil
}

// WriteHinfo sends the AcceptedRoster packet (or any other admission
// acceptance payload) at the assigned id. It does not touch the roster:
// the host places the wire in its slot before calling this and vacates
// the slot again if the write fails.
func (w *Wire) WriteHinfo(kind wireproto.Kind, assignedID int16, hinfo wireproto.Message) error {
	w.setState(WriteHinfo)

	if err := wireproto.WriteServerTCP(w.tcpConn, kind, assignedID, hinfo); err != nil {
		w.shutdownSockets()
		w.setState(Dead)
		return neterr.New(neterr.FailedToWrite, err)
	}
	return nil
}

// MarkLive transitions the wire to Live, records its roster id, and
// starts its four steady-state goroutines (TCP read/write, UDP
// read/write).
func (w *Wire) MarkLive(id int16) {
	w.mu.Lock()
	w.id = id
	w.state = Live
	w.mu.Unlock()

	w.open.Store(true)

	go w.readTCPLoop()
	go w.writeTCPLoop()
	go w.readUDPLoop()
	go w.writeUDPLoop()
}

// ID returns the wire's assigned roster slot id, or -1 before admission.
func (w *Wire) ID() int16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// IsOpen reports whether the wire is Live and has not yet been closed.
// It satisfies broadcast.Wire.
func (w *Wire) IsOpen() bool {
	return w.open.Load()
}

// SendTCP enqueues a message for the TCP write loop, stamping from.
func (w *Wire) SendTCP(kind wireproto.Kind, from int16, msg wireproto.Message) {
	if !w.IsOpen() {
		return
	}
	select {
	case w.outTCP <- outboundTCP{kind: kind, from: from, msg: msg}:
	case <-w.done:
	default:
		log.Warnf("peer %d: TCP outbound queue full, dropping packet", w.ID())
	}
}

// SendUDP enqueues a message for the UDP write loop, stamping from.
func (w *Wire) SendUDP(kind wireproto.Kind, from int16, msg wireproto.Message) {
	if !w.IsOpen() {
		return
	}
	select {
	case w.outUDP <- outboundUDP{kind: kind, from: from, msg: msg}:
	case <-w.done:
	default:
		log.Warnf("peer %d: UDP outbound queue full, dropping packet", w.ID())
	}
}

func (w *Wire) readTCPLoop() {
	for {
		hdr, err := wireproto.ReadClientTCPHeader(w.tcpConn)
		if err != nil {
			w.fail(neterr.FailedToRead, err)
			return
		}

		if hdr.Size == 0 {
			w.owner.NewPacketTCP(w.ID(), hdr.MsgType, nil)
			continue
		}

		msg, err := w.owner.BuilderTCP(hdr.MsgType, hdr.Size)
		if err != nil {
			w.fail(neterr.UnknownMsgType, err)
			return
		}

		if err := wireproto.ReadPayload(w.tcpConn, hdr.Size, msg); err != nil {
			w.fail(neterr.FailedToRead, err)
			return
		}

		w.owner.NewPacketTCP(w.ID(), hdr.MsgType, msg)
	}
}

func (w *Wire) writeTCPLoop() {
	for {
		select {
		case <-w.done:
			return
		case p := <-w.outTCP:
			if err := wireproto.WriteServerTCP(w.tcpConn, p.kind, p.from, p.msg); err != nil {
				w.fail(neterr.FailedToWrite, err)
				return
			}
		}
	}
}

func (w *Wire) readUDPLoop() {
	buf := make([]byte, maxUDPDatagram)
	for {
		n, err := w.udpConn.Read(buf)
		if err != nil {
			w.fail(neterr.FailedToRead, err)
			return
		}

		hdr, err := wireproto.ReadClientUDPHeader(buf[:n])
		if err != nil {
			w.fail(neterr.FailedToRead, err)
			return
		}

		payload := buf[wireproto.ClientUDPHeaderSize:n]

		msg, err := w.owner.BuilderUDP(hdr.MsgType, len(payload))
		if err != nil {
			w.fail(neterr.UnknownMsgType, err)
			return
		}
		if msg != nil {
			if err := msg.Decode(bytes.NewReader(payload)); err != nil {
				w.fail(neterr.FailedToRead, err)
				return
			}
		}

		if !w.owner.NewPacketUDP(w.ID(), hdr.MsgType, msg) {
			w.fail(neterr.UnknownMsgType, nil)
			return
		}
	}
}

func (w *Wire) writeUDPLoop() {
	for {
		select {
		case <-w.done:
			return
		case p := <-w.outUDP:
			if err := wireproto.WriteServerUDP(w.udpConn, p.kind, p.from, p.msg); err != nil {
				w.fail(neterr.FailedToWrite, err)
				return
			}
		}
	}
}

// fail transitions the wire to Closing and reports the failure to the
// owner. A nil cause or an io.EOF cause is reported as a clean close.
func (w *Wire) fail(kind neterr.Kind, cause error) {
	var reported *neterr.Error
	if cause == nil || errors.Is(cause, io.EOF) {
		reported = neterr.New(kind, nil)
	} else {
		reported = neterr.New(kind, cause)
	}
	w.Close(reported)
}

// Close shuts down both sockets, invokes the owner's close callback
// exactly once, and marks the wire Dead.
func (w *Wire) Close(err *neterr.Error) {
	w.closeOnce.Do(func() {
		w.setState(Closing)
		w.open.Store(false)

		w.shutdownSockets()
		close(w.done)

		w.owner.OnCloseConnection(w.ID(), err)
		w.setState(Dead)
	})
}

func (w *Wire) shutdownSockets() {
	if w.tcpConn != nil {
		_ = w.tcpConn.CloseWrite()
		_ = w.tcpConn.Close()
	}
	if w.udpConn != nil {
		_ = w.udpConn.Close()
	}
}

func (w *Wire) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// StateString reports the wire's current admission/lifecycle state,
// for diagnostics.
func (w *Wire) StateString() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.String()
}
