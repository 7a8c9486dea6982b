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

// Package client implements the single-peer counterpart to host: connect,
// the client-info/roster handshake, and symmetric steady-state read/write
// loops with no fan-out, grounded on
// _examples/original_source/include/hcnet/client.hpp's Client<Clienter>.
package client

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

var log = logutil.New("client")

const outboundQueueSize = 64
const maxUDPDatagram = 65507

// UserClient is the capability set the embedding application implements.
// It mirrors host.UserHost but adds the admission result callbacks that
// only the client side needs.
type UserClient interface {
	BuilderTCP(kind wireproto.Kind, size uint32) (wireproto.Message, error)
	BuilderUDP(kind wireproto.Kind, payloadSize int) (wireproto.Message, error)
	NewPacketTCP(fromID int16, kind wireproto.Kind, msg wireproto.Message)
	NewPacketUDP(fromID int16, kind wireproto.Kind, msg wireproto.Message) bool
	OnCloseConnection(err *neterr.Error)
	OnError(err *neterr.Error)

	// ConnectionResultBuilder builds the message implied by the
	// server-TCP header received in response to the client-info
	// packet. A nil Message with a nil error means header-only.
	ConnectionResultBuilder(hdr wireproto.ServerTCPHeader) (wireproto.Message, error)
	// ConnectionResult inspects the decoded admission response and
	// reports whether the client was accepted. On acceptance it
	// typically records the assigned id and roster snapshot.
	ConnectionResult(hdr wireproto.ServerTCPHeader, msg wireproto.Message) bool
}

type outboundTCP struct {
	kind wireproto.Kind
	msg  wireproto.Message
}

type outboundUDP struct {
	kind wireproto.Kind
	msg  wireproto.Message
}

// Client is one peer's connection to a single host.
type Client struct {
	owner UserClient

	tcpConn *net.TCPConn
	udpConn *net.UDPConn

	mu        sync.Mutex
	connected atomic.Bool
	id        int16

	outTCP chan outboundTCP
	outUDP chan outboundUDP
	done   chan struct{}

	closeOnce sync.Once
	cancel    context.CancelFunc
}

// New constructs a Client bound to owner. Call Start to connect.
func New(owner UserClient) *Client {
	return &Client{owner: owner, id: -1}
}

// IsConnected reports whether the handshake has completed and the
// steady-state loops are running.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// ID returns the roster slot id assigned on acceptance, or -1 before
// that.
func (c *Client) ID() int16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Start connects to hostIP:port over TCP, opens a UDP socket on the
// same local endpoint connected to the server's UDP endpoint, and
// performs the client-info/roster handshake.
func (c *Client) Start(ctx context.Context, hostIP string, port uint16, cinfoKind wireproto.Kind, cinfo wireproto.Message) error {
	tcpConn, err := net.DialTCP("tcp", nil, &net.TCPAddr{IP: net.ParseIP(hostIP), Port: int(port)})
	if err != nil {
		return neterr.New(neterr.FailedToConnect, err)
	}

	local := tcpConn.LocalAddr().(*net.TCPAddr)
	remote := tcpConn.RemoteAddr().(*net.TCPAddr)

	dialer := net.Dialer{
		LocalAddr: &net.UDPAddr{IP: local.IP, Port: local.Port},
		Control:   sockopt.ControlReuseAddr,
	}
	udpAny, err := dialer.DialContext(ctx, "udp", (&net.UDPAddr{IP: remote.IP, Port: remote.Port}).String())
	if err != nil {
		_ = tcpConn.Close()
		return neterr.New(neterr.FailedToConnect, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.tcpConn = tcpConn
	c.udpConn = udpAny.(*net.UDPConn)
	c.outTCP = make(chan outboundTCP, outboundQueueSize)
	c.outUDP = make(chan outboundUDP, outboundQueueSize)
	c.done = make(chan struct{})
	c.cancel = cancel
	c.mu.Unlock()

	if err := wireproto.WriteClientTCP(c.tcpConn, cinfoKind, cinfo); err != nil {
		c.Stop()
		return neterr.New(neterr.FailedToWrite, err)
	}

	hdr, err := wireproto.ReadServerTCPHeader(c.tcpConn)
	if err != nil {
		c.Stop()
		return neterr.New(neterr.FailedToRead, err)
	}

	msg, err := c.owner.ConnectionResultBuilder(hdr)
	if err != nil {
		c.Stop()
		return neterr.New(neterr.UnknownMsgType, err)
	}

	if msg != nil {
		if err := wireproto.ReadPayload(c.tcpConn, hdr.Size, msg); err != nil {
			c.Stop()
			return neterr.New(neterr.FailedToRead, err)
		}
	}

	if !c.owner.ConnectionResult(hdr, msg) {
		c.Stop()
		return nil
	}

	c.mu.Lock()
	c.id = hdr.FromID
	c.mu.Unlock()

	c.connected.Store(true)

	go c.readTCPLoop()
	go c.writeTCPLoop()
	go c.readUDPLoop()
	go c.writeUDPLoop()

	return nil
}

// Stop shuts down both sockets and ends the write loops. It does not
// interrupt a Start that is still dialing. It is safe to call more
// than once.
func (c *Client) Stop() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		tcpConn := c.tcpConn
		udpConn := c.udpConn
		done := c.done
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.connected.Store(false)
		if tcpConn != nil {
			_ = tcpConn.CloseWrite()
			_ = tcpConn.Close()
		}
		if udpConn != nil {
			_ = udpConn.Close()
		}
		if done != nil {
			close(done)
		}
	})
}

// SendTCP enqueues a message for the write loop.
func (c *Client) SendTCP(kind wireproto.Kind, msg wireproto.Message) {
	if !c.IsConnected() {
		return
	}
	select {
	case c.outTCP <- outboundTCP{kind: kind, msg: msg}:
	case <-c.done:
	default:
		log.Warnf("TCP outbound queue full, dropping packet")
	}
}

// SendUDP enqueues a message for the write loop.
func (c *Client) SendUDP(kind wireproto.Kind, msg wireproto.Message) {
	if !c.IsConnected() {
		return
	}
	select {
	case c.outUDP <- outboundUDP{kind: kind, msg: msg}:
	case <-c.done:
	default:
		log.Warnf("UDP outbound queue full, dropping packet")
	}
}

func (c *Client) readTCPLoop() {
	for {
		hdr, err := wireproto.ReadServerTCPHeader(c.tcpConn)
		if err != nil {
			c.fail(neterr.FailedToRead, err)
			return
		}

		if hdr.Size == 0 {
			c.owner.NewPacketTCP(hdr.FromID, hdr.MsgType, nil)
			continue
		}

		msg, err := c.owner.BuilderTCP(hdr.MsgType, hdr.Size)
		if err != nil {
			c.fail(neterr.UnknownMsgType, err)
			return
		}

		if err := wireproto.ReadPayload(c.tcpConn, hdr.Size, msg); err != nil {
			c.fail(neterr.FailedToRead, err)
			return
		}

		c.owner.NewPacketTCP(hdr.FromID, hdr.MsgType, msg)
	}
}

func (c *Client) writeTCPLoop() {
	for {
		select {
		case <-c.done:
			return
		case p := <-c.outTCP:
			if err := wireproto.WriteClientTCP(c.tcpConn, p.kind, p.msg); err != nil {
				c.fail(neterr.FailedToWrite, err)
				return
			}
		}
	}
}

func (c *Client) readUDPLoop() {
	buf := make([]byte, maxUDPDatagram)
	for {
		n, err := c.udpConn.Read(buf)
		if err != nil {
			c.fail(neterr.FailedToRead, err)
			return
		}

		hdr, err := wireproto.ReadServerUDPHeader(buf[:n])
		if err != nil {
			c.fail(neterr.FailedToRead, err)
			return
		}

		payload := buf[wireproto.ServerUDPHeaderSize:n]

		msg, err := c.owner.BuilderUDP(hdr.MsgType, len(payload))
		if err != nil {
			c.fail(neterr.UnknownMsgType, err)
			return
		}
		if msg != nil {
			if err := msg.Decode(bytes.NewReader(payload)); err != nil {
				c.fail(neterr.FailedToRead, err)
				return
			}
		}

		if !c.owner.NewPacketUDP(hdr.FromID, hdr.MsgType, msg) {
			c.fail(neterr.UnknownMsgType, nil)
			return
		}
	}
}

func (c *Client) writeUDPLoop() {
	for {
		select {
		case <-c.done:
			return
		case p := <-c.outUDP:
			if err := wireproto.WriteClientUDP(c.udpConn, p.kind, p.msg); err != nil {
				c.fail(neterr.FailedToWrite, err)
				return
			}
		}
	}
}

func (c *Client) fail(kind neterr.Kind, cause error) {
	var reported *neterr.Error
	if cause == nil || errors.Is(cause, io.EOF) {
		reported = neterr.New(kind, nil)
	} else {
		reported = neterr.New(kind, cause)
	}
	c.Stop()
	c.owner.OnCloseConnection(reported)
}
