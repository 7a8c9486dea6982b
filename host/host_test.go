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

package host

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appleGun22/hcnet/neterr"
	"github.com/appleGun22/hcnet/wireproto"
)

// clientInfoKind is the application-chosen msg_type this test suite
// uses for the admission handshake's client-info payload.
const clientInfoKind = wireproto.Kind(100)

type fakeUserHost struct {
	mu     sync.Mutex
	tcp    []wireproto.Kind
	closed []*neterr.Error
	errs   []*neterr.Error
}

func (f *fakeUserHost) BuilderTCP(kind wireproto.Kind, size uint32) (wireproto.Message, error) {
	switch kind {
	case clientInfoKind:
		return &wireproto.ClientInfo{}, nil
	case wireproto.AcceptedRoster:
		return &wireproto.RosterSnapshot{}, nil
	default:
		return nil, nil
	}
}

func (f *fakeUserHost) BuilderUDP(kind wireproto.Kind, payloadSize int) (wireproto.Message, error) {
	return nil, nil
}

func (f *fakeUserHost) NewPacketTCP(fromID int16, kind wireproto.Kind, msg wireproto.Message) {
	f.mu.Lock()
	f.tcp = append(f.tcp, kind)
	f.mu.Unlock()
}

func (f *fakeUserHost) NewPacketUDP(fromID int16, kind wireproto.Kind, msg wireproto.Message) bool {
	return true
}

func (f *fakeUserHost) OnCloseConnection(id int16, err *neterr.Error) {
	f.mu.Lock()
	f.closed = append(f.closed, err)
	f.mu.Unlock()
}

func (f *fakeUserHost) OnError(err *neterr.Error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

// connectAndSendCinfo dials the host's listen port, sends a client-info
// message with name, and returns the connection plus the decoded server
// response header/message.
func connectAndSendCinfo(t *testing.T, port uint16, name string) (net.Conn, wireproto.ServerTCPHeader, wireproto.Message) {
	t.Helper()

	conn, err := net.Dial("tcp", (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}).String())
	require.NoError(t, err)

	require.NoError(t, wireproto.WriteClientTCP(conn, clientInfoKind, &wireproto.ClientInfo{Name: name}))

	hdr, err := wireproto.ReadServerTCPHeader(conn)
	require.NoError(t, err)

	if hdr.Size == 0 {
		return conn, hdr, nil
	}

	var msg wireproto.Message
	if hdr.MsgType == wireproto.AcceptedRoster {
		msg = &wireproto.RosterSnapshot{}
	}
	require.NotNil(t, msg)
	require.NoError(t, wireproto.ReadPayload(conn, hdr.Size, msg))
	return conn, hdr, msg
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return uint16(port)
}

func TestAdmitSingleClientGetsRosterWithoutSelf(t *testing.T) {
	port := freePort(t)
	owner := &fakeUserHost{}
	h, err := New(port, 2, 1, "alice_host", owner)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Stop()

	conn, hdr, msg := connectAndSendCinfo(t, port, "bob")
	defer conn.Close()

	assert.Equal(t, wireproto.AcceptedRoster, hdr.MsgType)
	assert.Equal(t, int16(0), hdr.FromID)

	snap, ok := msg.(*wireproto.RosterSnapshot)
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.MaxClients)
	require.Len(t, snap.Clients, 1)
	assert.Equal(t, int16(1), snap.Clients[0].ID)
	assert.Equal(t, "alice_host", snap.Clients[0].Name)
}

func TestDuplicateNameIsRejected(t *testing.T) {
	port := freePort(t)
	owner := &fakeUserHost{}
	h, err := New(port, 3, 1, "alice_host", owner)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Stop()

	first, _, _ := connectAndSendCinfo(t, port, "bob")
	defer first.Close()

	require.Eventually(t, func() bool {
		return h.roster.Size() == 2
	}, time.Second, time.Millisecond)

	second, hdr, _ := connectAndSendCinfo(t, port, "bob")
	defer second.Close()

	assert.Equal(t, wireproto.DuplicateName, hdr.MsgType)
	assert.Equal(t, uint32(0), hdr.Size)
}

func TestServerFullIsRejected(t *testing.T) {
	port := freePort(t)
	owner := &fakeUserHost{}
	h, err := New(port, 1, 0, "alice_host", owner)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Stop()

	conn, hdr, _ := connectAndSendCinfo(t, port, "bob")
	defer conn.Close()

	assert.Equal(t, wireproto.ServerFull, hdr.MsgType)
}

func TestJoinIsBroadcastToExistingClients(t *testing.T) {
	port := freePort(t)
	owner := &fakeUserHost{}
	h, err := New(port, 3, 2, "alice_host", owner)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Stop()

	bob, _, _ := connectAndSendCinfo(t, port, "bob")
	defer bob.Close()

	carol, _, _ := connectAndSendCinfo(t, port, "carol")
	defer carol.Close()

	hdr, err := wireproto.ReadServerTCPHeader(bob)
	require.NoError(t, err)
	assert.Equal(t, wireproto.ClientJoined, hdr.MsgType)

	joined := &wireproto.ClientInfo{}
	require.NoError(t, wireproto.ReadPayload(bob, hdr.Size, joined))
	assert.Equal(t, "carol", joined.Name)
}

func TestDisconnectIsBroadcastHeaderOnly(t *testing.T) {
	port := freePort(t)
	owner := &fakeUserHost{}
	h, err := New(port, 3, 2, "alice_host", owner)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Stop()

	bob, _, _ := connectAndSendCinfo(t, port, "bob")
	defer bob.Close()

	carol, _, _ := connectAndSendCinfo(t, port, "carol")

	require.Eventually(t, func() bool {
		return h.roster.Size() == 3
	}, time.Second, time.Millisecond)

	joinHdr, err := wireproto.ReadServerTCPHeader(bob)
	require.NoError(t, err)
	require.Equal(t, wireproto.ClientJoined, joinHdr.MsgType)
	require.NoError(t, wireproto.ReadPayload(bob, joinHdr.Size, &wireproto.ClientInfo{}))

	require.NoError(t, carol.Close())

	hdr, err := wireproto.ReadServerTCPHeader(bob)
	require.NoError(t, err)
	assert.Equal(t, wireproto.ClientDisconnect, hdr.MsgType)
	assert.Equal(t, uint32(0), hdr.Size)
}
