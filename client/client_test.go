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

package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appleGun22/hcnet/host"
	"github.com/appleGun22/hcnet/neterr"
	"github.com/appleGun22/hcnet/wireproto"
)

const cinfoKind = wireproto.Kind(100)

type fakeUserHost struct{}

func (fakeUserHost) BuilderTCP(kind wireproto.Kind, size uint32) (wireproto.Message, error) {
	if kind == cinfoKind {
		return &wireproto.ClientInfo{}, nil
	}
	return nil, nil
}
func (fakeUserHost) BuilderUDP(kind wireproto.Kind, payloadSize int) (wireproto.Message, error) {
	return nil, nil
}
func (fakeUserHost) NewPacketTCP(fromID int16, kind wireproto.Kind, msg wireproto.Message) {}
func (fakeUserHost) NewPacketUDP(fromID int16, kind wireproto.Kind, msg wireproto.Message) bool {
	return true
}
func (fakeUserHost) OnCloseConnection(id int16, err *neterr.Error) {}
func (fakeUserHost) OnError(err *neterr.Error)                     {}

type fakeUserClient struct {
	mu        sync.Mutex
	accepted  bool
	rejected  wireproto.Kind
	snapshot  *wireproto.RosterSnapshot
	closedErr *neterr.Error
}

func (f *fakeUserClient) BuilderTCP(kind wireproto.Kind, size uint32) (wireproto.Message, error) {
	return nil, nil
}
func (f *fakeUserClient) BuilderUDP(kind wireproto.Kind, payloadSize int) (wireproto.Message, error) {
	return nil, nil
}
func (f *fakeUserClient) NewPacketTCP(fromID int16, kind wireproto.Kind, msg wireproto.Message) {}
func (f *fakeUserClient) NewPacketUDP(fromID int16, kind wireproto.Kind, msg wireproto.Message) bool {
	return true
}
func (f *fakeUserClient) OnCloseConnection(err *neterr.Error) {
	f.mu.Lock()
	f.closedErr = err
	f.mu.Unlock()
}
func (f *fakeUserClient) OnError(err *neterr.Error) {}

func (f *fakeUserClient) ConnectionResultBuilder(hdr wireproto.ServerTCPHeader) (wireproto.Message, error) {
	if hdr.MsgType == wireproto.AcceptedRoster {
		return &wireproto.RosterSnapshot{}, nil
	}
	return nil, nil
}

func (f *fakeUserClient) ConnectionResult(hdr wireproto.ServerTCPHeader, msg wireproto.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hdr.MsgType == wireproto.AcceptedRoster {
		f.accepted = true
		f.snapshot = msg.(*wireproto.RosterSnapshot)
		return true
	}
	f.rejected = hdr.MsgType
	return false
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return uint16(port)
}

func TestStartAcceptedInstallsRosterAndConnects(t *testing.T) {
	port := freePort(t)
	h, err := host.New(port, 2, 1, "alice_host", fakeUserHost{})
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Stop()

	owner := &fakeUserClient{}
	c := New(owner)
	err = c.Start(context.Background(), "127.0.0.1", port, cinfoKind, &wireproto.ClientInfo{Name: "bob"})
	require.NoError(t, err)

	assert.True(t, c.IsConnected())
	assert.Equal(t, int16(0), c.ID())

	owner.mu.Lock()
	defer owner.mu.Unlock()
	assert.True(t, owner.accepted)
	require.NotNil(t, owner.snapshot)
	assert.Equal(t, int64(2), owner.snapshot.MaxClients)
	require.Len(t, owner.snapshot.Clients, 1)
	assert.Equal(t, "alice_host", owner.snapshot.Clients[0].Name)
}

func TestStartRejectedOnDuplicateNameDoesNotConnect(t *testing.T) {
	port := freePort(t)
	h, err := host.New(port, 3, 1, "alice_host", fakeUserHost{})
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Stop()

	first := New(&fakeUserClient{})
	require.NoError(t, first.Start(context.Background(), "127.0.0.1", port, cinfoKind, &wireproto.ClientInfo{Name: "bob"}))
	defer first.Stop()

	require.Eventually(t, func() bool { return first.IsConnected() }, time.Second, time.Millisecond)

	owner := &fakeUserClient{}
	second := New(owner)
	err = second.Start(context.Background(), "127.0.0.1", port, cinfoKind, &wireproto.ClientInfo{Name: "bob"})
	require.NoError(t, err)

	assert.False(t, second.IsConnected())

	owner.mu.Lock()
	defer owner.mu.Unlock()
	assert.Equal(t, wireproto.DuplicateName, owner.rejected)
}
