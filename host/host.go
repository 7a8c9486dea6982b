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

// Package host implements the accept loop, admission handshake, roster
// management, and fan-out of the single server endpoint (spec §4.6),
// grounded on host.hpp's Host<Hoster>.
package host

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/appleGun22/hcnet/broadcast"
	"github.com/appleGun22/hcnet/internal/logutil"
	"github.com/appleGun22/hcnet/metrics"
	"github.com/appleGun22/hcnet/neterr"
	"github.com/appleGun22/hcnet/roster"
	"github.com/appleGun22/hcnet/wire"
	"github.com/appleGun22/hcnet/wireproto"
)

var log = logutil.New("host")

const broadcastQueueCapacity = 256

// UserHost is the capability set the embedding application implements
// (spec §6). BuilderTCP/BuilderUDP construct empty typed messages from
// a received header; NewPacketTCP/NewPacketUDP deliver completed
// packets; OnCloseConnection and OnError are the sole failure surface.
type UserHost interface {
	BuilderTCP(kind wireproto.Kind, size uint32) (wireproto.Message, error)
	BuilderUDP(kind wireproto.Kind, payloadSize int) (wireproto.Message, error)
	NewPacketTCP(fromID int16, kind wireproto.Kind, msg wireproto.Message)
	NewPacketUDP(fromID int16, kind wireproto.Kind, msg wireproto.Message) bool
	OnCloseConnection(id int16, err *neterr.Error)
	OnError(err *neterr.Error)
}

// Host is the single server endpoint that owns the roster.
type Host struct {
	port     uint16
	hostID   int16
	capacity int16
	owner    UserHost

	roster *roster.Roster[*record]

	outTCP *broadcast.Queue[*record, taggedMessage]
	outUDP *broadcast.Queue[*record, taggedMessage]

	listener *net.TCPListener

	group  *errgroup.Group
	cancel context.CancelFunc

	running atomic.Bool
	mu      sync.Mutex
}

// New constructs a Host that will listen on port, with a roster of the
// given capacity (which includes the host's own slot), identifying
// itself as hostName at hostID.
func New(port uint16, capacity int16, hostID int16, hostName string, owner UserHost) (*Host, error) {
	if hostID < 0 || int(hostID) >= int(capacity) {
		return nil, fmt.Errorf("host: hostID %d out of range [0, %d)", hostID, capacity)
	}

	r := roster.New[*record](int(capacity))
	r.EmplaceAt(int(hostID), &record{Name: hostName})

	h := &Host{
		port:     port,
		hostID:   hostID,
		capacity: capacity,
		owner:    owner,
		roster:   r,
	}
	return h, nil
}

// HostID returns the host's own roster slot id.
func (h *Host) HostID() int16 {
	return h.hostID
}

// IsRunning reports whether the host's accept loop is active.
func (h *Host) IsRunning() bool {
	return h.running.Load()
}

// Start begins listening and accepting connections.
func (h *Host) Start() error {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: int(h.port)})
	if err != nil {
		return neterr.New(neterr.FailedToRunReactor, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	h.mu.Lock()
	h.listener = ln
	h.group = group
	h.cancel = cancel
	h.outTCP = broadcast.New(broadcastQueueCapacity, h.roster, h.hostID, h.deliverTCP)
	h.outUDP = broadcast.New(broadcastQueueCapacity, h.roster, h.hostID, h.deliverUDP)
	h.mu.Unlock()

	h.running.Store(true)
	metrics.SetConnectedClients(float64(h.roster.Size() - 1))

	group.Go(func() error {
		return h.acceptLoop(gctx)
	})

	return nil
}

// Stop closes the listener, stops accepting, and drains the broadcast
// queues. Individual live wires are closed as their sockets error out
// once the listener and process shut down; Stop itself does not foribly
// sever already-admitted peers.
func (h *Host) Stop() {
	h.mu.Lock()
	listener := h.listener
	cancelFn := h.cancel
	group := h.group
	outTCP := h.outTCP
	outUDP := h.outUDP
	h.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	if cancelFn != nil {
		cancelFn()
	}
	if group != nil {
		_ = group.Wait()
	}
	if outTCP != nil {
		outTCP.Stop()
		outTCP.Wait()
	}
	if outUDP != nil {
		outUDP.Stop()
		outUDP.Wait()
	}

	h.running.Store(false)
}

func (h *Host) acceptLoop(ctx context.Context) error {
	for {
		conn, err := h.listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.owner.OnError(neterr.New(neterr.FailedToConnect, err))
			continue
		}
		go h.handleAccept(ctx, conn)
	}
}

func (h *Host) handleAccept(ctx context.Context, conn *net.TCPConn) {
	w, err := wire.NewAccepting(ctx, conn, h)
	if err != nil {
		h.owner.OnError(err.(*neterr.Error))
		return
	}

	kind, msg, err := w.ReadClientInfo()
	if err != nil {
		return
	}

	name := clientName(kind, msg)

	var (
		assignedID  int16 = -1
		rejectKind  wireproto.Kind
		accepted          = false
		snapshotOut *wireproto.RosterSnapshot
	)

	h.roster.WithLock(func(r *roster.Roster[*record]) {
		if _, _, exists := r.FirstIfLocked(func(v *record) bool { return v.Name == name }); exists {
			rejectKind = wireproto.DuplicateName
			return
		}

		id, ok := r.NextEmptyIndexLocked()
		if !ok {
			rejectKind = wireproto.ServerFull
			return
		}

		var clients []wireproto.ClientDescriptor
		r.ForEachLocked(func(v *record, slot int) {
			clients = append(clients, wireproto.ClientDescriptor{ID: int16(slot), Name: v.Name})
		})

		r.EmplaceAtLocked(id, &record{Name: name, Wire: w})

		assignedID = int16(id)
		snapshotOut = &wireproto.RosterSnapshot{MaxClients: int64(h.capacity), Clients: clients}
		accepted = true
	})

	if !accepted {
		_ = w.Reject(rejectKind)
		return
	}

	if err := w.WriteHinfo(wireproto.AcceptedRoster, assignedID, snapshotOut); err != nil {
		h.roster.EraseAt(int(assignedID))
		return
	}

	w.MarkLive(assignedID)
	metrics.SetConnectedClients(float64(h.roster.Size() - 1))

	h.SendTCP(wireproto.ClientJoined, assignedID, &wireproto.ClientInfo{Name: name})
}

func clientName(_ wireproto.Kind, msg wireproto.Message) string {
	if ci, ok := msg.(*wireproto.ClientInfo); ok {
		return ci.Name
	}
	return ""
}

// SendTCP fans a packet out over TCP to every live wire except fromID
// (use HostID() to originate a server announcement to everyone).
func (h *Host) SendTCP(kind wireproto.Kind, fromID int16, msg wireproto.Message) {
	h.outTCP.Send(&broadcast.Packet[taggedMessage]{FromID: fromID, Payload: taggedMessage{kind: kind, from: fromID, msg: msg}})
}

// SendUDP fans a packet out over UDP to every live wire except fromID.
func (h *Host) SendUDP(kind wireproto.Kind, fromID int16, msg wireproto.Message) {
	h.outUDP.Send(&broadcast.Packet[taggedMessage]{FromID: fromID, Payload: taggedMessage{kind: kind, from: fromID, msg: msg}})
}

// taggedMessage is the broadcast payload carried from SendTCP/SendUDP
// to deliverTCP/deliverUDP: the header fields the recipient wire needs
// to frame its own copy of the packet.
type taggedMessage struct {
	kind wireproto.Kind
	from int16
	msg  wireproto.Message
}

func (h *Host) deliverTCP(w *record, id int, p *broadcast.Packet[taggedMessage]) {
	if w.Wire == nil {
		return
	}
	w.Wire.SendTCP(p.Payload.kind, p.Payload.from, p.Payload.msg)
	metrics.AddPacketsFannedOut("tcp", 1)
}

func (h *Host) deliverUDP(w *record, id int, p *broadcast.Packet[taggedMessage]) {
	if w.Wire == nil {
		return
	}
	w.Wire.SendUDP(p.Payload.kind, p.Payload.from, p.Payload.msg)
	metrics.AddPacketsFannedOut("udp", 1)
}

// wire.Owner implementation, shared by every wire this host accepts.

func (h *Host) BuilderTCP(kind wireproto.Kind, size uint32) (wireproto.Message, error) {
	return h.owner.BuilderTCP(kind, size)
}

func (h *Host) BuilderUDP(kind wireproto.Kind, payloadSize int) (wireproto.Message, error) {
	return h.owner.BuilderUDP(kind, payloadSize)
}

func (h *Host) NewPacketTCP(id int16, kind wireproto.Kind, msg wireproto.Message) {
	h.owner.NewPacketTCP(id, kind, msg)
}

func (h *Host) NewPacketUDP(id int16, kind wireproto.Kind, msg wireproto.Message) bool {
	return h.owner.NewPacketUDP(id, kind, msg)
}

func (h *Host) OnCloseConnection(id int16, err *neterr.Error) {
	h.roster.EraseAt(int(id))
	metrics.SetConnectedClients(float64(h.roster.Size() - 1))
	h.owner.OnCloseConnection(id, err)
	h.SendTCP(wireproto.ClientDisconnect, id, nil)
}
