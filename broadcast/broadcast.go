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

// Package broadcast implements the bounded multi-producer/single-
// consumer fan-out queue (spec §4.4). The host runs one Queue per
// transport; a dedicated consumer goroutine wakes on each enqueue,
// snapshots the roster under its shared lock, and posts the packet to
// every live wire except the sender. Dead wires observed mid-iteration
// are flagged and evicted in a second, exclusive-lock pass, mirroring
// the two-phase discipline in host.hpp's DequeueTCP/DequeueUDP.
package broadcast

import (
	"sync"

	"github.com/appleGun22/hcnet/roster"
)

// Wire is the capability set broadcast needs from a per-peer recipient.
type Wire interface {
	IsOpen() bool
}

// Packet is one fanned-out unit of work: the stamped sender id plus an
// opaque payload the caller's deliver function knows how to frame and
// send. T is typically a small tuple (message kind, sender id, typed
// message), kept generic so broadcast never needs to know the wire
// protocol.
type Packet[T any] struct {
	FromID  int16
	Payload T
}

// Queue is a bounded blocking broadcast queue over a roster of wires
// of type W, carrying payloads of type T.
type Queue[W Wire, T any] struct {
	ch       chan *Packet[T]
	roster   *roster.Roster[W]
	hostID   int16
	deliver  func(w W, id int, p *Packet[T])
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Queue with the given backlog capacity and starts its
// consumer goroutine. hostID is the value stamped on packets the host
// itself originates (as opposed to a relayed client packet); no slot is
// skipped for such packets, so they go to every live wire.
func New[W Wire, T any](capacity int, r *roster.Roster[W], hostID int16, deliver func(w W, id int, p *Packet[T])) *Queue[W, T] {
	q := &Queue[W, T]{
		ch:      make(chan *Packet[T], capacity),
		roster:  r,
		hostID:  hostID,
		deliver: deliver,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Send enqueues p for fan-out. It blocks if the queue's backlog is full.
func (q *Queue[W, T]) Send(p *Packet[T]) {
	q.ch <- p
}

// Stop enqueues the sentinel that unblocks and terminates the consumer
// goroutine. It is safe to call more than once.
func (q *Queue[W, T]) Stop() {
	q.stopOnce.Do(func() {
		q.ch <- nil
	})
}

// Wait blocks until the consumer goroutine has exited after Stop.
func (q *Queue[W, T]) Wait() {
	<-q.done
}

func (q *Queue[W, T]) run() {
	defer close(q.done)
	for p := range q.ch {
		if p == nil {
			return
		}
		q.fanOut(p)
	}
}

func (q *Queue[W, T]) fanOut(p *Packet[T]) {
	fromSender := p.FromID != q.hostID

	var deadIDs []int
	q.roster.ForEach(func(w W, id int) {
		if fromSender && int16(id) == p.FromID {
			return
		}
		if !w.IsOpen() {
			deadIDs = append(deadIDs, id)
			return
		}
		q.deliver(w, id, p)
	})

	if len(deadIDs) > 0 {
		go func(ids []int) {
			for _, id := range ids {
				q.roster.EraseAt(id)
			}
		}(deadIDs)
	}
}
