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

package wireproto

import (
	"fmt"
	"io"

	"github.com/appleGun22/hcnet/buffer"
)

// ClientDescriptor is one entry of a RosterSnapshot: a roster slot id
// plus the display name occupying it.
type ClientDescriptor struct {
	ID   int16
	Name string
}

// RosterSnapshot is the AcceptedRoster payload (spec §4.6 item 3):
//
//	{ max_clients: i64, clients_count: i64,
//	  (name_size: u64, id: u64, name_bytes) x clients_count }
//
// The wire id field is u64 while PeerId is int16 everywhere else; Decode
// narrows and rejects ids outside [0, capacity), per the Open Question
// in spec.md §9.
type RosterSnapshot struct {
	MaxClients int64
	Clients    []ClientDescriptor
}

func (s *RosterSnapshot) Encode() [][]byte {
	b := buffer.New()
	b.AppendUint64(uint64(s.MaxClients))
	b.AppendUint64(uint64(len(s.Clients)))
	for _, c := range s.Clients {
		b.AppendUint64(uint64(len(c.Name)))
		b.AppendUint64(uint64(c.ID))
		b.AppendString(c.Name)
	}
	return [][]byte{b.Bytes()}
}

func (s *RosterSnapshot) Decode(r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("wireproto: decode roster snapshot: %w", err)
	}
	b := buffer.FromBytes(payload)

	maxClients, err := b.TakeUint64()
	if err != nil {
		return fmt.Errorf("wireproto: decode roster snapshot max_clients: %w", err)
	}
	count, err := b.TakeUint64()
	if err != nil {
		return fmt.Errorf("wireproto: decode roster snapshot clients_count: %w", err)
	}

	s.MaxClients = int64(maxClients)
	s.Clients = make([]ClientDescriptor, 0, count)

	for i := uint64(0); i < count; i++ {
		nameSize, err := b.TakeUint64()
		if err != nil {
			return fmt.Errorf("wireproto: decode roster snapshot entry %d name_size: %w", i, err)
		}
		rawID, err := b.TakeUint64()
		if err != nil {
			return fmt.Errorf("wireproto: decode roster snapshot entry %d id: %w", i, err)
		}
		if rawID >= uint64(maxClients) {
			return fmt.Errorf("wireproto: decode roster snapshot entry %d: id %d out of range [0, %d)", i, rawID, maxClients)
		}
		name, err := b.TakeString(int(nameSize))
		if err != nil {
			return fmt.Errorf("wireproto: decode roster snapshot entry %d name: %w", i, err)
		}
		s.Clients = append(s.Clients, ClientDescriptor{ID: int16(rawID), Name: name})
	}
	return nil
}
