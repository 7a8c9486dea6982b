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

// ClientInfo is the payload a client sends on connect: its requested
// display name. Grounded on the original chat example's
// client_info{name} payload.
type ClientInfo struct {
	Name string
}

func (c *ClientInfo) Encode() [][]byte {
	b := buffer.New()
	b.AppendUint64(uint64(len(c.Name)))
	b.AppendString(c.Name)
	return [][]byte{b.Bytes()}
}

func (c *ClientInfo) Decode(r io.Reader) error {
	nameLen, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("wireproto: decode client info: %w", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return fmt.Errorf("wireproto: decode client info name: %w", err)
	}
	c.Name = string(name)
	return nil
}

func readUint64(r io.Reader) (uint64, error) {
	var raw [8]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return 0, err
	}
	b := buffer.FromBytes(raw[:])
	return b.TakeUint64()
}
