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

import "github.com/appleGun22/hcnet/wire"

// record is one roster slot's value: the display name that appears in
// RosterSnapshot blobs, plus the wire delivering to it. The host's own
// slot has a nil Wire and is never a fan-out recipient.
type record struct {
	Name string
	Wire *wire.Wire
}

// IsOpen satisfies broadcast.Wire. The host's own slot (Wire == nil)
// reports open so the broadcast reaper never evicts it.
func (r *record) IsOpen() bool {
	return r.Wire == nil || r.Wire.IsOpen()
}
