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

//go:build unix

// Package sockopt holds the one piece of this module that has no
// portable standard-library expression: binding a UDP socket to the
// exact local 4-tuple a just-accepted (or just-dialed) TCP socket used,
// which requires SO_REUSEADDR ahead of the bind (spec.md §9's "UDP
// same-endpoint trick"). Shared by wire and client so the accepting and
// connecting sides use the identical option.
package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ControlReuseAddr is a net.Dialer.Control function that sets
// SO_REUSEADDR on the about-to-be-bound socket.
func ControlReuseAddr(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
