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

package nat

import (
	"errors"
	"net"

	"github.com/ccding/go-stun/stun"
)

// defaultSTUNServer is queried when PullWanAddress has no IGD or
// NAT-PMP gateway to ask, or when the one it has refuses the request.
// Unlike UPnP/NAT-PMP, STUN asks a server outside the LAN, so it needs
// no gateway cooperation and works even behind a router with both
// UPnP and NAT-PMP disabled; it can only report the mapped address, not
// install a port mapping.
const defaultSTUNServer = "stun.l.google.com:19302"

// stunDiscover is a var so tests can stub out the real network call.
var stunDiscover = externalAddressViaSTUN

func externalAddressViaSTUN() (net.IP, error) {
	client := stun.NewClient()
	client.SetServerAddr(defaultSTUNServer)

	_, host, err := client.Discover()
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, errors.New("nat: STUN server reported no mapped address")
	}

	ip := net.ParseIP(host.IP())
	if ip == nil {
		return nil, errors.New("nat: STUN server reported an unparseable address")
	}
	return ip, nil
}
