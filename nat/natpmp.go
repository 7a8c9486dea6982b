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
	"net"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// natPMPFallback requests the same port mapping over NAT-PMP against
// the given gateway, for routers that have UPnP disabled but speak the
// older Apple-originated protocol.
type natPMPFallback struct {
	client *natpmp.Client
}

func newNATPMPFallback(gatewayIP net.IP) *natPMPFallback {
	return &natPMPFallback{client: natpmp.NewClient(gatewayIP)}
}

func (f *natPMPFallback) addPortMapping(protocol Protocol, internalPort, externalPort, lease int) (int, error) {
	proto := "udp"
	if protocol == TCP {
		proto = "tcp"
	}
	res, err := f.client.AddPortMapping(proto, internalPort, externalPort, lease)
	if err != nil {
		return 0, err
	}
	return int(res.MappedExternalPort), nil
}

func (f *natPMPFallback) externalIPAddress() (net.IP, error) {
	res, err := f.client.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	ip := res.ExternalIPAddress
	return net.IPv4(ip[0], ip[1], ip[2], ip[3]), nil
}
