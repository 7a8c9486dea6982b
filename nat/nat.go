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
	"time"

	"github.com/appleGun22/hcnet/neterr"
)

// discoveryBudget is the only timeout in the core (spec.md §5): SSDP
// gets this long to hear back from an IGD before the session falls
// back to NAT-PMP.
const discoveryBudget = 2000 * time.Millisecond

// Session is a thin state machine over IGD/NAT-PMP port mapping:
// Discover, GetValidIGD, AddPortMapping, PullWanAddress, in that order.
// AddPortMapping before a valid IGD is selected returns an error rather
// than panicking, since the sequence is driven by the embedding
// application rather than the library; PullWanAddress without a gateway
// still tries its STUN fallback and can succeed.
type Session struct {
	candidates []*IGD
	igd        *IGD
	pmp        *natPMPFallback
	pmpGateway net.IP

	lanAddress net.IP
	wanAddress net.IP

	description  string
	lanPort      int
	wanPort      int
	mappedViaPMP bool
	wanViaSTUN   bool
}

// NewSession constructs an empty Session. description identifies this
// application's mappings in the router's table (used by
// PortMappingExists); lanPort/wanPort are the ports to map for both
// TCP and UDP.
func NewSession(description string, lanPort, wanPort int) *Session {
	return &Session{description: description, lanPort: lanPort, wanPort: wanPort}
}

// igdDeviceTypes are the device-type URNs Discover searches for, newest
// schema version first; a device responding to the 2-schema query is
// not searched for again under the 1-schema query.
var igdDeviceTypes = []string{
	"urn:schemas-upnp-org:device:InternetGatewayDevice:2",
	"urn:schemas-upnp-org:device:InternetGatewayDevice:1",
}

// Discover broadcasts an SSDP probe for each known IGD schema version,
// each with the fixed discovery budget, and records every responding
// IGD as a candidate. Retrying across schema versions (rather than
// stopping at the first that yields a result) is this Session's own
// policy, not the SSDP primitive's.
func (s *Session) Discover() {
	log.Infoln("starting UPnP discovery")

	var found []*IGD
	for _, deviceType := range igdDeviceTypes {
		found = append(found, ssdpSearch(deviceType, discoveryBudget, found)...)
	}

	if len(found) > 0 {
		log.Debugln("UPnP discovery result:")
		for _, d := range found {
			log.Debugln("[" + d.uuid + "]")
			for _, svc := range d.services {
				log.Debugln("* " + svc.serviceURL)
			}
		}
	}
	log.Infof("UPnP discovery complete (found %d device(s))", len(found))

	s.candidates = found
}

// GetValidIGD selects the first candidate IGD, capturing its LAN
// address. If SSDP discovery found nothing, it falls back to LAN
// gateway discovery for a subsequent NAT-PMP attempt.
func (s *Session) GetValidIGD() error {
	if len(s.candidates) > 0 {
		s.igd = s.candidates[0]
		s.lanAddress = net.ParseIP(s.igd.localIPAddress)
		return nil
	}

	gw, err := discoverLANGateway()
	if err != nil {
		return neterr.NewNAT(neterr.NATIGDNotFound, err)
	}
	s.pmpGateway = gw
	s.pmp = newNATPMPFallback(gw)
	return nil
}

// AddPortMapping installs a permanent (lease=0) mapping for the
// configured WAN/LAN ports, for both TCP and UDP, on whichever
// transport GetValidIGD selected.
func (s *Session) AddPortMapping() error {
	if s.igd != nil {
		if err := s.igd.addPortMapping(TCP, s.wanPort, s.lanPort, s.description, 0); err != nil {
			return neterr.NewNAT(neterr.NATPortMapping, err)
		}
		if err := s.igd.addPortMapping(UDP, s.wanPort, s.lanPort, s.description, 0); err != nil {
			return neterr.NewNAT(neterr.NATPortMapping, err)
		}
		return nil
	}

	if s.pmp != nil {
		if _, err := s.pmp.addPortMapping(TCP, s.lanPort, s.wanPort, 0); err != nil {
			return neterr.NewNAT(neterr.NATPortMapping, err)
		}
		if _, err := s.pmp.addPortMapping(UDP, s.lanPort, s.wanPort, 0); err != nil {
			return neterr.NewNAT(neterr.NATPortMapping, err)
		}
		s.mappedViaPMP = true
		return nil
	}

	return neterr.NewNAT(neterr.NATIGDNotFound, nil)
}

// PullWanAddress queries the selected IGD (or the NAT-PMP gateway) for
// the external address and caches it for WanAddress. If that query
// fails, or no IGD/NAT-PMP gateway was ever found, it falls back to a
// STUN query against an external server: STUN needs no gateway
// cooperation at all, so it is tried even when every gateway-based
// path has come up empty, at the cost of only reporting the mapped
// address rather than installing a port mapping.
func (s *Session) PullWanAddress() error {
	if s.igd != nil {
		if ip, err := s.igd.externalIPAddress(); err == nil {
			s.wanAddress = ip
			return nil
		}
	}

	if s.pmp != nil {
		if ip, err := s.pmp.externalIPAddress(); err == nil {
			s.wanAddress = ip
			return nil
		}
	}

	if ip, err := stunDiscover(); err == nil {
		s.wanAddress = ip
		s.wanViaSTUN = true
		return nil
	}

	return neterr.NewNAT(neterr.NATPullWanAddress, nil)
}

// PortMappingExists reports whether a mapping matching this session's
// (wanPort, lanPort, description) is already present in the IGD's
// table. It always reports false over the NAT-PMP fallback path, which
// exposes no mapping table to query.
func (s *Session) PortMappingExists() bool {
	if s.igd == nil {
		return false
	}
	return s.igd.portMappingExists(s.wanPort, s.lanPort, s.description)
}

// LanAddress returns the local address used to reach the IGD, once
// GetValidIGD has selected one. It is nil when GetValidIGD fell back to
// the NAT-PMP gateway.
func (s *Session) LanAddress() net.IP {
	return s.lanAddress
}

// WanAddress returns the external address discovered by
// PullWanAddress.
func (s *Session) WanAddress() net.IP {
	return s.wanAddress
}

// UsedFallback reports whether the mapping was installed over NAT-PMP
// rather than UPnP, i.e. no SSDP response was ever received.
func (s *Session) UsedFallback() bool {
	return s.mappedViaPMP
}

// UsedSTUN reports whether WanAddress came from the STUN fallback
// rather than the selected IGD or NAT-PMP gateway.
func (s *Session) UsedSTUN() bool {
	return s.wanViaSTUN
}
