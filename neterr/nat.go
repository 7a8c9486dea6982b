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

package neterr

import "fmt"

// NATKind enumerates the IGD/NAT-PMP error taxonomy (spec §7).
type NATKind int

const (
	NATDiscover NATKind = iota
	NATIGDNotFound
	NATIGDNotConnected
	NATUPnPWithoutIGD
	NATPortMapping
	NATPullWanAddress
	NATUnspecified
)

func (k NATKind) String() string {
	switch k {
	case NATDiscover:
		return "couldn't discover UPnP devices on the network"
	case NATIGDNotFound:
		return "no IGD found"
	case NATIGDNotConnected:
		return "a valid IGD has been found but it reported as not connected"
	case NATUPnPWithoutIGD:
		return "UPnP device has been found but was not recognized as an IGD"
	case NATPortMapping:
		return "failed to add a port mapping"
	case NATPullWanAddress:
		return "failed to obtain the WAN IP address"
	default:
		return "unspecified"
	}
}

// NATError is the error type returned by the nat package's state steps.
type NATError struct {
	Kind  NATKind
	Cause error
}

func NewNAT(kind NATKind, cause error) *NATError {
	return &NATError{Kind: kind, Cause: cause}
}

func (e *NATError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *NATError) Unwrap() error { return e.Cause }
