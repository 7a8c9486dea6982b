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
	"encoding/xml"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalIPAddressParsing(t *testing.T) {
	soapResponse := []byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
	<u:GetExternalIPAddressResponse xmlns:u="urn:schemas-upnp-org:service:WANIPConnection:1">
	<NewExternalIPAddress>1.2.3.4</NewExternalIPAddress>
	</u:GetExternalIPAddressResponse>
</s:Body>
</s:Envelope>`)

	var env soapExternalIPEnvelope
	require.NoError(t, xml.Unmarshal(soapResponse, &env))
	assert.Equal(t, "1.2.3.4", env.Body.Response.NewExternalIPAddress)
}

func TestGenericPortMappingEntryParsing(t *testing.T) {
	soapResponse := []byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
	<u:GetGenericPortMappingEntryResponse xmlns:u="urn:schemas-upnp-org:service:WANIPConnection:1">
	<NewRemoteHost></NewRemoteHost>
	<NewExternalPort>22000</NewExternalPort>
	<NewProtocol>TCP</NewProtocol>
	<NewInternalPort>22000</NewInternalPort>
	<NewInternalClient>192.168.1.20</NewInternalClient>
	<NewEnabled>1</NewEnabled>
	<NewPortMappingDescription>hcnet</NewPortMappingDescription>
	<NewLeaseDuration>0</NewLeaseDuration>
	</u:GetGenericPortMappingEntryResponse>
</s:Body>
</s:Envelope>`)

	var env soapMappingEntryEnvelope
	require.NoError(t, xml.Unmarshal(soapResponse, &env))
	assert.Equal(t, 22000, env.Body.Response.NewExternalPort)
	assert.Equal(t, 22000, env.Body.Response.NewInternalPort)
	assert.Equal(t, "hcnet", env.Body.Response.NewPortMappingDescription)
}

func TestPortMappingExistsFalseWhenTableUnreachable(t *testing.T) {
	svc := &igdService{}
	igd := &IGD{services: []igdService{*svc}}

	assert.False(t, igd.portMappingExists(22000, 22000, "hcnet"))
}

func TestSessionStepsFailOutOfOrderWithoutAnIGD(t *testing.T) {
	orig := stunDiscover
	stunDiscover = func() (net.IP, error) { return nil, errors.New("no network in test") }
	defer func() { stunDiscover = orig }()

	s := NewSession("hcnet", 22000, 22000)

	assert.Error(t, s.AddPortMapping())
	assert.Error(t, s.PullWanAddress())
	assert.False(t, s.PortMappingExists())
}

func TestPullWanAddressFallsBackToSTUNWithoutAGateway(t *testing.T) {
	orig := stunDiscover
	stunDiscover = func() (net.IP, error) { return net.ParseIP("203.0.113.9"), nil }
	defer func() { stunDiscover = orig }()

	s := NewSession("hcnet", 22000, 22000)

	require.NoError(t, s.PullWanAddress())
	assert.Equal(t, "203.0.113.9", s.WanAddress().String())
	assert.True(t, s.UsedSTUN())
}

func TestReplaceRawPathHandlesQueryStrings(t *testing.T) {
	u, err := url.Parse("http://192.168.1.1:1234/igd")
	require.NoError(t, err)

	replaceRawPath(u, "/ctl/IPConn?x=1")
	assert.Equal(t, "/ctl/IPConn", u.Path)
	assert.Equal(t, "x=1", u.RawQuery)
}
