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

// Adapted from https://github.com/jackpal/Taipei-Torrent/blob/dd88a8bfac6431c01d959ce3c745e74b8a911793/IGD.go
// Copyright (c) 2010 Jack Palevich (https://github.com/jackpal/Taipei-Torrent/blob/dd88a8bfac6431c01d959ce3c745e74b8a911793/LICENSE)

// Package nat implements the IGD (Internet Gateway Device) helper: SSDP
// discovery, device-description parsing, and SOAP port-mapping calls,
// generalized to the Discover -> GetValidIGD -> AddPortMapping ->
// PullWanAddress state sequence, with a NAT-PMP + LAN-gateway-discovery
// fallback for routers with UPnP disabled, and a STUN fallback for
// learning the external address when no gateway cooperates at all.
package nat

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/appleGun22/hcnet/internal/logutil"
)

var log = logutil.New("nat")

// IGD holds the relevant properties of a discovered UPnP Internet
// Gateway Device.
type IGD struct {
	uuid           string
	friendlyName   string
	services       []igdService
	url            *url.URL
	localIPAddress string
}

type igdService struct {
	serviceURL string
	serviceURN string
}

// Protocol is the transport a port mapping applies to.
type Protocol string

const (
	TCP Protocol = "TCP"
	UDP Protocol = "UDP"
)

type upnpService struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
}

type upnpDevice struct {
	DeviceType   string        `xml:"deviceType"`
	FriendlyName string        `xml:"friendlyName"`
	Devices      []upnpDevice  `xml:"deviceList>device"`
	Services     []upnpService `xml:"serviceList>service"`
}

type upnpRoot struct {
	Device upnpDevice `xml:"device"`
}

// ssdpSearch runs a single SSDP M-SEARCH for deviceType and collects
// responses until budget elapses. knownDevices is consulted so a
// device already found under a different schema version's search
// isn't reported twice; the multi-version retry policy itself lives
// in Session.Discover, which is the caller for every use of this
// function.
func ssdpSearch(deviceType string, budget time.Duration, knownDevices []*IGD) []*IGD {
	ssdp := &net.UDPAddr{IP: []byte{239, 255, 255, 250}, Port: 1900}

	tpl := "M-SEARCH * HTTP/1.1\r\nHost: 239.255.255.250:1900\r\nSt: %s\r\nMan: \"ssdp:discover\"\r\nMx: %d\r\n\r\n"
	search := []byte(fmt.Sprintf(tpl, deviceType, int(budget.Seconds())))

	results := make([]*IGD, 0)
	resultChannel := make(chan *IGD, 8)

	socket, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		log.Infoln(err)
		return results
	}
	defer socket.Close()

	if err := socket.SetDeadline(time.Now().Add(budget)); err != nil {
		log.Infoln(err)
		return results
	}

	var wg sync.WaitGroup

	if _, err := socket.WriteTo(search, ssdp); err != nil {
		log.Infoln(err)
		return results
	}

	for {
		resp := make([]byte, 1500)
		n, _, err := socket.ReadFrom(resp)
		if err != nil {
			if e, ok := err.(net.Error); !ok || !e.Timeout() {
				log.Infoln(err)
			}
			break
		}
		wg.Add(1)
		go handleSearchResponse(deviceType, knownDevices, resp, n, resultChannel, &wg)
	}

	wg.Wait()
	close(resultChannel)

	for r := range resultChannel {
		results = append(results, r)
	}
	return results
}

func handleSearchResponse(deviceType string, knownDevices []*IGD, resp []byte, length int, resultChannel chan<- *IGD, wg *sync.WaitGroup) {
	defer wg.Done()

	reader := bufio.NewReader(bytes.NewBuffer(resp[:length]))
	response, err := http.ReadResponse(reader, &http.Request{})
	if err != nil {
		log.Infoln(err)
		return
	}

	if response.Header.Get("St") != deviceType {
		return
	}

	location := response.Header.Get("Location")
	if location == "" {
		log.Infoln("invalid IGD response: no location specified")
		return
	}
	descURL, err := url.Parse(location)
	if err != nil {
		log.Infoln("invalid IGD location: " + err.Error())
		return
	}

	usn := response.Header.Get("USN")
	if usn == "" {
		log.Infoln("invalid IGD response: USN not specified")
		return
	}
	uuid := strings.TrimLeft(strings.Split(usn, "::")[0], "uuid:")
	if matched, _ := regexp.MatchString("[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}", uuid); !matched {
		log.Infoln("invalid IGD response: invalid device UUID " + uuid)
		return
	}

	for _, known := range knownDevices {
		if uuid == known.uuid {
			return
		}
	}

	descResp, err := http.Get(location)
	if err != nil {
		log.Infoln(err)
		return
	}
	defer descResp.Body.Close()

	if descResp.StatusCode >= 400 {
		log.Infoln(errors.New(descResp.Status))
		return
	}

	var root upnpRoot
	if err := xml.NewDecoder(descResp.Body).Decode(&root); err != nil {
		log.Infoln(err)
		return
	}

	services, err := serviceDescriptions(location, root.Device)
	if err != nil {
		log.Infoln(err)
		return
	}

	localIP, err := localIPFor(descURL)
	if err != nil {
		log.Infoln(err)
		return
	}

	resultChannel <- &IGD{
		uuid:           uuid,
		friendlyName:   root.Device.FriendlyName,
		url:            descURL,
		services:       services,
		localIPAddress: localIP,
	}
}

// localIPFor determines the local interface address used to reach the
// IGD, by dialing it and inspecting the connection's local end.
func localIPFor(u *url.URL) (string, error) {
	conn, err := net.Dial("tcp", u.Host)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ip, _, err := net.SplitHostPort(conn.LocalAddr().String())
	return ip, err
}

func childDevices(d upnpDevice, deviceType string) []upnpDevice {
	var out []upnpDevice
	for _, dev := range d.Devices {
		if dev.DeviceType == deviceType {
			out = append(out, dev)
		}
	}
	return out
}

func childServices(d upnpDevice, serviceType string) []upnpService {
	var out []upnpService
	for _, svc := range d.Services {
		if svc.ServiceType == serviceType {
			out = append(out, svc)
		}
	}
	return out
}

func serviceDescriptions(rootURL string, device upnpDevice) ([]igdService, error) {
	var result []igdService

	switch device.DeviceType {
	case "urn:schemas-upnp-org:device:InternetGatewayDevice:1":
		result = append(result, igdServicesFor(rootURL, device,
			"urn:schemas-upnp-org:device:WANDevice:1",
			"urn:schemas-upnp-org:device:WANConnectionDevice:1",
			[]string{"urn:schemas-upnp-org:service:WANIPConnection:1", "urn:schemas-upnp-org:service:WANPPPConnection:1"})...)
	case "urn:schemas-upnp-org:device:InternetGatewayDevice:2":
		result = append(result, igdServicesFor(rootURL, device,
			"urn:schemas-upnp-org:device:WANDevice:2",
			"urn:schemas-upnp-org:device:WANConnectionDevice:2",
			[]string{"urn:schemas-upnp-org:service:WANIPConnection:2", "urn:schemas-upnp-org:service:WANPPPConnection:1"})...)
	default:
		return nil, fmt.Errorf("[%s] not an InternetGatewayDevice", rootURL)
	}

	if len(result) < 1 {
		return nil, fmt.Errorf("[%s] no compatible service descriptions found", rootURL)
	}
	return result, nil
}

func igdServicesFor(rootURL string, device upnpDevice, wanDeviceURN, wanConnectionURN string, serviceURNs []string) []igdService {
	var result []igdService

	for _, wanDevice := range childDevices(device, wanDeviceURN) {
		for _, conn := range childDevices(wanDevice, wanConnectionURN) {
			for _, urn := range serviceURNs {
				for _, svc := range childServices(conn, urn) {
					if svc.ControlURL == "" {
						continue
					}
					u, err := url.Parse(rootURL)
					if err != nil {
						continue
					}
					replaceRawPath(u, svc.ControlURL)
					result = append(result, igdService{serviceURL: u.String(), serviceURN: svc.ServiceType})
				}
			}
		}
	}
	return result
}

func replaceRawPath(u *url.URL, rp string) {
	var p, q string
	fs := strings.SplitN(rp, "?", 2)
	p = fs[0]
	if len(fs) > 1 {
		q = fs[1]
	}
	if strings.HasPrefix(p, "/") {
		u.Path = p
	} else {
		u.Path += p
	}
	u.RawQuery = q
}

func soapRequest(endpoint, device, function, message string) ([]byte, error) {
	tpl := `<?xml version="1.0" ?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>%s</s:Body>
</s:Envelope>
`
	body := fmt.Sprintf(tpl, message)

	req, err := http.NewRequest("POST", endpoint, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("User-Agent", "hcnet/1.0")
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, device, function))
	req.Header.Set("Connection", "Close")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	log.Debugln(req.Header.Get("SOAPAction"))

	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	resp, _ := io.ReadAll(r.Body)
	if r.StatusCode >= 400 {
		return resp, fmt.Errorf("%s: %s", function, r.Status)
	}
	return resp, nil
}

// addPortMapping installs a port mapping on every relevant service of
// the IGD. lease is in seconds; 0 requests a permanent mapping.
func (igd *IGD) addPortMapping(protocol Protocol, externalPort, internalPort int, description string, lease int) error {
	for _, svc := range igd.services {
		if err := svc.addPortMapping(igd.localIPAddress, protocol, externalPort, internalPort, description, lease); err != nil {
			return err
		}
	}
	return nil
}

func (s *igdService) addPortMapping(localIP string, protocol Protocol, externalPort, internalPort int, description string, lease int) error {
	tpl := `<u:AddPortMapping xmlns:u="%s">
	<NewRemoteHost></NewRemoteHost>
	<NewExternalPort>%d</NewExternalPort>
	<NewProtocol>%s</NewProtocol>
	<NewInternalPort>%d</NewInternalPort>
	<NewInternalClient>%s</NewInternalClient>
	<NewEnabled>1</NewEnabled>
	<NewPortMappingDescription>%s</NewPortMappingDescription>
	<NewLeaseDuration>%d</NewLeaseDuration>
	</u:AddPortMapping>`
	body := fmt.Sprintf(tpl, s.serviceURN, externalPort, protocol, internalPort, localIP, description, lease)

	_, err := soapRequest(s.serviceURL, s.serviceURN, "AddPortMapping", body)
	return err
}

type soapExternalIPEnvelope struct {
	XMLName xml.Name
	Body    soapExternalIPBody `xml:"Body"`
}

type soapExternalIPBody struct {
	XMLName  xml.Name
	Response externalIPResponse `xml:"GetExternalIPAddressResponse"`
}

type externalIPResponse struct {
	NewExternalIPAddress string `xml:"NewExternalIPAddress"`
}

// externalIPAddress queries the first service for the router's WAN
// address.
func (igd *IGD) externalIPAddress() (net.IP, error) {
	if len(igd.services) == 0 {
		return nil, errors.New("nat: IGD exposes no WANIPConnection-compatible service")
	}
	return igd.services[0].externalIPAddress()
}

func (s *igdService) externalIPAddress() (net.IP, error) {
	body := fmt.Sprintf(`<u:GetExternalIPAddress xmlns:u="%s" />`, s.serviceURN)

	resp, err := soapRequest(s.serviceURL, s.serviceURN, "GetExternalIPAddress", body)
	if err != nil {
		return nil, err
	}

	var env soapExternalIPEnvelope
	if err := xml.Unmarshal(resp, &env); err != nil {
		return nil, err
	}
	return net.ParseIP(env.Body.Response.NewExternalIPAddress), nil
}

type soapMappingEntryEnvelope struct {
	XMLName xml.Name
	Body    soapMappingEntryBody `xml:"Body"`
}

type soapMappingEntryBody struct {
	XMLName  xml.Name
	Response mappingEntryResponse `xml:"GetGenericPortMappingEntryResponse"`
}

type mappingEntryResponse struct {
	NewRemoteHost             string `xml:"NewRemoteHost"`
	NewExternalPort           int    `xml:"NewExternalPort"`
	NewProtocol               string `xml:"NewProtocol"`
	NewInternalPort           int    `xml:"NewInternalPort"`
	NewInternalClient         string `xml:"NewInternalClient"`
	NewEnabled                int    `xml:"NewEnabled"`
	NewPortMappingDescription string `xml:"NewPortMappingDescription"`
	NewLeaseDuration          int    `xml:"NewLeaseDuration"`
}

// genericPortMappingEntry retrieves the mapping table row at index,
// or an error once index runs past the end of the table (the SOAP
// fault the IGD returns for an out-of-range index).
func (s *igdService) genericPortMappingEntry(index int) (mappingEntryResponse, error) {
	body := fmt.Sprintf(`<u:GetGenericPortMappingEntry xmlns:u="%s"><NewPortMappingIndex>%d</NewPortMappingIndex></u:GetGenericPortMappingEntry>`, s.serviceURN, index)

	resp, err := soapRequest(s.serviceURL, s.serviceURN, "GetGenericPortMappingEntry", body)
	if err != nil {
		return mappingEntryResponse{}, err
	}

	var env soapMappingEntryEnvelope
	if err := xml.Unmarshal(resp, &env); err != nil {
		return mappingEntryResponse{}, err
	}
	return env.Body.Response, nil
}

// portMappingExists scans the IGD's mapping table for a row matching
// (wanPort, lanPort, description), per spec.md §4.8.
func (igd *IGD) portMappingExists(wanPort, lanPort int, description string) bool {
	for _, svc := range igd.services {
		for i := 0; ; i++ {
			entry, err := svc.genericPortMappingEntry(i)
			if err != nil {
				break
			}
			if entry.NewExternalPort == wanPort && entry.NewInternalPort == lanPort && entry.NewPortMappingDescription == description {
				return true
			}
		}
	}
	return false
}

// UUID is the IGD's SSDP device UUID.
func (igd *IGD) UUID() string { return igd.uuid }

// FriendlyName is the IGD's advertised device name.
func (igd *IGD) FriendlyName() string { return igd.friendlyName }
