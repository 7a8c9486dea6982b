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

// Package metrics holds the Prometheus collectors host registers
// against the default registerer on import, so an embedding
// application opts in simply by exposing /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hcnet",
		Subsystem: "host",
		Name:      "connected_clients",
		Help:      "Number of clients currently occupying a roster slot.",
	})

	packetsFannedOutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hcnet",
		Subsystem: "host",
		Name:      "packets_fanned_out_total",
		Help:      "Packets delivered by the broadcast queue, by transport.",
	}, []string{"transport"})
)

// SetConnectedClients records the roster's current occupancy,
// excluding the host's own slot.
func SetConnectedClients(n float64) {
	connectedClients.Set(n)
}

// AddPacketsFannedOut records deliveries made by one fan-out pass on
// the given transport ("tcp" or "udp").
func AddPacketsFannedOut(transport string, n float64) {
	packetsFannedOutTotal.WithLabelValues(transport).Add(n)
}
