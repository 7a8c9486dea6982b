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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetConnectedClientsReportsCurrentValue(t *testing.T) {
	SetConnectedClients(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(connectedClients))

	SetConnectedClients(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(connectedClients))
}

func TestAddPacketsFannedOutAccumulatesPerTransport(t *testing.T) {
	AddPacketsFannedOut("tcp", 2)
	AddPacketsFannedOut("tcp", 1)
	assert.Equal(t, float64(3), testutil.ToFloat64(packetsFannedOutTotal.WithLabelValues("tcp")))
}
