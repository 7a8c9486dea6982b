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

package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appleGun22/hcnet/roster"
)

type fakeWire struct {
	open bool
}

func (w *fakeWire) IsOpen() bool { return w.open }

func TestFanOutSkipsSender(t *testing.T) {
	r := roster.New[*fakeWire](3)
	r.EmplaceAt(0, &fakeWire{open: true})
	r.EmplaceAt(1, &fakeWire{open: true})
	r.EmplaceAt(2, &fakeWire{open: true})

	var mu sync.Mutex
	var delivered []int

	q := New[*fakeWire, string](4, r, -1, func(w *fakeWire, id int, p *Packet[string]) {
		mu.Lock()
		delivered = append(delivered, id)
		mu.Unlock()
	})

	q.Send(&Packet[string]{FromID: 1, Payload: "hi"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, []int{0, 2}, delivered)
	mu.Unlock()

	q.Stop()
	q.Wait()
}

func TestFanOutFromHostReachesAllWires(t *testing.T) {
	r := roster.New[*fakeWire](2)
	r.EmplaceAt(0, &fakeWire{open: true})
	r.EmplaceAt(1, &fakeWire{open: true})

	var mu sync.Mutex
	var delivered []int

	const hostID = int16(-1)
	q := New[*fakeWire, string](4, r, hostID, func(w *fakeWire, id int, p *Packet[string]) {
		mu.Lock()
		delivered = append(delivered, id)
		mu.Unlock()
	})

	q.Send(&Packet[string]{FromID: hostID, Payload: "announce"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, []int{0, 1}, delivered)
	mu.Unlock()

	q.Stop()
	q.Wait()
}

func TestFanOutReapsDeadWires(t *testing.T) {
	r := roster.New[*fakeWire](2)
	r.EmplaceAt(0, &fakeWire{open: true})
	r.EmplaceAt(1, &fakeWire{open: false})

	q := New[*fakeWire, string](4, r, -1, func(w *fakeWire, id int, p *Packet[string]) {})

	q.Send(&Packet[string]{FromID: -1, Payload: "x"})

	require.Eventually(t, func() bool {
		_, ok := r.Get(1)
		return !ok
	}, time.Second, time.Millisecond)

	_, ok := r.Get(0)
	assert.True(t, ok)

	q.Stop()
	q.Wait()
}

func TestStopIsIdempotent(t *testing.T) {
	r := roster.New[*fakeWire](1)
	q := New[*fakeWire, string](1, r, -1, func(w *fakeWire, id int, p *Packet[string]) {})

	q.Stop()
	q.Stop()
	q.Wait()
}
