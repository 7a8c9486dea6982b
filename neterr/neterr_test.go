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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsCloseWithoutCause(t *testing.T) {
	e := New(FailedToRead, nil)
	assert.True(t, e.IsClose())
	assert.Equal(t, FailedToRead.String(), e.Error())
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	e := New(FailedToWrite, cause)

	assert.False(t, e.IsClose())
	assert.ErrorIs(t, e.Unwrap(), cause)
	assert.Contains(t, e.Error(), "failed to send a message")
}

func TestNATErrorFormatting(t *testing.T) {
	e := NewNAT(NATIGDNotFound, nil)
	assert.Equal(t, "no IGD found", e.Error())

	wrapped := NewNAT(NATPortMapping, errors.New("500 Internal Server Error"))
	assert.Contains(t, wrapped.Error(), "failed to add a port mapping")
	assert.Contains(t, wrapped.Error(), "500")
}
