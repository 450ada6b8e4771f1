// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package accessengine

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// InvariantError is the fatal error class of §7: ordering/bookkeeping bugs,
// impossible transitions, and oversubscribed data sets. The engine panics
// with one rather than returning an error, since §7 defines these as
// unrecoverable: "abort simulation with diagnostic (state dumps...)".
type InvariantError struct {
	Reason string
	Dump   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s\n%s", e.Reason, e.Dump)
}

// newInvariantError formats Reason and attaches a spew dump of state for any
// extra diagnostic values the caller wants captured.
func newInvariantError(reason string, state ...any) *InvariantError {
	return &InvariantError{Reason: reason, Dump: spew.Sdump(state...)}
}
