// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hostapitest provides in-memory fakes for internal/hostapi,
// analogous to the simple in-memory StateDB fakes the teacher's own
// dex/*_test.go files construct ad hoc for each test; collected here into
// one reusable fake since the Slab and Router tests both need the same
// three capabilities.
package hostapitest

import (
	"github.com/luxfi/percolator/internal/hostapi"
	"github.com/luxfi/percolator/internal/ids"
)

// Buffer is an in-memory hostapi.AccountBuffer.
type Buffer struct {
	Bytes    []byte
	OwnerID  ids.Id
	Writable bool
}

// NewBuffer allocates a zeroed buffer of the given length owned by owner.
func NewBuffer(length int, owner ids.Id, writable bool) *Buffer {
	return &Buffer{Bytes: make([]byte, length), OwnerID: owner, Writable: writable}
}

func (b *Buffer) Data() []byte      { return b.Bytes }
func (b *Buffer) Len() int          { return len(b.Bytes) }
func (b *Buffer) Owner() ids.Id     { return b.OwnerID }
func (b *Buffer) IsWritable() bool  { return b.Writable }

// Clock is a controllable fake clock; tests advance it explicitly instead
// of sleeping, mirroring how the teacher's tests pass fixed block numbers
// rather than calling time.Now.
type Clock struct {
	Now int64
	Slt uint64
}

func (c *Clock) UnixSeconds() int64 { return c.Now }
func (c *Clock) Slot() uint64       { return c.Slt }

// Advance moves the fake clock forward by secs seconds and slots slots.
func (c *Clock) Advance(secs int64, slots uint64) {
	c.Now += secs
	c.Slt += slots
}

// Signers is a fake SignerSet backed by an explicit allow-list.
type Signers struct {
	set map[ids.Id]bool
}

// NewSigners builds a Signers fake authorizing exactly the given ids.
func NewSigners(authorized ...ids.Id) *Signers {
	s := &Signers{set: make(map[ids.Id]bool, len(authorized))}
	for _, id := range authorized {
		s.set[id] = true
	}
	return s
}

func (s *Signers) IsSigner(id ids.Id) bool { return s.set[id] }

// InvokeFunc lets a test script exactly what a cross-program invocation
// returns, without standing up a real second program.
type InvokeFunc func(program ids.Id, accounts []hostapi.AccountBuffer, instruction []byte) ([]byte, error)

// Invoker is a fake hostapi.Invoker that records every call it received and
// delegates to a test-supplied function.
type Invoker struct {
	Fn    InvokeFunc
	Calls int
}

func (inv *Invoker) Invoke(program ids.Id, accounts []hostapi.AccountBuffer, instruction []byte) ([]byte, error) {
	inv.Calls++
	if inv.Fn == nil {
		return nil, nil
	}
	return inv.Fn(program, accounts, instruction)
}

// Host bundles Clock, Signers, and Invoker fakes behind hostapi.Host.
type Host struct {
	*Clock
	*Signers
	*Invoker
}

// NewHost builds a Host fake with a zeroed clock and no authorized signers;
// tests mutate the embedded fakes directly.
func NewHost() *Host {
	return &Host{
		Clock:   &Clock{},
		Signers: NewSigners(),
		Invoker: &Invoker{},
	}
}

var _ hostapi.Host = (*Host)(nil)
