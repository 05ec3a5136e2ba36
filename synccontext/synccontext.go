// Copyright 2026 The Exocore Authors
// This file is part of Exocore.
//
// Exocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Exocore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Exocore. If not, see <http://www.gnu.org/licenses/>.

// Package synccontext holds the scratch structure every synchronizer call
// accumulates into (spec §4.6, GLOSSARY "Sync context"): a tick or an
// incoming message mutates component state, then appends outbound
// messages and events here. The engine core drains both only after the
// call returns and its write lock has been released.
package synccontext

import (
	"github.com/exocore/exocore/event"
	"github.com/exocore/exocore/transport"
)

// Context accumulates the side effects of one synchronizer call.
type Context struct {
	Messages []transport.Outbound
	Events   []event.Event
}

func New() *Context { return &Context{} }

func (c *Context) Send(out transport.Outbound) { c.Messages = append(c.Messages, out) }

func (c *Context) Emit(ev event.Event) { c.Events = append(c.Events, ev) }

// Merge appends other's messages and events onto c, preserving order.
// Nothing in this module calls it.
func (c *Context) Merge(other *Context) {
	c.Messages = append(c.Messages, other.Messages...)
	c.Events = append(c.Events, other.Events...)
}
