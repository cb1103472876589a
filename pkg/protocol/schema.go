// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import "fmt"

// ArgType is the wire type of a message argument.
type ArgType uint8

const (
	Int ArgType = iota
	Uint
	Fixed
	String
	Object
	NewID
	Array
	Fd
)

var argTypeNames = map[ArgType]string{
	Int:    "int",
	Uint:   "uint",
	Fixed:  "fixed",
	String: "string",
	Object: "object",
	NewID:  "new_id",
	Array:  "array",
	Fd:     "fd",
}

func (t ArgType) String() string {
	if name, ok := argTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ArgType(%d)", uint8(t))
}

// parseArgType maps the type attribute of an XML arg element.
func parseArgType(s string) (ArgType, bool) {
	for t, name := range argTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Arg describes a single message argument.
type Arg struct {
	Name string
	Type ArgType

	// Interface is the expected interface of Object and NewID arguments. An
	// empty Interface on a NewID argument marks an untyped new_id, which is
	// transmitted as interface name, version and id.
	Interface string

	// AllowNull permits null strings and objects.
	AllowNull bool
}

// Message is a request or an event.
type Message struct {
	Name       string
	Opcode     uint16
	Since      uint32
	Destructor bool
	Args       []Arg
}

// NewIDArg returns the index of the first new_id argument or -1.
func (m *Message) NewIDArg() int {
	for i := range m.Args {
		if m.Args[i].Type == NewID {
			return i
		}
	}
	return -1
}

// Interface is the schema of a protocol interface.
type Interface struct {
	Name     string
	Version  uint32
	Requests []Message
	Events   []Message
}

func (i *Interface) String() string {
	return i.Name
}

// Request returns the request with the given opcode.
func (i *Interface) Request(opcode uint16) (*Message, bool) {
	if int(opcode) >= len(i.Requests) {
		return nil, false
	}
	return &i.Requests[opcode], true
}

// Event returns the event with the given opcode.
func (i *Interface) Event(opcode uint16) (*Message, bool) {
	if int(opcode) >= len(i.Events) {
		return nil, false
	}
	return &i.Events[opcode], true
}

// RequestByName looks up a request by its name.
func (i *Interface) RequestByName(name string) (*Message, bool) {
	return byName(i.Requests, name)
}

// EventByName looks up an event by its name.
func (i *Interface) EventByName(name string) (*Message, bool) {
	return byName(i.Events, name)
}

func byName(msgs []Message, name string) (*Message, bool) {
	for j := range msgs {
		if msgs[j].Name == name {
			return &msgs[j], true
		}
	}
	return nil, false
}

// finish assigns opcodes and default versions.
func (i *Interface) finish() {
	for j := range i.Requests {
		i.Requests[j].Opcode = uint16(j)
		if i.Requests[j].Since == 0 {
			i.Requests[j].Since = 1
		}
	}
	for j := range i.Events {
		i.Events[j].Opcode = uint16(j)
		if i.Events[j].Since == 0 {
			i.Events[j].Since = 1
		}
	}
}
