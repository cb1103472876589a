// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"fmt"
	"os"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

// Message is a decoded request or event.
//
// The Go types of Args follow the wire types of the signature: int32 for
// int, uint32 for uint, wire.Fixed for fixed, string or nil for string,
// *Object or nil for object and new_id, []byte for array and *os.File for
// fd. Received descriptors are closed once the handler returns; a handler
// that keeps one must duplicate it.
type Message struct {
	Opcode    uint16
	Signature *protocol.Message
	Args      []any
}

// NewRequest builds a request of iface by name.
func NewRequest(iface *protocol.Interface, name string, args ...any) (*Message, error) {
	sig, ok := iface.RequestByName(name)
	if !ok {
		return nil, fmt.Errorf("interface %s has no request %s", iface.Name, name)
	}
	return newMessage(sig, args)
}

// NewEvent builds an event of iface by name.
func NewEvent(iface *protocol.Interface, name string, args ...any) (*Message, error) {
	sig, ok := iface.EventByName(name)
	if !ok {
		return nil, fmt.Errorf("interface %s has no event %s", iface.Name, name)
	}
	return newMessage(sig, args)
}

func newMessage(sig *protocol.Message, args []any) (*Message, error) {
	if len(args) != len(sig.Args) {
		return nil, fmt.Errorf("message %s takes %d arguments, got %d", sig.Name, len(sig.Args), len(args))
	}
	return &Message{Opcode: sig.Opcode, Signature: sig, Args: args}, nil
}

// Name of the message.
func (m *Message) Name() string {
	if m.Signature == nil {
		return fmt.Sprintf("opcode %d", m.Opcode)
	}
	return m.Signature.Name
}

// Int returns argument i as int32.
func (m *Message) Int(i int) int32 {
	v, _ := m.Args[i].(int32)
	return v
}

// Uint returns argument i as uint32.
func (m *Message) Uint(i int) uint32 {
	v, _ := m.Args[i].(uint32)
	return v
}

// Fixed returns argument i as fixed point number.
func (m *Message) Fixed(i int) wire.Fixed {
	v, _ := m.Args[i].(wire.Fixed)
	return v
}

// String returns argument i. The second value is false for a null string.
func (m *Message) String(i int) (string, bool) {
	v, ok := m.Args[i].(string)
	return v, ok
}

// Object returns argument i as Object, nil for a null object.
func (m *Message) Object(i int) *Object {
	v, _ := m.Args[i].(*Object)
	return v
}

// Array returns argument i as byte slice.
func (m *Message) Array(i int) []byte {
	v, _ := m.Args[i].([]byte)
	return v
}

// Fd returns argument i as file.
func (m *Message) Fd(i int) *os.File {
	v, _ := m.Args[i].(*os.File)
	return v
}

// closeFds closes the received descriptors of the message.
func (m *Message) closeFds() {
	if m.Signature == nil {
		return
	}
	for i, arg := range m.Signature.Args {
		if arg.Type != protocol.Fd {
			continue
		}
		if f, ok := m.Args[i].(*os.File); ok && f != nil {
			_ = f.Close()
		}
	}
}
