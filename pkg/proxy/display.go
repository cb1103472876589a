// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

// displayID is the id of wl_display in every namespace.
const displayID uint32 = 1

// Display creates a new wl_display object. If the State has a server, the
// object refers to the wl_display of the server without owning its id.
func (s *State) Display() *Object {
	d := s.CreateObject(s.displayIface, 1)
	if s.server != nil {
		d.serverID = displayID
	}
	return d
}

// handleDisplayEvent handles the events of wl_display. They are consumed by
// the proxy and never reach a handler.
func (s *State) handleDisplayEvent(display *Object, opcode uint16, frame []byte) error {
	sig, ok := display.iface.Event(opcode)
	if !ok {
		return &ObjectError{Kind: UnknownMessageID, ID: uint32(opcode)}
	}
	_, _, size := wire.Header(frame)
	p := wire.NewParser(frame, &s.server.inFds)

	switch opcode {
	case protocol.DisplayError:
		id, err := p.Object()
		if err != nil {
			return &ObjectError{Kind: Decode, Arg: "object_id", Err: err}
		}
		code, err := p.Uint()
		if err != nil {
			return &ObjectError{Kind: Decode, Arg: "code", Err: err}
		}
		message, _, err := p.String()
		if err != nil {
			return &ObjectError{Kind: Decode, Arg: "message", Err: err}
		}
		if err := p.Finish(); err != nil {
			return &ObjectError{Kind: Decode, Err: err}
		}

		target := s.server.objects[id]
		iface := "unknown"
		var arg any
		if target != nil {
			iface, arg = target.iface.Name, target
		}
		s.stats.EventsReceived++
		s.trace(0, Received, displayID, display, &Message{
			Opcode:    opcode,
			Signature: sig,
			Args:      []any{arg, code, message},
		}, size)
		return &ObjectError{Kind: ServerErrorKind, Err: &ServerError{
			ObjectID:  id,
			Interface: iface,
			Code:      code,
			Message:   message,
			object:    target,
		}}

	case protocol.DisplayDeleteID:
		id, err := p.Uint()
		if err != nil {
			return &ObjectError{Kind: Decode, Arg: "id", Err: err}
		}
		if err := p.Finish(); err != nil {
			return &ObjectError{Kind: Decode, Err: err}
		}
		s.stats.EventsReceived++
		s.trace(0, Received, displayID, display, &Message{
			Opcode:    opcode,
			Signature: sig,
			Args:      []any{id},
		}, size)
		return s.handleDeleteID(id)

	default:
		return &ObjectError{Kind: UnknownMessageID, ID: uint32(opcode)}
	}
}

// handleDeleteID retires a server id. Ids allocated by the proxy return to
// the free list and the delete-id handler of the object runs.
func (s *State) handleDeleteID(id uint32) error {
	server := s.server
	obj, ok := server.objects[id]
	if !ok {
		return &ObjectError{Kind: NoServerObject, ID: id}
	}
	delete(server.objects, id)
	obj.serverID = 0
	if id < MinServerID {
		server.ids.release(id)
	}

	if err := obj.deleteID(); err != nil {
		log.WithError(err).WithField("object", obj.String()).Warn("Could not run the delete_id handler")
		_ = obj.TryDeleteID()
	}
	return nil
}

// sendDeleteID tells the client that id may be reused.
func (o *Object) sendDeleteID(id uint32) error {
	sig, ok := o.iface.Event(protocol.DisplayDeleteID)
	if !ok {
		return &ObjectError{Kind: UnknownMessageID, ID: uint32(protocol.DisplayDeleteID)}
	}
	return o.SendEvent(&Message{Opcode: sig.Opcode, Signature: sig, Args: []any{id}})
}

// filterRegistryEvent drops globals of interfaces missing from reg and caps
// their versions. Removals of dropped globals are dropped as well.
func filterRegistryEvent(reg *protocol.Registry, registry *Object, msg *Message) bool {
	switch msg.Opcode {
	case protocol.RegistryGlobal:
		name := msg.Uint(0)
		ifaceName, _ := msg.String(1)
		iface, ok := reg.Lookup(ifaceName)
		if !ok {
			return false
		}
		if registry.globals == nil {
			registry.globals = make(map[uint32]struct{})
		}
		registry.globals[name] = struct{}{}
		if msg.Uint(2) > iface.Version {
			msg.Args[2] = iface.Version
		}
	case protocol.RegistryGlobalRemove:
		name := msg.Uint(0)
		if _, ok := registry.globals[name]; !ok {
			return false
		}
		delete(registry.globals, name)
	}
	return true
}
