// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

var errNullObject = errors.New("the object is null but the argument is not nullable")

// untypedNewID is a new_id without interface in its signature, as used by
// wl_registry.bind.
type untypedNewID struct {
	iface   string
	version uint32
}

// decode parses frame according to sig. Objects are resolved in the id
// table of ep. New objects are created and bound to the id the peer chose,
// in the namespace of c for requests and of the server for events.
func (s *State) decode(obj *Object, ep *endpoint, c *Client, sig *protocol.Message, frame []byte) (*Message, error) {
	msg := &Message{Opcode: sig.Opcode, Signature: sig, Args: make([]any, len(sig.Args))}
	ids := make([]uint32, len(sig.Args))
	untyped := make(map[int]untypedNewID)

	fail := func(err error) (*Message, error) {
		msg.closeFds()
		return nil, err
	}
	decodeErr := func(arg string, err error) (*Message, error) {
		return fail(&ObjectError{Kind: Decode, Arg: arg, Err: err})
	}

	p := wire.NewParser(frame, &ep.inFds)
	for i, arg := range sig.Args {
		switch arg.Type {
		case protocol.Int:
			v, err := p.Int()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			msg.Args[i] = v
		case protocol.Uint:
			v, err := p.Uint()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			msg.Args[i] = v
		case protocol.Fixed:
			v, err := p.Fixed()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			msg.Args[i] = v
		case protocol.String:
			v, ok, err := p.String()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			if !ok {
				if !arg.AllowNull {
					return fail(&ObjectError{Kind: NullString, Arg: arg.Name})
				}
				continue
			}
			msg.Args[i] = v
		case protocol.Object:
			id, err := p.Object()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			ids[i] = id
		case protocol.NewID:
			if arg.Interface == "" {
				name, ok, err := p.String()
				if err != nil {
					return decodeErr(arg.Name, err)
				}
				if !ok {
					return fail(&ObjectError{Kind: NullString, Arg: arg.Name})
				}
				version, err := p.Uint()
				if err != nil {
					return decodeErr(arg.Name, err)
				}
				untyped[i] = untypedNewID{iface: name, version: version}
			}
			id, err := p.Object()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			ids[i] = id
		case protocol.Array:
			v, err := p.Array()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			msg.Args[i] = v
		case protocol.Fd:
			f, err := p.Fd()
			if err != nil {
				return decodeErr(arg.Name, err)
			}
			msg.Args[i] = f
		}
	}
	if err := p.Finish(); err != nil {
		return decodeErr("", err)
	}

	noObject := NoServerObject
	if c != nil {
		noObject = NoClientObject
	}

	for i, arg := range sig.Args {
		switch arg.Type {
		case protocol.Object:
			id := ids[i]
			if id == 0 {
				if !arg.AllowNull {
					return fail(&ObjectError{Kind: noObject, Arg: arg.Name, ID: id})
				}
				continue
			}
			target, ok := ep.objects[id]
			if !ok {
				return fail(&ObjectError{Kind: noObject, Arg: arg.Name, ID: id})
			}
			if arg.Interface != "" && target.iface.Name != arg.Interface {
				return fail(&ObjectError{
					Kind:      WrongObjectType,
					Arg:       arg.Name,
					Interface: arg.Interface,
					Got:       target.iface.Name,
				})
			}
			msg.Args[i] = target
		case protocol.NewID:
			name, version := arg.Interface, obj.version
			if u, ok := untyped[i]; ok {
				name, version = u.iface, u.version
			}
			iface, ok := s.registry.Lookup(name)
			if !ok {
				return fail(&ObjectError{Kind: UnsupportedInterface, Arg: arg.Name, Interface: name})
			}
			if version > iface.Version {
				return fail(&ObjectError{Kind: MaxVersion, Arg: arg.Name, ID: version, Interface: name})
			}

			child := s.CreateObject(iface, version)
			if c != nil {
				if err := child.SetClientID(c, ids[i]); err != nil {
					return fail(&ObjectError{Kind: SetClientID, Arg: arg.Name, ID: ids[i], Err: err})
				}
			} else if err := child.SetServerID(ids[i]); err != nil {
				return fail(&ObjectError{Kind: SetServerID, Arg: arg.Name, ID: ids[i], Err: err})
			}
			msg.Args[i] = child
		}
	}
	return msg, nil
}

// handleRequest dispatches a request received from c.
func (s *State) handleRequest(obj *Object, c *Client, frame []byte) error {
	id, opcode, size := wire.Header(frame)
	sig, ok := obj.iface.Request(opcode)
	if !ok {
		return &ObjectError{Kind: UnknownMessageID, ID: uint32(opcode)}
	}

	h, err := obj.borrowHandler()
	if err != nil {
		return err
	}
	defer obj.releaseHandler()

	msg, err := s.decode(obj, c.endpoint, c, sig, frame)
	if err != nil {
		return err
	}
	defer msg.closeFds()

	s.stats.RequestsReceived++
	s.trace(c.key, Received, id, obj, msg, size)
	if sig.Destructor {
		obj.handleClientDestroy()
	}
	h.HandleRequest(obj, msg)
	return nil
}

// handleEvent dispatches an event received from the server.
func (s *State) handleEvent(obj *Object, frame []byte) error {
	id, opcode, size := wire.Header(frame)
	if obj.iface.Name == protocol.WlDisplay.Name {
		return s.handleDisplayEvent(obj, opcode, frame)
	}
	sig, ok := obj.iface.Event(opcode)
	if !ok {
		return &ObjectError{Kind: UnknownMessageID, ID: uint32(opcode)}
	}

	h, err := obj.borrowHandler()
	if err != nil {
		return err
	}
	defer obj.releaseHandler()

	msg, err := s.decode(obj, s.server, nil, sig, frame)
	if err != nil {
		return err
	}
	defer msg.closeFds()

	s.stats.EventsReceived++
	s.trace(0, Received, id, obj, msg, size)
	if obj.iface.Name == protocol.WlRegistry.Name && !filterRegistryEvent(s.registry, obj, msg) {
		return nil
	}
	if sig.Destructor {
		obj.handleServerDestroy()
	}
	h.HandleEvent(obj, msg)
	return nil
}

// signature returns the schema of msg and fills in Signature if unset.
func signature(lookup func(uint16) (*protocol.Message, bool), msg *Message) (*protocol.Message, error) {
	sig, ok := lookup(msg.Opcode)
	if !ok || (msg.Signature != nil && msg.Signature != sig) {
		return nil, &ObjectError{Kind: UnknownMessageID, ID: uint32(msg.Opcode)}
	}
	if len(msg.Args) != len(sig.Args) {
		return nil, &ObjectError{Kind: WrongArgType}
	}
	msg.Signature = sig
	return sig, nil
}

func newIDArg(msg *Message, i int) (*Object, error) {
	child, _ := msg.Args[i].(*Object)
	if child == nil {
		return nil, &ObjectError{Kind: WrongArgType, Arg: msg.Signature.Args[i].Name}
	}
	return child, nil
}

// SendRequest encodes msg into the output buffer of the server connection.
// New objects in msg are assigned server ids.
func (o *Object) SendRequest(msg *Message) error {
	s := o.state
	if s.destroyed {
		return ErrDestroyed
	}
	if o.serverID == 0 {
		return &ObjectError{Kind: ReceiverNoServerID}
	}
	sig, err := signature(o.iface.Request, msg)
	if err != nil {
		return err
	}

	var children []*Object
	for i, arg := range sig.Args {
		if arg.Type != protocol.NewID {
			continue
		}
		child, err := newIDArg(msg, i)
		if err == nil {
			err = child.GenerateServerID()
			if err != nil {
				err = &ObjectError{Kind: GenerateServerID, Arg: arg.Name, Err: err}
			}
		}
		if err != nil {
			revokeServerIDs(children)
			return err
		}
		children = append(children, child)
	}

	server := s.server
	if server == nil {
		return nil
	}

	before := server.out.Len()
	f := server.out.Begin(o.serverID, sig.Opcode)
	if err := encodeArgs(f, msg, nil); err != nil {
		f.Abort()
		revokeServerIDs(children)
		return err
	}
	if err := f.End(); err != nil {
		revokeServerIDs(children)
		return &ObjectError{Kind: Encode, Err: err}
	}
	s.addFlushable(server)

	s.stats.RequestsSent++
	s.trace(0, Sent, o.serverID, o, msg, server.out.Len()-before)
	if sig.Destructor {
		o.handleServerDestroy()
	}
	return nil
}

// SendEvent encodes msg into the output buffer of the client of this Object.
// New objects in msg are assigned client ids. Events to a client that has
// already been destroyed are dropped.
func (o *Object) SendEvent(msg *Message) error {
	s := o.state
	if s.destroyed {
		return ErrDestroyed
	}
	c := o.client
	if c == nil {
		return &ObjectError{Kind: ReceiverNoClient}
	}
	if c.destroyed {
		return nil
	}
	sig, err := signature(o.iface.Event, msg)
	if err != nil {
		return err
	}

	var children []*Object
	for i, arg := range sig.Args {
		if arg.Type != protocol.NewID {
			continue
		}
		child, err := newIDArg(msg, i)
		if err == nil {
			err = child.GenerateClientID(c)
			if err != nil {
				err = &ObjectError{Kind: GenerateClientID, Arg: arg.Name, Err: err}
			}
		}
		if err != nil {
			revokeClientIDs(children)
			return err
		}
		children = append(children, child)
	}

	ep := c.endpoint
	before := ep.out.Len()
	f := ep.out.Begin(o.clientID, sig.Opcode)
	if err := encodeArgs(f, msg, c); err != nil {
		f.Abort()
		revokeClientIDs(children)
		return err
	}
	if err := f.End(); err != nil {
		revokeClientIDs(children)
		return &ObjectError{Kind: Encode, Err: err}
	}
	s.addFlushable(ep)

	s.stats.EventsSent++
	s.trace(c.key, Sent, o.clientID, o, msg, ep.out.Len()-before)
	if sig.Destructor {
		o.handleClientDestroy()
	}

	if s.maxClientBuffer > 0 && ep.out.Len() > s.maxClientBuffer {
		log.WithFields(log.Fields{
			"client":   c.key,
			"buffered": ep.out.Len(),
		}).Warn("Client does not read its messages, disconnecting")
		s.killClient(c)
	}
	return nil
}

// revokeServerIDs takes back ids generated for a message that was not sent.
func revokeServerIDs(objs []*Object) {
	for _, o := range objs {
		o.revokeServerID()
	}
}

func revokeClientIDs(objs []*Object) {
	for _, o := range objs {
		o.revokeClientID()
	}
}

// encodeArgs writes the arguments of msg. Objects are translated to the
// namespace of c, or of the server if c is nil.
func encodeArgs(f *wire.Formatter, msg *Message, c *Client) error {
	for i, arg := range msg.Signature.Args {
		wrongType := &ObjectError{Kind: WrongArgType, Arg: arg.Name}

		switch arg.Type {
		case protocol.Int:
			v, ok := msg.Args[i].(int32)
			if !ok {
				return wrongType
			}
			f.Int(v)
		case protocol.Uint:
			v, ok := msg.Args[i].(uint32)
			if !ok {
				return wrongType
			}
			f.Uint(v)
		case protocol.Fixed:
			v, ok := msg.Args[i].(wire.Fixed)
			if !ok {
				return wrongType
			}
			f.Fixed(v)
		case protocol.String:
			switch v := msg.Args[i].(type) {
			case string:
				f.String(v)
			case nil:
				if !arg.AllowNull {
					return &ObjectError{Kind: NullString, Arg: arg.Name}
				}
				f.NullString()
			default:
				return wrongType
			}
		case protocol.Object, protocol.NewID:
			var obj *Object
			switch v := msg.Args[i].(type) {
			case *Object:
				obj = v
			case nil:
			default:
				return wrongType
			}
			if obj == nil {
				if arg.Type == protocol.NewID || !arg.AllowNull {
					return &ObjectError{Kind: Encode, Arg: arg.Name, Err: errNullObject}
				}
				f.Object(0)
				continue
			}

			if arg.Type == protocol.NewID && arg.Interface == "" {
				f.String(obj.iface.Name).Uint(obj.version)
			}
			if c == nil {
				if obj.serverID == 0 {
					return &ObjectError{Kind: ArgNoServerID, Arg: arg.Name}
				}
				f.Object(obj.serverID)
			} else {
				if obj.client != c {
					return &ObjectError{Kind: ArgNoClientID, Arg: arg.Name, ID: uint32(c.key)}
				}
				f.Object(obj.clientID)
			}
		case protocol.Array:
			switch v := msg.Args[i].(type) {
			case []byte:
				f.Array(v)
			case nil:
				f.Array(nil)
			default:
				return wrongType
			}
		case protocol.Fd:
			v, ok := msg.Args[i].(*os.File)
			if !ok || v == nil {
				return wrongType
			}
			f.Fd(v)
		}
	}
	return nil
}
