// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	log "github.com/sirupsen/logrus"
)

// Handler intercepts the messages of an Object.
//
// HandleRequest is called for requests received from the client,
// HandleEvent for events received from the server. Objects without a
// handler forward every message.
type Handler interface {
	HandleRequest(obj *Object, msg *Message)
	HandleEvent(obj *Object, msg *Message)
}

// DeleteIDHandler is implemented by handlers that want to observe the
// retirement of the server id of their Object. The default calls DeleteID.
type DeleteIDHandler interface {
	HandleDeleteID(obj *Object)
}

// Forward forwards every message. Embed it to override single methods.
type Forward struct{}

// HandleRequest forwards msg to the server.
func (Forward) HandleRequest(obj *Object, msg *Message) {
	obj.ForwardRequest(msg)
}

// HandleEvent forwards msg to the client.
func (Forward) HandleEvent(obj *Object, msg *Message) {
	obj.ForwardEvent(msg)
}

var defaultHandler Handler = Forward{}

// HandlerFuncs adapts functions to a Handler. Nil functions forward.
type HandlerFuncs struct {
	Request  func(obj *Object, msg *Message)
	Event    func(obj *Object, msg *Message)
	DeleteID func(obj *Object)
}

func (h HandlerFuncs) HandleRequest(obj *Object, msg *Message) {
	if h.Request == nil {
		obj.ForwardRequest(msg)
		return
	}
	h.Request(obj, msg)
}

func (h HandlerFuncs) HandleEvent(obj *Object, msg *Message) {
	if h.Event == nil {
		obj.ForwardEvent(msg)
		return
	}
	h.Event(obj, msg)
}

func (h HandlerFuncs) HandleDeleteID(obj *Object) {
	if h.DeleteID == nil {
		obj.DeleteID()
		return
	}
	h.DeleteID(obj)
}

// ForwardRequest sends msg to the server if forwarding to the server is
// enabled. Errors are logged.
func (o *Object) ForwardRequest(msg *Message) {
	if !o.forwardToServer {
		return
	}
	if err := o.SendRequest(msg); err != nil {
		log.WithFields(log.Fields{
			"message": o.iface.Name + "." + msg.Name(),
			"error":   err,
		}).Warn("Could not forward a message")
	}
}

// ForwardEvent sends msg to the client if forwarding to the client is
// enabled. Errors are logged.
func (o *Object) ForwardEvent(msg *Message) {
	if !o.forwardToClient {
		return
	}
	if err := o.SendEvent(msg); err != nil {
		log.WithFields(log.Fields{
			"message": o.iface.Name + "." + msg.Name(),
			"error":   err,
		}).Warn("Could not forward a message")
	}
}

// StateHandler observes a State.
type StateHandler interface {
	// NewClient is called for clients accepted by an acceptor, not for
	// clients created by State.Connect or State.AddClient.
	NewClient(c *Client)

	// DisplayError is called when the server sends wl_display.error. obj is
	// nil if the error refers to an object the proxy does not know.
	DisplayError(obj *Object, serverID, code uint32, message string)
}

// NopStateHandler ignores all State notifications. Embed it to override
// single methods.
type NopStateHandler struct{}

func (NopStateHandler) NewClient(*Client) {}

func (NopStateHandler) DisplayError(*Object, uint32, uint32, string) {}

// ClientHandler observes a Client.
type ClientHandler interface {
	// Disconnected is called at most once, when the client is destroyed.
	Disconnected(c *Client)
}

// ClientHandlerFunc adapts a function to a ClientHandler.
type ClientHandlerFunc func(c *Client)

func (f ClientHandlerFunc) Disconnected(c *Client) {
	f(c)
}
