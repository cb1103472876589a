// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
)

// MinServerID is the smallest id allocated by the server. Smaller ids are
// allocated by clients. Ids the proxy allocates in a client's namespace are
// taken from the server range, as a compositor would.
const MinServerID uint32 = 0xff000000

// Object is a proxied protocol object.
//
// An Object has at most one id in the namespace of the server and at most
// one id in the namespace of a single client. Both are assigned lazily, the
// first time the Object is referenced in a message sent to that side.
type Object struct {
	state   *State
	uid     uint64
	iface   *protocol.Interface
	version uint32

	forwardToClient  bool
	forwardToServer  bool
	awaitingDeleteID bool

	serverID uint32
	clientID uint32
	client   *Client

	handler        Handler
	handlerBusy    bool
	handlerPending bool
	pendingHandler Handler

	// globals are the wl_registry names announced by the server.
	globals map[uint32]struct{}
}

func (o *Object) String() string {
	return fmt.Sprintf("%s(server: %d, client: %d)", o.iface.Name, o.serverID, o.clientID)
}

// State that created this Object.
func (o *Object) State() *State {
	return o.state
}

// Interface of this Object.
func (o *Object) Interface() *protocol.Interface {
	return o.iface
}

// Version of this Object.
func (o *Object) Version() uint32 {
	return o.version
}

// UniqueID is an id that is unique within the State. It never appears on
// the wire.
func (o *Object) UniqueID() uint64 {
	return o.uid
}

// Client owning the client id of this Object or nil.
func (o *Object) Client() *Client {
	return o.client
}

// ClientID returns the id of this Object in the namespace of its client.
func (o *Object) ClientID() (uint32, bool) {
	return o.clientID, o.client != nil
}

// ServerID returns the id of this Object in the namespace of the server.
func (o *Object) ServerID() (uint32, bool) {
	return o.serverID, o.serverID != 0
}

// CreateChild creates a new Object of the given interface with the version
// of this Object.
func (o *Object) CreateChild(iface *protocol.Interface) *Object {
	return o.state.CreateObject(iface, o.version)
}

// SetForwardToClient controls whether the default handler forwards events.
func (o *Object) SetForwardToClient(enabled bool) {
	o.forwardToClient = enabled
}

// SetForwardToServer controls whether the default handler forwards requests.
func (o *Object) SetForwardToServer(enabled bool) {
	o.forwardToServer = enabled
}

// ForwardToClient reports whether the default handler forwards events.
func (o *Object) ForwardToClient() bool {
	return o.forwardToClient
}

// ForwardToServer reports whether the default handler forwards requests.
func (o *Object) ForwardToServer() bool {
	return o.forwardToServer
}

// GenerateServerID allocates a new id in the namespace of the server.
func (o *Object) GenerateServerID() error {
	if o.state.destroyed {
		return &IDError{Kind: StateDestroyed}
	}
	if o.serverID != 0 {
		return &IDError{Kind: HasServerID, ID: o.serverID}
	}
	server := o.state.server
	if server == nil {
		return &IDError{Kind: NoServer}
	}
	id := server.ids.acquire()
	if id >= MinServerID {
		server.ids.release(id)
		return &IDError{Kind: NoServerSpace}
	}
	o.serverID = id
	server.objects[id] = o
	return nil
}

// revokeServerID releases an id from GenerateServerID that the server
// never saw.
func (o *Object) revokeServerID() {
	server := o.state.server
	if server == nil || o.serverID == 0 || o.serverID >= MinServerID {
		return
	}
	if server.objects[o.serverID] == o {
		delete(server.objects, o.serverID)
	}
	server.ids.release(o.serverID)
	o.serverID = 0
}

// SetServerID binds an id allocated by the server.
func (o *Object) SetServerID(id uint32) error {
	if id < MinServerID {
		return &IDError{Kind: NotServerID, ID: id}
	}
	return o.setServerIDUnchecked(id)
}

func (o *Object) setServerIDUnchecked(id uint32) error {
	if o.state.destroyed {
		return &IDError{Kind: StateDestroyed}
	}
	server := o.state.server
	if server == nil {
		return &IDError{Kind: NoServer}
	}
	if o.serverID != 0 {
		return &IDError{Kind: HasServerID, ID: o.serverID}
	}
	if _, ok := server.objects[id]; ok {
		return &IDError{Kind: ServerIDInUse, ID: id}
	}
	server.objects[id] = o
	o.serverID = id
	return nil
}

// GenerateClientID allocates a new id in the namespace of the client.
func (o *Object) GenerateClientID(c *Client) error {
	if c.destroyed {
		return &IDError{Kind: ClientDestroyed}
	}
	if o.client != nil {
		return &IDError{Kind: HasClientID, ID: o.clientID}
	}
	n := c.endpoint.ids.acquire()
	if n > math.MaxUint32-MinServerID {
		c.endpoint.ids.release(n)
		return &IDError{Kind: NoClientSpace}
	}
	id := MinServerID + n
	c.endpoint.objects[id] = o
	o.client, o.clientID = c, id
	return nil
}

// revokeClientID releases an id from GenerateClientID that the client
// never saw.
func (o *Object) revokeClientID() {
	c := o.client
	if c == nil || o.clientID < MinServerID {
		return
	}
	if c.endpoint.objects[o.clientID] == o {
		delete(c.endpoint.objects, o.clientID)
	}
	c.endpoint.ids.release(o.clientID - MinServerID)
	o.client, o.clientID = nil, 0
}

// SetClientID binds an id allocated by the client.
func (o *Object) SetClientID(c *Client, id uint32) error {
	if c.destroyed {
		return &IDError{Kind: ClientDestroyed}
	}
	if o.client != nil {
		return &IDError{Kind: HasClientID, ID: o.clientID}
	}
	if id == 0 || id >= MinServerID {
		return &IDError{Kind: NotClientID, ID: id}
	}
	if _, ok := c.endpoint.objects[id]; ok {
		return &IDError{Kind: ClientIDInUse, ID: id}
	}
	c.endpoint.objects[id] = o
	o.client, o.clientID = c, id
	return nil
}

// handleClientDestroy runs after a destructor has been exchanged with the
// client. Ids allocated by the proxy are released at once, ids allocated by
// the client stay reserved until wl_display.delete_id has been sent.
func (o *Object) handleClientDestroy() {
	c := o.client
	if c == nil {
		return
	}
	if o.clientID < MinServerID {
		o.awaitingDeleteID = true
		return
	}
	delete(c.endpoint.objects, o.clientID)
	c.endpoint.ids.release(o.clientID - MinServerID)
	o.client, o.clientID = nil, 0
}

// handleServerDestroy runs after a destructor has been exchanged with the
// server. Ids allocated by the proxy stay reserved until the server sends
// wl_display.delete_id.
func (o *Object) handleServerDestroy() {
	if o.serverID < MinServerID {
		return
	}
	if server := o.state.server; server != nil {
		delete(server.objects, o.serverID)
	}
	o.serverID = 0
}

// TryDeleteID releases the client id of an Object whose destructor has been
// received from the client and sends wl_display.delete_id to the client.
func (o *Object) TryDeleteID() error {
	if !o.awaitingDeleteID {
		if o.client != nil {
			return &ObjectError{Kind: NotAwaitingDeleteID}
		}
		return nil
	}
	o.awaitingDeleteID = false

	c, id := o.client, o.clientID
	if c == nil {
		return nil
	}
	o.client, o.clientID = nil, 0
	if c.endpoint.objects[id] == o {
		delete(c.endpoint.objects, id)
	}
	return c.display.sendDeleteID(id)
}

// DeleteID is TryDeleteID but logs errors.
func (o *Object) DeleteID() {
	if err := o.TryDeleteID(); err != nil {
		log.WithError(err).WithField("object", o.String()).Warn("Could not release a client id")
	}
}

// SetHandler replaces the handler of this Object. When called from within
// the handler of this Object, the replacement happens once it returns.
func (o *Object) SetHandler(h Handler) {
	if o.state.destroyed {
		return
	}
	o.setHandler(h)
}

// UnsetHandler reverts to the default forwarding behavior.
func (o *Object) UnsetHandler() {
	o.setHandler(nil)
}

func (o *Object) setHandler(h Handler) {
	if o.handlerBusy {
		o.pendingHandler, o.handlerPending = h, true
		return
	}
	o.handler = h
}

// Handler of this Object, nil for the default handler.
func (o *Object) Handler() Handler {
	if o.handlerPending {
		return o.pendingHandler
	}
	return o.handler
}

func (o *Object) borrowHandler() (Handler, error) {
	if o.handlerBusy {
		return nil, &ObjectError{Kind: HandlerBorrowed}
	}
	o.handlerBusy = true
	if o.handler == nil {
		return defaultHandler, nil
	}
	return o.handler, nil
}

func (o *Object) releaseHandler() {
	o.handlerBusy = false
	if o.handlerPending {
		o.handler, o.pendingHandler, o.handlerPending = o.pendingHandler, nil, false
	}
}

// deleteID runs the delete-id handler after the server retired the server
// id of this Object.
func (o *Object) deleteID() error {
	h, err := o.borrowHandler()
	if err != nil {
		return err
	}
	defer o.releaseHandler()

	if d, ok := h.(DeleteIDHandler); ok {
		d.HandleDeleteID(o)
	} else {
		o.DeleteID()
	}
	return nil
}

// drop breaks the references of this Object during teardown.
func (o *Object) drop() {
	o.UnsetHandler()
	o.client, o.clientID = nil, 0
}
