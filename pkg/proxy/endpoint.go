// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"golang.org/x/sys/unix"

	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

// endpoint is one framed connection, either to the server or to a client.
type endpoint struct {
	key    uint64
	fd     int
	client *Client

	in    wire.InputBuffer
	inFds wire.FdQueue
	out   wire.OutputBuffer

	objects map[uint32]*Object
	ids     freeList

	flushQueued  bool
	unregistered bool

	currentInterest      uint32
	desiredInterest      uint32
	interestUpdateQueued bool
}

func newEndpoint(key uint64, fd int, client *Client) *endpoint {
	return &endpoint{
		key:     key,
		fd:      fd,
		client:  client,
		objects: make(map[uint32]*Object),
	}
}

func (e *endpoint) flush() (wire.FlushResult, error) {
	res, err := e.out.Flush(e.fd)
	if err != nil {
		return res, &EndpointError{Kind: EndpointFlush, Err: err}
	}
	return res, nil
}

// readMessages handles every complete message of the endpoint. At most one
// recvmsg is issued per call.
func (e *endpoint) readMessages(s *State) error {
	mayRead := true
	for {
		if s.destroyed || (e.client != nil && e.client.destroyed) {
			return nil
		}

		frame, err := e.in.ReadMessage(e.fd, &mayRead, &e.inFds)
		if err != nil {
			return &EndpointError{Kind: EndpointRead, Err: err}
		}
		if frame == nil {
			return nil
		}

		id, opcode, size := wire.Header(frame)
		obj, ok := e.objects[id]
		if !ok {
			return &EndpointError{Kind: EndpointNoReceiver, ID: id}
		}

		if e.client != nil {
			s.stats.BytesReceivedFromClients += uint64(size)
			err = s.handleRequest(obj, e.client, frame)
		} else {
			s.stats.BytesReceivedFromServer += uint64(size)
			err = s.handleEvent(obj, frame)
		}
		if err != nil {
			merr := &MessageError{Object: id, Interface: obj.iface.Name, Opcode: opcode, Err: err}
			if e.client != nil {
				if sig, ok := obj.iface.Request(opcode); ok {
					merr.Message = sig.Name
				}
			} else if sig, ok := obj.iface.Event(opcode); ok {
				merr.Message = sig.Name
			}
			return &EndpointError{Kind: EndpointHandleMessage, Err: merr}
		}
	}
}

// close releases the socket and every buffered descriptor.
func (e *endpoint) close() {
	if e.fd < 0 {
		return
	}
	_ = unix.Close(e.fd)
	e.fd = -1
	e.out.Close()
	e.inFds.Close()
}
