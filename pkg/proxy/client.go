// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Client is a downstream connection of a State.
type Client struct {
	state     *State
	key       uint64
	endpoint  *endpoint
	display   *Object
	destroyed bool
	handler   ClientHandler
}

func (c *Client) String() string {
	return fmt.Sprintf("client#%d", c.key)
}

// ID of the client. It is unique within its State and never reused.
func (c *Client) ID() uint64 {
	return c.key
}

// State of the client.
func (c *Client) State() *State {
	return c.state
}

// Display is the wl_display object of the client.
func (c *Client) Display() *Object {
	return c.display
}

// IsDestroyed reports whether the client has been disconnected.
func (c *Client) IsDestroyed() bool {
	return c.destroyed
}

// SetHandler installs the disconnect handler of the client.
func (c *Client) SetHandler(h ClientHandler) {
	if c.destroyed {
		return
	}
	c.handler = h
}

// UnsetHandler removes the disconnect handler.
func (c *Client) UnsetHandler() {
	c.handler = nil
}

// Disconnect closes the connection of the client and removes every object
// from its id table. The disconnect handler runs first.
func (c *Client) Disconnect() {
	if c.destroyed {
		return
	}
	h := c.handler
	c.handler = nil
	if h != nil {
		h.Disconnected(c)
	}
	c.disconnect()
}

func (c *Client) disconnect() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	for _, obj := range c.endpoint.objects {
		if obj.client == c {
			obj.client, obj.clientID = nil, 0
			obj.awaitingDeleteID = false
		}
	}
	clear(c.endpoint.objects)
	c.state.removeEndpoint(c.endpoint)
	c.state.stats.ClientsDisconnected++

	log.WithField("client", c.key).Info("Client disconnected")
}
