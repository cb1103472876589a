// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package proxy implements a Wayland proxy that sits between one server and
// any number of clients.
//
// A State owns the server connection and all client connections. Each
// connection has its own object id namespace. Objects are created by the
// proxy and carry at most one id in the namespace of the server and at most
// one id in the namespace of a single client; ids are assigned when an
// object is first mentioned in a message to that side. Messages are decoded
// with the schemas of a protocol.Registry and passed to the Handler of their
// receiver, which by default forwards them to the other side.
//
// A State is not safe for concurrent use. Run one State per goroutine, for
// example with SimpleProxy, and use a RemoteDestructor to stop it from
// elsewhere.
package proxy
