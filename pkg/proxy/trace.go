// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
)

// Direction of a traced message as seen from the proxy.
type Direction uint8

const (
	Received Direction = iota
	Sent
)

func (d Direction) String() string {
	if d == Sent {
		return "<="
	}
	return "->"
}

// TraceRecord describes a single message that crossed a socket.
type TraceRecord struct {
	Time time.Time
	// Client is the id of the client, 0 for the server connection.
	Client    uint64
	Direction Direction
	ObjectID  uint32
	Interface string
	Message   string
	Args      string
	Size      int
}

// Server reports whether the message was exchanged with the server.
func (r *TraceRecord) Server() bool {
	return r.Client == 0
}

// Format renders the record in the usual WAYLAND_DEBUG style.
func (r *TraceRecord) Format(prefix string) string {
	us := uint32(r.Time.UnixMicro())
	millis, micros := us/1000, us%1000

	peer := "server      "
	if !r.Server() {
		peer = fmt.Sprintf("client#%-4d ", r.Client)
	}
	return fmt.Sprintf("[%7d.%03d] %s%s%s %s#%d.%s(%s)",
		millis, micros, prefix, peer, r.Direction, r.Interface, r.ObjectID, r.Message, r.Args)
}

// Tracer observes every message that is received or sent by a State. Tracers
// run on the goroutine driving the State and must not block.
type Tracer interface {
	Trace(rec *TraceRecord)
}

// TracerFunc adapts a function to a Tracer.
type TracerFunc func(rec *TraceRecord)

func (f TracerFunc) Trace(rec *TraceRecord) {
	f(rec)
}

// MultiTracer passes each record to all of its tracers.
type MultiTracer []Tracer

func (m MultiTracer) Trace(rec *TraceRecord) {
	for _, t := range m {
		t.Trace(rec)
	}
}

// LogTracer writes one line per message to a logrus logger.
type LogTracer struct {
	Logger *log.Logger
	Prefix string
}

// NewLogTracer creates a LogTracer for the standard logger. The prefix is
// written verbatim in front of the peer of each line.
func NewLogTracer(prefix string) *LogTracer {
	return &LogTracer{Logger: log.StandardLogger(), Prefix: prefix}
}

func (t *LogTracer) Trace(rec *TraceRecord) {
	t.Logger.Info(rec.Format(t.Prefix))
}

// Stats are the counters of a State.
type Stats struct {
	ClientsConnected    uint64 `json:"clients_connected"`
	ClientsDisconnected uint64 `json:"clients_disconnected"`
	RequestsReceived    uint64 `json:"requests_received"`
	RequestsSent        uint64 `json:"requests_sent"`
	EventsReceived      uint64 `json:"events_received"`
	EventsSent          uint64 `json:"events_sent"`

	BytesReceivedFromClients uint64 `json:"bytes_received_from_clients"`
	BytesReceivedFromServer  uint64 `json:"bytes_received_from_server"`
}

// Add accumulates the counters of o.
func (s *Stats) Add(o Stats) {
	s.ClientsConnected += o.ClientsConnected
	s.ClientsDisconnected += o.ClientsDisconnected
	s.RequestsReceived += o.RequestsReceived
	s.RequestsSent += o.RequestsSent
	s.EventsReceived += o.EventsReceived
	s.EventsSent += o.EventsSent
	s.BytesReceivedFromClients += o.BytesReceivedFromClients
	s.BytesReceivedFromServer += o.BytesReceivedFromServer
}

// formatArgs renders the arguments of msg. id maps objects to the namespace
// of the peer the message was exchanged with.
func formatArgs(msg *Message, id func(*Object) uint32) string {
	var b strings.Builder
	for i, arg := range msg.Signature.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.Name)
		b.WriteString(": ")

		switch arg.Type {
		case protocol.Int:
			fmt.Fprint(&b, msg.Int(i))
		case protocol.Uint:
			fmt.Fprint(&b, msg.Uint(i))
		case protocol.Fixed:
			b.WriteString(msg.Fixed(i).String())
		case protocol.String:
			if s, ok := msg.String(i); ok {
				fmt.Fprintf(&b, "%q", s)
			} else {
				b.WriteString("null")
			}
		case protocol.Object, protocol.NewID:
			obj := msg.Object(i)
			if obj == nil {
				b.WriteString("null")
				break
			}
			fmt.Fprintf(&b, "%s#%d", obj.iface.Name, id(obj))
			if arg.Type == protocol.NewID && arg.Interface == "" {
				fmt.Fprintf(&b, " (version: %d)", obj.version)
			}
		case protocol.Array:
			a := msg.Array(i)
			if len(a) == 0 {
				b.WriteString("0x0")
			} else {
				b.WriteString("0x" + hex.EncodeToString(a))
			}
		case protocol.Fd:
			b.WriteString("fd")
		}
	}
	return b.String()
}

func serverSide(o *Object) uint32 {
	return o.serverID
}

func clientSide(o *Object) uint32 {
	return o.clientID
}

// trace emits a record if a tracer is installed.
func (s *State) trace(client uint64, dir Direction, id uint32, obj *Object, msg *Message, size int) {
	if s.tracer == nil {
		return
	}
	side := serverSide
	if client != 0 {
		side = clientSide
	}
	s.tracer.Trace(&TraceRecord{
		Time:      time.Now(),
		Client:    client,
		Direction: dir,
		ObjectID:  id,
		Interface: obj.iface.Name,
		Message:   msg.Name(),
		Args:      formatArgs(msg, side),
		Size:      size,
	})
}
