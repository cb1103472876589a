// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"testing"
	"time"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

func TestTraceFormat(t *testing.T) {
	rec := TraceRecord{
		Time:      time.UnixMicro(1234567),
		Client:    12,
		Direction: Sent,
		ObjectID:  3,
		Interface: "wl_surface",
		Message:   "commit",
	}
	if got, expected := rec.Format("{socket-1} "), "[   1234.567] {socket-1} client#12   <= wl_surface#3.commit()"; got != expected {
		t.Fatalf("got %q, expected %q", got, expected)
	}

	rec.Client = 0
	rec.Direction = Received
	if got, expected := rec.Format(""), "[   1234.567] server      -> wl_surface#3.commit()"; got != expected {
		t.Fatalf("got %q, expected %q", got, expected)
	}
}

func TestFormatArgs(t *testing.T) {
	s, _ := newTestState(t, NewBuilder())

	seat := s.CreateObject(protocol.WlSeat, 7)
	seat.serverID = 12

	tests := []struct {
		name     string
		iface    *protocol.Interface
		event    bool
		message  string
		args     []any
		expected string
	}{
		{"string", protocol.WlSeat, true, "name", []any{"seat0"}, `name: "seat0"`},
		{"uint", protocol.WlCallback, true, "done", []any{uint32(42)}, "callback_data: 42"},
		{"untyped new_id", protocol.WlRegistry, false, "bind", []any{uint32(5), seat}, "name: 5, id: wl_seat#12 (version: 7)"},
		{"null new_id", protocol.WlDisplay, false, "sync", []any{nil}, "callback: null"},
		{"fixed", protocol.WlPointer, true, "motion", []any{uint32(1), wire.FixedFromInt(2), wire.FixedFromFloat64(0.5)}, "time: 1, surface_x: 2, surface_y: 0.5"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var (
				msg *Message
				err error
			)
			if test.event {
				msg, err = NewEvent(test.iface, test.message, test.args...)
			} else {
				msg, err = NewRequest(test.iface, test.message, test.args...)
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := formatArgs(msg, serverSide); got != test.expected {
				t.Fatalf("got %q, expected %q", got, test.expected)
			}
		})
	}
}

func TestStatsAdd(t *testing.T) {
	a := Stats{ClientsConnected: 1, RequestsSent: 2, BytesReceivedFromServer: 10}
	a.Add(Stats{ClientsConnected: 2, EventsSent: 3, BytesReceivedFromServer: 5})

	expected := Stats{ClientsConnected: 3, RequestsSent: 2, EventsSent: 3, BytesReceivedFromServer: 15}
	if a != expected {
		t.Fatalf("got %+v, expected %+v", a, expected)
	}
}
