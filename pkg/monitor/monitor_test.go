// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

func traffic(m *Monitor) {
	tracer := m.Tracer("socket-1")
	now := time.Now()
	tracer.Trace(&proxy.TraceRecord{Time: now, Client: 1, Direction: proxy.Received, ObjectID: 1, Interface: "wl_display", Message: "sync", Size: 12})
	tracer.Trace(&proxy.TraceRecord{Time: now, Direction: proxy.Sent, ObjectID: 1, Interface: "wl_display", Message: "sync", Size: 12})
	tracer.Trace(&proxy.TraceRecord{Time: now, Direction: proxy.Received, ObjectID: 2, Interface: "wl_callback", Message: "done", Size: 12})
	tracer.Trace(&proxy.TraceRecord{Time: now, Client: 1, Direction: proxy.Sent, ObjectID: 2, Interface: "wl_callback", Message: "done", Size: 12})
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestStats(t *testing.T) {
	m := New(0)
	m.ClientConnected("socket-1")
	traffic(m)
	m.ClientDisconnected("socket-1")

	srv := httptest.NewServer(m)
	defer srv.Close()

	var stats StatsResponse
	if code := getJSON(t, srv.URL+"/stats", &stats); code != http.StatusOK {
		t.Fatalf("/stats returned %d", code)
	}
	expected := proxy.Stats{
		ClientsConnected:         1,
		ClientsDisconnected:      1,
		RequestsReceived:         1,
		RequestsSent:             1,
		EventsReceived:           1,
		EventsSent:               1,
		BytesReceivedFromClients: 12,
		BytesReceivedFromServer:  12,
	}
	if stats.Total != expected {
		t.Fatalf("got %+v, expected %+v", stats.Total, expected)
	}
	if stats.Sources["socket-1"] != expected {
		t.Fatalf("source stats are %+v", stats.Sources["socket-1"])
	}

	var source proxy.Stats
	if code := getJSON(t, srv.URL+"/stats/socket-1", &source); code != http.StatusOK || source != expected {
		t.Fatalf("/stats/socket-1 returned %d %+v", code, source)
	}
	if code := getJSON(t, srv.URL+"/stats/socket-9", &source); code != http.StatusNotFound {
		t.Fatalf("unknown source returned %d", code)
	}
}

func TestRecords(t *testing.T) {
	m := New(3)
	traffic(m)

	srv := httptest.NewServer(m)
	defer srv.Close()

	var recs []RecordResponse
	if code := getJSON(t, srv.URL+"/records", &recs); code != http.StatusOK {
		t.Fatalf("/records returned %d", code)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, expected the history of 3", len(recs))
	}
	for i, rec := range recs {
		if rec.Seq != uint64(i+2) {
			t.Fatalf("record %d has seq %d", i, rec.Seq)
		}
	}

	if code := getJSON(t, srv.URL+"/records?limit=1", &recs); code != http.StatusOK {
		t.Fatalf("/records returned %d", code)
	}
	if len(recs) != 1 || recs[0].Seq != 4 || !recs[0].Sent || recs[0].Interface != "wl_callback" {
		t.Fatalf("unexpected records %+v", recs)
	}

	if code := getJSON(t, srv.URL+"/records?limit=x", &recs); code != http.StatusBadRequest {
		t.Fatalf("invalid limit returned %d", code)
	}
}

func TestFeed(t *testing.T) {
	m := New(0)
	srv := httptest.NewServer(m)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/feed", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for m.subscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	traffic(m)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 4; i++ {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if messageType != websocket.BinaryMessage {
			t.Fatalf("message type is %d", messageType)
		}
		var rec capture.Record
		if err := rec.UnmarshalCbor(bytes.NewReader(data)); err != nil {
			t.Fatal(err)
		}
		if rec.Seq != uint64(i+1) || rec.Source != "socket-1" {
			t.Fatalf("unexpected record %+v", rec)
		}
	}

	_ = conn.Close()
	deadline = time.Now().Add(5 * time.Second)
	for m.subscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed client was not unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
