// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package monitor serves live statistics and a message feed of running
// proxies over HTTP.
//
// Routes:
//
//	GET /stats            totals and per-source counters as JSON
//	GET /stats/{source}   counters of a single source
//	GET /records?limit=N  the most recent records as JSON
//	GET /feed             WebSocket, one binary CBOR capture.Record per message
package monitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

// DefaultHistory is the number of records kept for /records.
const DefaultHistory = 256

// Monitor aggregates the trace records of any number of States. Its Tracers
// and its HTTP handlers may be used concurrently.
type Monitor struct {
	router   *mux.Router
	upgrader websocket.Upgrader

	mu          sync.Mutex
	sources     map[string]*proxy.Stats
	history     []capture.Record
	historyNext int
	historyFull bool
	subscribers map[*subscriber]struct{}

	seq atomic.Uint64
}

// New creates a Monitor that remembers the last history records.
func New(history int) *Monitor {
	if history <= 0 {
		history = DefaultHistory
	}
	m := &Monitor{
		router:      mux.NewRouter(),
		sources:     make(map[string]*proxy.Stats),
		history:     make([]capture.Record, history),
		subscribers: make(map[*subscriber]struct{}),
	}

	m.router.HandleFunc("/stats", m.handleStats).Methods(http.MethodGet)
	m.router.HandleFunc("/stats/{source}", m.handleSourceStats).Methods(http.MethodGet)
	m.router.HandleFunc("/records", m.handleRecords).Methods(http.MethodGet)
	m.router.HandleFunc("/feed", m.handleFeed).Methods(http.MethodGet)

	return m
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is done.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("listen", addr).Info("Starting monitor")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Tracer returns a proxy.Tracer feeding the Monitor under source.
func (m *Monitor) Tracer(source string) proxy.Tracer {
	return proxy.TracerFunc(func(rec *proxy.TraceRecord) {
		m.observe(capture.FromTrace(m.seq.Add(1), source, rec))
	})
}

// ClientConnected counts a new client of source.
func (m *Monitor) ClientConnected(source string) {
	m.mu.Lock()
	m.source(source).ClientsConnected++
	m.mu.Unlock()
}

// ClientDisconnected counts a lost client of source.
func (m *Monitor) ClientDisconnected(source string) {
	m.mu.Lock()
	m.source(source).ClientsDisconnected++
	m.mu.Unlock()
}

// source must be called with mu held.
func (m *Monitor) source(name string) *proxy.Stats {
	s, ok := m.sources[name]
	if !ok {
		s = &proxy.Stats{}
		m.sources[name] = s
	}
	return s
}

func (m *Monitor) observe(rec capture.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.source(rec.Source)
	switch {
	case rec.Client != 0 && rec.Direction == proxy.Received:
		s.RequestsReceived++
		s.BytesReceivedFromClients += uint64(rec.Size)
	case rec.Client != 0:
		s.EventsSent++
	case rec.Direction == proxy.Received:
		s.EventsReceived++
		s.BytesReceivedFromServer += uint64(rec.Size)
	default:
		s.RequestsSent++
	}

	m.history[m.historyNext] = rec
	m.historyNext = (m.historyNext + 1) % len(m.history)
	if m.historyNext == 0 {
		m.historyFull = true
	}

	for sub := range m.subscribers {
		sub.offer(rec)
	}
}

// Stats returns the totals and a copy of the per-source counters.
func (m *Monitor) Stats() (total proxy.Stats, sources map[string]proxy.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sources = make(map[string]proxy.Stats, len(m.sources))
	for name, s := range m.sources {
		sources[name] = *s
		total.Add(*s)
	}
	return
}

// Recent returns up to limit of the most recent records, oldest first.
func (m *Monitor) Recent(limit int) []capture.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []capture.Record
	if m.historyFull {
		recs = append(recs, m.history[m.historyNext:]...)
	}
	recs = append(recs, m.history[:m.historyNext]...)
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}

func (m *Monitor) subscribe(sub *subscriber) {
	m.mu.Lock()
	m.subscribers[sub] = struct{}{}
	m.mu.Unlock()
}

func (m *Monitor) unsubscribe(sub *subscriber) {
	m.mu.Lock()
	delete(m.subscribers, sub)
	m.mu.Unlock()
}

func (m *Monitor) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}
