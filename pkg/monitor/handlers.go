// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

// StatsResponse is the body of /stats.
type StatsResponse struct {
	Total   proxy.Stats            `json:"total"`
	Sources map[string]proxy.Stats `json:"sources"`
}

// RecordResponse is one entry of /records.
type RecordResponse struct {
	Seq       uint64    `json:"seq"`
	Source    string    `json:"source"`
	Time      time.Time `json:"time"`
	Client    uint64    `json:"client"`
	Sent      bool      `json:"sent"`
	ObjectID  uint32    `json:"object_id"`
	Interface string    `json:"interface"`
	Message   string    `json:"message"`
	Args      string    `json:"args"`
	Size      uint32    `json:"size"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write monitor response")
	}
}

func (m *Monitor) handleStats(w http.ResponseWriter, _ *http.Request) {
	total, sources := m.Stats()
	writeJSON(w, StatsResponse{Total: total, Sources: sources})
}

func (m *Monitor) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	_, sources := m.Stats()
	s, ok := sources[mux.Vars(r)["source"]]
	if !ok {
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}
	writeJSON(w, s)
}

func (m *Monitor) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs := m.Recent(limit)
	resp := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, RecordResponse{
			Seq:       rec.Seq,
			Source:    rec.Source,
			Time:      rec.Time,
			Client:    rec.Client,
			Sent:      rec.Direction == proxy.Sent,
			ObjectID:  rec.ObjectID,
			Interface: rec.Interface,
			Message:   rec.Message,
			Args:      rec.Args,
			Size:      rec.Size,
		})
	}
	writeJSON(w, resp)
}

func (m *Monitor) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	sub := newSubscriber(conn)
	m.subscribe(sub)
	defer m.unsubscribe(sub)

	sub.run()
}
