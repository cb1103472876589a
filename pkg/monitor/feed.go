// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"bytes"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
)

const feedBuffer = 256

// subscriber is a WebSocket client of /feed. Records that do not fit into
// its queue are dropped.
type subscriber struct {
	conn    *websocket.Conn
	records chan capture.Record
	closed  chan struct{}

	shutdownOnce sync.Once
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn:    conn,
		records: make(chan capture.Record, feedBuffer),
		closed:  make(chan struct{}),
	}
}

func (sub *subscriber) offer(rec capture.Record) {
	select {
	case sub.records <- rec:
	default:
	}
}

func (sub *subscriber) shutdown() {
	sub.shutdownOnce.Do(func() {
		log.WithField("feed client", sub.conn.RemoteAddr().String()).Debug("Reached shutdown")

		close(sub.closed)
		_ = sub.conn.Close()
	})
}

// run writes records until the connection fails. Incoming messages are
// discarded; reading detects the close of the peer.
func (sub *subscriber) run() {
	defer sub.shutdown()

	go func() {
		defer sub.shutdown()
		for {
			if _, _, err := sub.conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var buf bytes.Buffer
	for {
		select {
		case <-sub.closed:
			return
		case rec := <-sub.records:
			buf.Reset()
			if err := rec.MarshalCbor(&buf); err != nil {
				log.WithError(err).Warn("Marshalling a feed record errored")
				continue
			}
			if err := sub.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
				log.WithError(err).Debug("Writing to feed client errored")
				return
			}
		}
	}
}
