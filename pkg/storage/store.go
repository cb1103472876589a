// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"errors"
	"io"
	"os"
	"path"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
)

const dirBadger string = "db"

// Store is an indexed database of captured Records. It implements
// capture.Sink.
type Store struct {
	bh *badgerhold.Store

	mu     sync.Mutex
	nextId uint64
}

// NewStore creates a new Store or opens an existing Store from the given path.
func NewStore(dir string) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	bh, bhErr := badgerhold.Open(opts)
	if bhErr != nil {
		err = bhErr
		return
	}
	s = &Store{bh: bh}

	var last []RecordItem
	if err = bh.Find(&last, (&badgerhold.Query{}).SortBy("Id").Reverse().Limit(1)); err != nil {
		_ = bh.Close()
		s = nil
		return
	}
	if len(last) > 0 {
		s.nextId = last[0].Id + 1
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Write inserts rec under a new id.
func (s *Store) Write(rec capture.Record) error {
	s.mu.Lock()
	id := s.nextId
	s.nextId++
	s.mu.Unlock()

	return s.bh.Insert(id, newRecordItem(id, rec))
}

// Import inserts every Record of r and returns their number.
func (s *Store) Import(r *capture.Reader) (n int, err error) {
	for {
		rec, recErr := r.Next()
		if recErr != nil {
			if !errors.Is(recErr, io.EOF) {
				err = recErr
			}
			break
		}
		if err = s.Write(rec); err != nil {
			return
		}
		n++
	}

	log.WithField("records", n).Info("Store imported capture")
	return
}

// QueryId fetches a single RecordItem.
func (s *Store) QueryId(id uint64) (ri RecordItem, err error) {
	err = s.bh.Get(id, &ri)
	return
}

// QueryInterface fetches all RecordItems of an interface in insertion order.
func (s *Store) QueryInterface(iface string) (ris []RecordItem, err error) {
	err = s.bh.Find(&ris, badgerhold.Where("Interface").Eq(iface).Index("Interface").SortBy("Id"))
	return
}

// QueryClient fetches all RecordItems of one client of one source.
func (s *Store) QueryClient(source string, client uint64) (ris []RecordItem, err error) {
	err = s.bh.Find(&ris, badgerhold.Where("Source").Eq(source).And("Client").Eq(client).SortBy("Id"))
	return
}

// QueryRange fetches all RecordItems with from <= Time < to.
func (s *Store) QueryRange(from, to time.Time) (ris []RecordItem, err error) {
	err = s.bh.Find(&ris, badgerhold.Where("Time").Ge(from).And("Time").Lt(to).SortBy("Id"))
	return
}

// QueryAll fetches all RecordItems in insertion order.
func (s *Store) QueryAll() (ris []RecordItem, err error) {
	err = s.bh.Find(&ris, (&badgerhold.Query{}).SortBy("Id"))
	return
}

// DeleteBefore removes all RecordItems older than t.
func (s *Store) DeleteBefore(t time.Time) error {
	return s.bh.DeleteMatching(RecordItem{}, badgerhold.Where("Time").Lt(t))
}
