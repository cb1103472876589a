// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"time"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

// RecordItem is the stored form of a capture.Record. Id combines the import
// of the Record with its sequence number.
type RecordItem struct {
	Id uint64 `badgerhold:"key"`

	Source    string    `badgerholdIndex:"Source"`
	Client    uint64    `badgerholdIndex:"Client"`
	Interface string    `badgerholdIndex:"Interface"`
	Time      time.Time `badgerholdIndex:"Time"`

	Seq       uint64
	Direction proxy.Direction
	ObjectID  uint32
	Message   string
	Args      string
	Size      uint32
}

func newRecordItem(id uint64, rec capture.Record) RecordItem {
	return RecordItem{
		Id:        id,
		Source:    rec.Source,
		Client:    rec.Client,
		Interface: rec.Interface,
		Time:      rec.Time,
		Seq:       rec.Seq,
		Direction: rec.Direction,
		ObjectID:  rec.ObjectID,
		Message:   rec.Message,
		Args:      rec.Args,
		Size:      rec.Size,
	}
}

// Record converts the RecordItem back into a capture.Record.
func (ri RecordItem) Record() capture.Record {
	return capture.Record{
		Seq:       ri.Seq,
		Source:    ri.Source,
		Time:      ri.Time,
		Client:    ri.Client,
		Direction: ri.Direction,
		ObjectID:  ri.ObjectID,
		Interface: ri.Interface,
		Message:   ri.Message,
		Args:      ri.Args,
		Size:      ri.Size,
	}
}
