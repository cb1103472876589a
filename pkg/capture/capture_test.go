// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"
	"github.com/ulikunitz/xz"

	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

func sampleRecords() []Record {
	return []Record{
		{
			Seq:       1,
			Source:    "socket-1",
			Time:      time.UnixMicro(1700000000123456),
			Client:    1,
			Direction: proxy.Received,
			ObjectID:  1,
			Interface: "wl_display",
			Message:   "sync",
			Args:      "callback: wl_callback#2",
			Size:      12,
		},
		{
			Seq:       2,
			Time:      time.UnixMicro(1700000000123999),
			Direction: proxy.Sent,
			ObjectID:  1,
			Interface: "wl_display",
			Message:   "sync",
			Args:      "callback: wl_callback#2",
			Size:      12,
		},
	}
}

func TestRecordCbor(t *testing.T) {
	for _, rec := range sampleRecords() {
		var buf bytes.Buffer
		if err := cboring.Marshal(&rec, &buf); err != nil {
			t.Fatal(err)
		}

		var rec2 Record
		if err := cboring.Unmarshal(&rec2, &buf); err != nil {
			t.Fatal(err)
		}
		if !rec.Time.Equal(rec2.Time) {
			t.Fatalf("time changed from %v to %v", rec.Time, rec2.Time)
		}
		rec2.Time = rec.Time
		if !reflect.DeepEqual(rec, rec2) {
			t.Fatalf("record changed after unmarshalling: %v, %v", rec, rec2)
		}
	}
}

func TestRecordString(t *testing.T) {
	rec := sampleRecords()[0]
	rec.Time = time.UnixMicro(1234567)
	if s, expected := rec.String(), "[   1234.567] {socket-1} client#1    -> wl_display#1.sync(callback: wl_callback#2)"; s != expected {
		t.Fatalf("got %q, expected %q", s, expected)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wl.cap")
	recs := sampleRecords()

	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if w.Count() != uint64(len(recs)) {
		t.Fatalf("writer counted %d records", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(recs) {
		t.Fatalf("read %d records, expected %d", len(got), len(recs))
	}
	for i := range got {
		if got[i].String() != recs[i].String() || got[i].Seq != recs[i].Seq {
			t.Fatalf("record %d changed: %v", i, got[i])
		}
	}
}

func TestFileChecksum(t *testing.T) {
	var payload bytes.Buffer
	rec := sampleRecords()[0]
	if err := rec.MarshalCbor(&payload); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	xzW, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = xzW.Write([]byte(magic))
	_ = cboring.WriteArrayLength(2, xzW)
	_ = cboring.WriteByteString(payload.Bytes(), xzW)
	_ = cboring.WriteUInt(uint64(crc16.Checksum(payload.Bytes(), crcTable)^1), xzW)
	if err := xzW.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
}

func TestFileMagic(t *testing.T) {
	var buf bytes.Buffer
	xzW, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = xzW.Write([]byte("not a capture"))
	if err := xzW.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewReader(&buf); !errors.Is(err, ErrMagic) {
		t.Fatalf("expected ErrMagic, got %v", err)
	}
	if _, err := NewReader(bytes.NewReader([]byte("plain text"))); !errors.Is(err, ErrMagic) {
		t.Fatalf("expected ErrMagic, got %v", err)
	}
}

func TestRecorder(t *testing.T) {
	var got []Record
	rec := NewRecorder(SinkFunc(func(r Record) error {
		got = append(got, r)
		return nil
	}), 8)

	tracer := rec.Tracer("socket-3")
	for i := 0; i < 3; i++ {
		tracer.Trace(&proxy.TraceRecord{Time: time.Now(), Client: 2, Interface: "wl_surface", Message: "commit"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if len(got) != 3 {
		t.Fatalf("sink received %d records", len(got))
	}
	for i, r := range got {
		if r.Seq != uint64(i+1) || r.Source != "socket-3" || r.Client != 2 {
			t.Fatalf("unexpected record %d: %+v", i, r)
		}
	}
}

func TestRecorderDrops(t *testing.T) {
	rec := NewRecorder(MultiSink{}, 1)
	tracer := rec.Tracer("")
	for i := 0; i < 3; i++ {
		tracer.Trace(&proxy.TraceRecord{Time: time.Now()})
	}
	if rec.Dropped() != 2 {
		t.Fatalf("dropped %d records", rec.Dropped())
	}
}
