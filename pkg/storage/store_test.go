// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"bytes"
	"testing"
	"time"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

func records(base time.Time) []capture.Record {
	return []capture.Record{
		{Seq: 1, Source: "socket-1", Time: base, Client: 1, Interface: "wl_display", Message: "sync", Size: 12},
		{Seq: 2, Source: "socket-1", Time: base.Add(time.Second), Direction: proxy.Sent, Interface: "wl_display", Message: "sync", Size: 12},
		{Seq: 3, Source: "socket-1", Time: base.Add(2 * time.Second), Client: 1, Interface: "wl_surface", Message: "commit", Size: 8},
		{Seq: 1, Source: "socket-2", Time: base.Add(3 * time.Second), Client: 1, Interface: "wl_surface", Message: "commit", Size: 8},
	}
}

func TestStore(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Unix(1700000000, 0)
	for _, rec := range records(base) {
		if err := store.Write(rec); err != nil {
			t.Fatal(err)
		}
	}

	if ri, err := store.QueryId(2); err != nil {
		t.Fatal(err)
	} else if ri.Interface != "wl_surface" || ri.Seq != 3 {
		t.Fatalf("unexpected item %+v", ri)
	}

	if ris, err := store.QueryInterface("wl_surface"); err != nil {
		t.Fatal(err)
	} else if l := len(ris); l != 2 {
		t.Fatalf("found %d wl_surface items, instead of 2", l)
	}

	if ris, err := store.QueryClient("socket-1", 1); err != nil {
		t.Fatal(err)
	} else if l := len(ris); l != 2 {
		t.Fatalf("found %d items of client 1, instead of 2", l)
	}

	if ris, err := store.QueryRange(base.Add(time.Second), base.Add(3*time.Second)); err != nil {
		t.Fatal(err)
	} else if l := len(ris); l != 2 {
		t.Fatalf("found %d items in range, instead of 2", l)
	}

	if err := store.DeleteBefore(base.Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if ris, err := store.QueryAll(); err != nil {
		t.Fatal(err)
	} else if l := len(ris); l != 2 {
		t.Fatalf("found %d items after deletion, instead of 2", l)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// Ids continue after reopening.
	store, err = NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Write(records(base)[0]); err != nil {
		t.Fatal(err)
	}
	if ri, err := store.QueryId(4); err != nil {
		t.Fatal(err)
	} else if ri.Record().String() != records(base)[0].String() {
		t.Fatalf("unexpected item %+v", ri)
	}
}

func TestStoreImport(t *testing.T) {
	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	recs := records(time.Unix(1700000000, 0))
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := capture.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if n, err := store.Import(r); err != nil {
		t.Fatal(err)
	} else if n != len(recs) {
		t.Fatalf("imported %d records, instead of %d", n, len(recs))
	}
	if ris, err := store.QueryAll(); err != nil {
		t.Fatal(err)
	} else if l := len(ris); l != len(recs) {
		t.Fatalf("found %d items, instead of %d", l, len(recs))
	}
}
