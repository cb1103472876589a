// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"reflect"
	"testing"
)

func TestFreeList(t *testing.T) {
	var l freeList

	var got []uint32
	for i := 0; i < 3; i++ {
		got = append(got, l.acquire())
	}
	l.release(1)
	l.release(0)
	for i := 0; i < 3; i++ {
		got = append(got, l.acquire())
	}

	if expected := []uint32{0, 1, 2, 0, 1, 3}; !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %v, expected %v", got, expected)
	}
}
