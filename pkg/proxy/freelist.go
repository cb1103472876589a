// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import "container/heap"

// freeList allocates small integer ids. Released ids are reused lowest
// first before new ids are handed out.
type freeList struct {
	released idHeap
	next     uint32
}

func (l *freeList) acquire() uint32 {
	if len(l.released) > 0 {
		return heap.Pop(&l.released).(uint32)
	}
	id := l.next
	l.next++
	return id
}

func (l *freeList) release(id uint32) {
	heap.Push(&l.released, id)
}

type idHeap []uint32

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *idHeap) Push(x any) {
	*h = append(*h, x.(uint32))
}

func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
