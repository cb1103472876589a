// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "os"

// FdQueue is a FIFO of received file descriptors.
type FdQueue struct {
	fds []*os.File
}

// Push appends a descriptor at the end of the queue.
func (q *FdQueue) Push(f *os.File) {
	q.fds = append(q.fds, f)
}

// Pop removes the oldest descriptor. The second return value is false for an
// empty queue.
func (q *FdQueue) Pop() (*os.File, bool) {
	if len(q.fds) == 0 {
		return nil, false
	}
	f := q.fds[0]
	q.fds[0] = nil
	q.fds = q.fds[1:]
	if len(q.fds) == 0 {
		q.fds = nil
	}
	return f, true
}

// Len is the number of queued descriptors.
func (q *FdQueue) Len() int {
	return len(q.fds)
}

// Close closes and drops every queued descriptor.
func (q *FdQueue) Close() {
	for _, f := range q.fds {
		_ = f.Close()
	}
	q.fds = nil
}
