// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package wire

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FlushResult is the outcome of OutputBuffer.Flush.
type FlushResult int

const (
	// Done means that the buffer has been drained completely.
	Done FlushResult = iota
	// Blocked means that the socket would block and the rest must be retried.
	Blocked
)

// fdOffset attaches the next num descriptors of the fd queue to the message
// starting at offset.
type fdOffset struct {
	offset int
	num    int
}

// OutputBuffer holds outgoing messages and the descriptors they carry.
//
// Descriptors are sent together with the first byte of the message they
// belong to and a single sendmsg never extends past the start of the next
// fd-carrying message. The buffer owns duplicates of all queued descriptors
// and closes them once they have been sent.
type OutputBuffer struct {
	buf       []byte
	start     int
	fds       []int
	fdOffsets []fdOffset

	fmt Formatter
}

// Len is the number of bytes that have not been sent yet.
func (b *OutputBuffer) Len() int {
	return len(b.buf) - b.start
}

// Fds is the number of descriptors that have not been sent yet.
func (b *OutputBuffer) Fds() int {
	return len(b.fds)
}

// Begin starts a new message addressed to id. The message is committed by
// Formatter.End.
func (b *OutputBuffer) Begin(id uint32, opcode uint16) *Formatter {
	b.compact()

	b.fmt = Formatter{
		out:    b,
		begin:  len(b.buf),
		oldFds: len(b.fds),
	}
	b.fmt.word(id)
	b.fmt.word(uint32(opcode))
	return &b.fmt
}

// Flush writes as much of the buffer to fd as possible.
func (b *OutputBuffer) Flush(fd int) (FlushResult, error) {
	for b.start < len(b.buf) {
		if res, err := b.send(fd); err != nil || res == Blocked {
			return res, err
		}
	}
	b.compact()
	return Done, nil
}

// Close drops all pending data and closes all pending descriptors.
func (b *OutputBuffer) Close() {
	for _, fd := range b.fds {
		_ = unix.Close(fd)
	}
	b.buf = nil
	b.start = 0
	b.fds = nil
	b.fdOffsets = nil
}

func (b *OutputBuffer) send(fd int) (FlushResult, error) {
	start, end := b.start, len(b.buf)

	var current *fdOffset
	if len(b.fdOffsets) > 0 && b.fdOffsets[0].offset == start {
		current = &b.fdOffsets[0]
		if len(b.fdOffsets) > 1 {
			end = b.fdOffsets[1].offset
		}
	} else if len(b.fdOffsets) > 0 {
		end = b.fdOffsets[0].offset
	}

	var oob []byte
	if current != nil {
		oob = unix.UnixRights(b.fds[:current.num]...)
	}

	n, err := unix.SendmsgN(fd, b.buf[start:end], oob, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
	switch err {
	case nil:
	case unix.EAGAIN:
		return Blocked, nil
	case unix.ECONNRESET, unix.EPIPE:
		return Done, ErrClosed
	default:
		return Done, fmt.Errorf("failed to write to socket: %w", err)
	}

	if current != nil {
		for _, sent := range b.fds[:current.num] {
			_ = unix.Close(sent)
		}
		b.fds = b.fds[current.num:]
		b.fdOffsets = b.fdOffsets[1:]
	}
	b.start += n
	return Done, nil
}

// compact moves unsent bytes to the front once at least half of the buffer
// has been sent.
func (b *OutputBuffer) compact() {
	if b.start == 0 {
		return
	}
	if b.start == len(b.buf) {
		b.buf = b.buf[:0]
		b.start = 0
		return
	}
	if b.start < MaxMessageSize || b.start < len(b.buf)/2 {
		return
	}

	n := copy(b.buf, b.buf[b.start:])
	b.buf = b.buf[:n]
	for i := range b.fdOffsets {
		b.fdOffsets[i].offset -= b.start
	}
	b.start = 0
}
