// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package wire

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// InputBuffer accumulates bytes read from a socket until complete frames are
// available. It holds up to two maximum sized messages.
type InputBuffer struct {
	buf   [bufferSize]byte
	start int
	valid int
	oob   []byte
}

// Buffered is the number of bytes that have been read but not returned yet.
func (b *InputBuffer) Buffered() int {
	return b.valid
}

// ReadMessage returns the next complete frame. If the buffer does not hold a
// complete frame and *mayRead is true, a single recvmsg is issued on fd and
// *mayRead is cleared. Received descriptors are appended to fds.
//
// A nil frame without an error means that more data is needed. The returned
// frame is only valid until the next call.
func (b *InputBuffer) ReadMessage(fd int, mayRead *bool, fds *FdQueue) ([]byte, error) {
	if b.valid == 0 {
		b.start = 0
	}

	if b.valid < HeaderSize {
		if err := b.fill(fd, mayRead, fds); err != nil {
			return nil, err
		}
		if b.valid < HeaderSize {
			return nil, nil
		}
	}

	_, _, size := Header(b.buf[b.start:])
	if err := checkSize(size); err != nil {
		return nil, err
	}

	if size > b.valid {
		if err := b.fill(fd, mayRead, fds); err != nil {
			return nil, err
		}
		if size > b.valid {
			return nil, nil
		}
	}

	frame := b.buf[b.start : b.start+size]
	b.start += size
	b.valid -= size
	return frame, nil
}

// fill moves the valid bytes to the front and reads once from the socket.
func (b *InputBuffer) fill(fd int, mayRead *bool, fds *FdQueue) error {
	if !*mayRead {
		return nil
	}
	*mayRead = false

	if b.start > 0 {
		copy(b.buf[:], b.buf[b.start:b.start+b.valid])
		b.start = 0
	}
	if b.oob == nil {
		b.oob = make([]byte, unix.CmsgSpace(maxFdsPerMessage*4))
	}

	n, oobn, _, _, err := unix.Recvmsg(fd, b.buf[b.valid:], b.oob, unix.MSG_CMSG_CLOEXEC|unix.MSG_DONTWAIT)
	if err == unix.EAGAIN {
		return nil
	} else if err == unix.ECONNRESET {
		return ErrClosed
	} else if err != nil {
		return fmt.Errorf("failed to read from socket: %w", err)
	}

	if oobn > 0 {
		if err := parseRights(b.oob[:oobn], fds); err != nil {
			return err
		}
	}
	if n == 0 && oobn == 0 {
		return ErrClosed
	}

	b.valid += n
	return nil
}

func parseRights(oob []byte, fds *FdQueue) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("failed to parse control message: %w", err)
	}

	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			return fmt.Errorf("failed to parse SCM_RIGHTS: %w", err)
		}
		for _, fd := range rights {
			fds.Push(os.NewFile(uintptr(fd), "wayland-fd"))
		}
	}
	return nil
}
