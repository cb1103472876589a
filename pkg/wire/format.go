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

// Formatter appends the arguments of a single message to an OutputBuffer.
// The first error is sticky and reported by End.
type Formatter struct {
	out    *OutputBuffer
	begin  int
	oldFds int
	err    error
}

func (f *Formatter) word(v uint32) {
	f.out.buf = order.AppendUint32(f.out.buf, v)
}

// Uint appends an unsigned integer.
func (f *Formatter) Uint(v uint32) *Formatter {
	f.word(v)
	return f
}

// Int appends a signed integer.
func (f *Formatter) Int(v int32) *Formatter {
	f.word(uint32(v))
	return f
}

// Fixed appends a 24.8 fixed point number.
func (f *Formatter) Fixed(v Fixed) *Formatter {
	f.word(uint32(v))
	return f
}

// Object appends an object id. A zero id encodes a null object.
func (f *Formatter) Object(id uint32) *Formatter {
	f.word(id)
	return f
}

// String appends a NUL terminated string.
func (f *Formatter) String(s string) *Formatter {
	f.word(uint32(len(s) + 1))
	f.out.buf = append(f.out.buf, s...)
	f.out.buf = append(f.out.buf, 0)
	f.pad()
	return f
}

// NullString appends the null string.
func (f *Formatter) NullString() *Formatter {
	f.word(0)
	return f
}

// Array appends a byte array.
func (f *Formatter) Array(a []byte) *Formatter {
	f.word(uint32(len(a)))
	f.out.buf = append(f.out.buf, a...)
	f.pad()
	return f
}

// Fd queues a duplicate of the descriptor backing file.
func (f *Formatter) Fd(file *os.File) *Formatter {
	if f.err != nil {
		return f
	}
	dup, err := dupFile(file)
	if err != nil {
		f.err = err
		return f
	}
	f.out.fds = append(f.out.fds, dup)
	return f
}

// End patches the message size into the header and commits the message. On
// error the message is discarded.
func (f *Formatter) End() error {
	size := len(f.out.buf) - f.begin
	if f.err == nil && size > MaxMessageSize {
		f.err = frameSizeError(ErrMessageTooLarge, size)
	}
	if f.err != nil {
		f.rollback()
		return f.err
	}

	word := order.Uint32(f.out.buf[f.begin+4:])
	order.PutUint32(f.out.buf[f.begin+4:], word|uint32(size)<<16)

	if num := len(f.out.fds) - f.oldFds; num > 0 {
		f.out.fdOffsets = append(f.out.fdOffsets, fdOffset{offset: f.begin, num: num})
	}
	return nil
}

// Abort discards the message and closes the descriptors queued for it.
func (f *Formatter) Abort() {
	f.rollback()
}

func (f *Formatter) rollback() {
	for _, fd := range f.out.fds[f.oldFds:] {
		_ = unix.Close(fd)
	}
	f.out.fds = f.out.fds[:f.oldFds]
	f.out.buf = f.out.buf[:f.begin]
}

func (f *Formatter) pad() {
	for len(f.out.buf)%WordSize != 0 {
		f.out.buf = append(f.out.buf, 0)
	}
}

// dupFile duplicates the descriptor of file without touching its blocking mode.
func dupFile(file *os.File) (int, error) {
	if file == nil {
		return -1, ErrMissingFd
	}
	sc, err := file.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("failed to access file descriptor: %w", err)
	}

	dup, dupErr := -1, error(nil)
	if err := sc.Control(func(fd uintptr) {
		dup, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return -1, fmt.Errorf("failed to access file descriptor: %w", err)
	}
	if dupErr != nil {
		return -1, fmt.Errorf("failed to duplicate file descriptor: %w", dupErr)
	}
	return dup, nil
}
