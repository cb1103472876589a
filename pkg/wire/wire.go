// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire implements the framing of the Wayland wire protocol.
//
// A message is a sequence of native-endian 32-bit words. The first word is
// the id of the target object, the second word contains the message size in
// bytes in its upper 16 bits and the opcode in its lower 16 bits. Strings and
// arrays are prefixed with their byte length and padded to a multiple of four
// bytes. File descriptors carry no inline payload; they travel as SCM_RIGHTS
// ancillary data and are consumed strictly in stream order.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// WordSize is the size of a single protocol word.
	WordSize = 4
	// HeaderSize is the size of the two header words.
	HeaderSize = 2 * WordSize
	// MaxMessageSize is the largest message libwayland accepts.
	MaxMessageSize = 4096

	bufferSize = 2 * MaxMessageSize

	// maxFdsPerMessage bounds the ancillary buffers, libwayland uses 28.
	maxFdsPerMessage = 28
)

var order = binary.NativeEndian

var (
	// ErrClosed is returned when the peer has closed the connection.
	ErrClosed = errors.New("the connection is closed")

	// ErrMessageTooSmall is returned for a header claiming less than HeaderSize bytes.
	ErrMessageTooSmall = errors.New("message is smaller than its header")
	// ErrMessageTooLarge is returned for a header claiming more than MaxMessageSize bytes.
	ErrMessageTooLarge = errors.New("message exceeds the maximum message size")
	// ErrMessageNotAligned is returned for a size that is not a multiple of WordSize.
	ErrMessageNotAligned = errors.New("message size is not a multiple of the word size")

	// ErrMissingArgument is returned when a message ends before all arguments were read.
	ErrMissingArgument = errors.New("message is missing an argument")
	// ErrTrailingBytes is returned when a message contains more words than its arguments.
	ErrTrailingBytes = errors.New("message has trailing bytes")
	// ErrMissingFd is returned when a file descriptor argument has no queued descriptor.
	ErrMissingFd = errors.New("message is missing a file descriptor")
	// ErrUnterminatedString is returned for a string without its terminating NUL.
	ErrUnterminatedString = errors.New("string is not NUL terminated")
	// ErrNonUTF8 is returned for strings that are not valid UTF-8.
	ErrNonUTF8 = errors.New("string is not valid UTF-8")
)

// frameSizeError wraps one of the frame sentinel errors with the offending size.
func frameSizeError(err error, size int) error {
	return fmt.Errorf("%w: supposed length %d", err, size)
}

// Header splits the two header words of a frame.
func Header(frame []byte) (id uint32, opcode uint16, size int) {
	id = order.Uint32(frame[0:])
	word := order.Uint32(frame[4:])
	return id, uint16(word), int(word >> 16)
}

// checkSize validates the size field of a message header.
func checkSize(size int) error {
	switch {
	case size < HeaderSize:
		return frameSizeError(ErrMessageTooSmall, size)
	case size > MaxMessageSize:
		return frameSizeError(ErrMessageTooLarge, size)
	case size%WordSize != 0:
		return frameSizeError(ErrMessageNotAligned, size)
	default:
		return nil
	}
}

// padded rounds n up to the next multiple of WordSize.
func padded(n int) int {
	return (n + WordSize - 1) &^ (WordSize - 1)
}
