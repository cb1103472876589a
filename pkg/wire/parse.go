// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"os"
	"unicode/utf8"
)

// Parser reads the arguments of a single frame.
type Parser struct {
	frame []byte
	pos   int
	fds   *FdQueue
}

// NewParser creates a Parser positioned after the header of frame.
func NewParser(frame []byte, fds *FdQueue) *Parser {
	return &Parser{frame: frame, pos: HeaderSize, fds: fds}
}

func (p *Parser) word() (uint32, error) {
	if p.pos+WordSize > len(p.frame) {
		return 0, ErrMissingArgument
	}
	v := order.Uint32(p.frame[p.pos:])
	p.pos += WordSize
	return v, nil
}

// Uint reads an unsigned integer.
func (p *Parser) Uint() (uint32, error) {
	return p.word()
}

// Int reads a signed integer.
func (p *Parser) Int() (int32, error) {
	v, err := p.word()
	return int32(v), err
}

// Fixed reads a 24.8 fixed point number.
func (p *Parser) Fixed() (Fixed, error) {
	v, err := p.word()
	return Fixed(v), err
}

// Object reads an object id; zero is the null object.
func (p *Parser) Object() (uint32, error) {
	return p.word()
}

// String reads a string. The second return value is false for the null string.
func (p *Parser) String() (string, bool, error) {
	n, err := p.word()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}

	b, err := p.bytes(int(n))
	if err != nil {
		return "", false, err
	}
	if b[len(b)-1] != 0 {
		return "", false, ErrUnterminatedString
	}
	b = b[:len(b)-1]
	if !utf8.Valid(b) {
		return "", false, ErrNonUTF8
	}
	return string(b), true, nil
}

// Array reads a byte array. The result is a copy.
func (p *Parser) Array() ([]byte, error) {
	n, err := p.word()
	if err != nil {
		return nil, err
	}
	b, err := p.bytes(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

// Fd takes the next descriptor off the fd queue.
func (p *Parser) Fd() (*os.File, error) {
	if p.fds == nil {
		return nil, ErrMissingFd
	}
	f, ok := p.fds.Pop()
	if !ok {
		return nil, ErrMissingFd
	}
	return f, nil
}

// Finish reports trailing bytes after the last argument.
func (p *Parser) Finish() error {
	if p.pos != len(p.frame) {
		return ErrTrailingBytes
	}
	return nil
}

func (p *Parser) bytes(n int) ([]byte, error) {
	if n < 0 || p.pos+padded(n) > len(p.frame) {
		return nil, ErrMissingArgument
	}
	b := p.frame[p.pos : p.pos+n]
	p.pos += padded(n)
	return b, nil
}
