// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
	"github.com/howeyc/crc16"
	"github.com/ulikunitz/xz"
)

// magic starts the decompressed stream of every capture file.
const magic = "wlcap01\n"

var (
	ErrMagic    = errors.New("not a capture file")
	ErrChecksum = errors.New("record checksum mismatch")
)

var crcTable = crc16.MakeTable(crc16.CCITT)

// Writer writes Records into an xz compressed capture stream. Each Record is
// a CBOR array of the encoded Record and its CRC16.
type Writer struct {
	xz     *xz.Writer
	closer io.Closer
	buf    bytes.Buffer
	count  uint64
}

// NewWriter starts a capture stream on w. Close must be called to flush it.
func NewWriter(w io.Writer) (*Writer, error) {
	xzW, err := xz.NewWriter(w)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(xzW, magic); err != nil {
		return nil, err
	}
	return &Writer{xz: xzW}, nil
}

// Create truncates or creates the capture file at path.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write appends rec to the stream.
func (w *Writer) Write(rec Record) error {
	w.buf.Reset()
	if err := rec.MarshalCbor(&w.buf); err != nil {
		return err
	}
	payload := w.buf.Bytes()

	if err := cboring.WriteArrayLength(2, w.xz); err != nil {
		return err
	}
	if err := cboring.WriteByteString(payload, w.xz); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(crc16.Checksum(payload, crcTable)), w.xz); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count of the Records written so far.
func (w *Writer) Count() uint64 {
	return w.count
}

// Close flushes the stream and closes the underlying file, if any.
func (w *Writer) Close() error {
	var errs error
	if err := w.xz.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// Reader reads Records from a capture stream.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
}

// NewReader opens the capture stream in r.
func NewReader(r io.Reader) (*Reader, error) {
	xzR, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMagic, err)
	}
	br := bufio.NewReader(xzR)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil || string(head) != magic {
		return nil, ErrMagic
	}
	return &Reader{r: br}, nil
}

// Open opens the capture file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next Record, io.EOF once the stream is exhausted.
func (r *Reader) Next() (rec Record, err error) {
	if _, err = r.r.Peek(1); err != nil {
		return
	}

	if n, lenErr := cboring.ReadArrayLength(r.r); lenErr != nil {
		err = lenErr
		return
	} else if n != 2 {
		err = fmt.Errorf("expected array with length 2, got %d", n)
		return
	}

	payload, err := cboring.ReadByteString(r.r)
	if err != nil {
		return
	}
	crc, err := cboring.ReadUInt(r.r)
	if err != nil {
		return
	}
	if uint64(crc16.Checksum(payload, crcTable)) != crc {
		err = fmt.Errorf("%w: record of %d bytes", ErrChecksum, len(payload))
		return
	}

	err = rec.UnmarshalCbor(bytes.NewReader(payload))
	return
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ReadAll reads the remaining Records of r.
func ReadAll(r *Reader) ([]Record, error) {
	var recs []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		} else if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
