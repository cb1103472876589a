// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"

	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

// recordFields is the length of the CBOR array of a Record.
const recordFields = 10

// Record is a single captured message.
type Record struct {
	// Seq orders the records of one capture.
	Seq uint64
	// Source names the proxy State, e.g. its log prefix.
	Source    string
	Time      time.Time
	Client    uint64
	Direction proxy.Direction
	ObjectID  uint32
	Interface string
	Message   string
	Args      string
	Size      uint32
}

// FromTrace converts a TraceRecord.
func FromTrace(seq uint64, source string, rec *proxy.TraceRecord) Record {
	return Record{
		Seq:       seq,
		Source:    source,
		Time:      rec.Time,
		Client:    rec.Client,
		Direction: rec.Direction,
		ObjectID:  rec.ObjectID,
		Interface: rec.Interface,
		Message:   rec.Message,
		Args:      rec.Args,
		Size:      uint32(rec.Size),
	}
}

// Trace converts the Record back into a TraceRecord.
func (r Record) Trace() *proxy.TraceRecord {
	return &proxy.TraceRecord{
		Time:      r.Time,
		Client:    r.Client,
		Direction: r.Direction,
		ObjectID:  r.ObjectID,
		Interface: r.Interface,
		Message:   r.Message,
		Args:      r.Args,
		Size:      int(r.Size),
	}
}

func (r Record) String() string {
	prefix := ""
	if r.Source != "" {
		prefix = "{" + r.Source + "} "
	}
	return r.Trace().Format(prefix)
}

// MarshalCbor writes the CBOR representation of a Record.
func (r *Record) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(recordFields, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(r.Seq, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(r.Source, w); err != nil {
		return err
	}

	uints := []uint64{
		uint64(r.Time.UnixMicro()),
		r.Client,
		uint64(r.Direction),
		uint64(r.ObjectID),
	}
	for _, u := range uints {
		if err := cboring.WriteUInt(u, w); err != nil {
			return err
		}
	}

	for _, s := range []string{r.Interface, r.Message, r.Args} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}

	return cboring.WriteUInt(uint64(r.Size), w)
}

// UnmarshalCbor reads the CBOR representation of a Record.
func (r *Record) UnmarshalCbor(rd io.Reader) error {
	if n, err := cboring.ReadArrayLength(rd); err != nil {
		return err
	} else if n != recordFields {
		return fmt.Errorf("expected array with length %d, got %d", recordFields, n)
	}

	if n, err := cboring.ReadUInt(rd); err != nil {
		return err
	} else {
		r.Seq = n
	}
	if s, err := cboring.ReadTextString(rd); err != nil {
		return err
	} else {
		r.Source = s
	}

	var micros, direction, objectID uint64
	for _, f := range []*uint64{&micros, &r.Client, &direction, &objectID} {
		if n, err := cboring.ReadUInt(rd); err != nil {
			return err
		} else {
			*f = n
		}
	}
	if direction > uint64(proxy.Sent) {
		return fmt.Errorf("unknown direction %d", direction)
	}
	if objectID > 0xffffffff {
		return fmt.Errorf("object id %d exceeds 32 bits", objectID)
	}
	r.Time = time.UnixMicro(int64(micros))
	r.Direction = proxy.Direction(direction)
	r.ObjectID = uint32(objectID)

	for _, f := range []*string{&r.Interface, &r.Message, &r.Args} {
		if s, err := cboring.ReadTextString(rd); err != nil {
			return err
		} else {
			*f = s
		}
	}

	if n, err := cboring.ReadUInt(rd); err != nil {
		return err
	} else if n > 0xffffffff {
		return fmt.Errorf("message size %d exceeds 32 bits", n)
	} else {
		r.Size = uint32(n)
	}
	return nil
}
