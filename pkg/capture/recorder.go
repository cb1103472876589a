// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

// DefaultBuffer is the number of Records a Recorder queues before dropping.
const DefaultBuffer = 4096

// Sink consumes Records.
type Sink interface {
	Write(rec Record) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(rec Record) error

func (f SinkFunc) Write(rec Record) error {
	return f(rec)
}

// MultiSink writes each Record to all of its Sinks. The first error is
// returned after every Sink has been tried.
type MultiSink []Sink

func (m MultiSink) Write(rec Record) (err error) {
	for _, s := range m {
		if sErr := s.Write(rec); sErr != nil && err == nil {
			err = sErr
		}
	}
	return
}

// Recorder decouples tracing from writing. The Tracers of a Recorder may be
// used by States on different goroutines; they never block and drop Records
// once the queue is full.
type Recorder struct {
	records chan Record
	sink    Sink

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder creates a Recorder queueing up to buffer Records for sink.
func NewRecorder(sink Sink, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		records: make(chan Record, buffer),
		sink:    sink,
	}
}

// Tracer returns a proxy.Tracer whose Records carry source.
func (r *Recorder) Tracer(source string) proxy.Tracer {
	return proxy.TracerFunc(func(rec *proxy.TraceRecord) {
		select {
		case r.records <- FromTrace(r.seq.Add(1), source, rec):
		default:
			r.dropped.Add(1)
		}
	})
}

// Dropped is the number of Records lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued Records to the Sink until ctx is done. Records queued at
// that point are still written.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		default:
			if n := r.Dropped(); n > 0 {
				log.WithField("dropped", n).Warn("Capture queue overflowed")
			}
			return
		}
	}
}

func (r *Recorder) write(rec Record) {
	if err := r.sink.Write(rec); err != nil {
		log.WithError(err).WithField("record", rec.Seq).Warn("Could not write capture record")
	}
}
