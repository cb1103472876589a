// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

// Package poll is a thin wrapper around epoll(7).
//
// Every file descriptor is registered under an opaque 64-bit key and with
// EPOLLONESHOT semantics: after an event has been reported for a key, the
// key stays silent until its interests have been updated again.
package poll

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sys/unix"
)

// MaxEvents is the maximum number of events returned by a single Wait.
const MaxEvents = 16

const (
	// Readable is reported when data can be read.
	Readable uint32 = unix.EPOLLIN
	// Writable is reported when data can be written.
	Writable uint32 = unix.EPOLLOUT
	// Error is reported on socket errors or when the peer hung up.
	Error uint32 = unix.EPOLLERR | unix.EPOLLHUP

	oneshot uint32 = unix.EPOLLONESHOT
	all            = Readable | Writable | Error | oneshot
)

// Event is a readiness notification for a registered key.
type Event struct {
	Key    uint64
	Events uint32
}

// Poller owns an epoll file descriptor.
type Poller struct {
	fd     int
	events [MaxEvents]unix.EpollEvent
}

// New creates a Poller with a close-on-exec epoll file descriptor.
func New() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("could not create epoll fd: %w", err)
	}
	return &Poller{fd: fd}, nil
}

// FD of the underlying epoll instance. It becomes readable whenever an event
// is pending.
func (p *Poller) FD() int {
	return p.fd
}

// Close the epoll file descriptor.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}

// Wait blocks until at least one event is available or the timeout expires.
// A negative timeout blocks indefinitely, a zero timeout only collects
// already pending events. EINTR is retried transparently.
func (p *Poller) Wait(timeout time.Duration, events []Event) (int, error) {
	msec := -1
	if timeout >= 0 {
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	max := len(events)
	if max > MaxEvents {
		max = MaxEvents
	}

	for {
		n, err := unix.EpollWait(p.fd, p.events[:max], msec)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return 0, fmt.Errorf("could not read epoll events: %w", err)
		}

		for i := 0; i < n; i++ {
			events[i] = Event{
				Key:    unpackKey(&p.events[i]),
				Events: p.events[i].Events & all,
			}
		}
		return n, nil
	}
}

// Register adds fd under key. No events are reported until the first call
// to Update.
func (p *Poller) Register(key uint64, fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, key, fd, oneshot, "could not register file descriptor with epoll")
}

// Update replaces the interests of a registered fd and re-arms it.
func (p *Poller) Update(key uint64, fd int, events uint32) error {
	return p.ctl(unix.EPOLL_CTL_MOD, key, fd, events|oneshot, "could not update epoll interests")
}

// Unregister removes fd from the epoll set. Failures are only logged.
func (p *Poller) Unregister(fd int) {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		log.WithFields(log.Fields{
			"fd":    fd,
			"error": err,
		}).Warn("Could not remove a file descriptor from epoll")
	}
}

func (p *Poller) ctl(op int, key uint64, fd int, events uint32, msg string) error {
	ev := unix.EpollEvent{Events: events}
	packKey(&ev, key)
	if err := unix.EpollCtl(p.fd, op, fd, &ev); err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return nil
}

// The kernel treats Fd and Pad as the 64-bit data union of epoll_event.
func packKey(ev *unix.EpollEvent, key uint64) {
	ev.Fd = int32(uint32(key))
	ev.Pad = int32(uint32(key >> 32))
}

func unpackKey(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}
