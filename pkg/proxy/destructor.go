// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/mahkoh/wl-proxy-sub010/pkg/poll"
)

// Destructor destroys its State when closed while enabled. Destructors are
// enabled on creation.
type Destructor struct {
	state   *State
	enabled bool
}

// CreateDestructor creates an enabled Destructor for the State.
func (s *State) CreateDestructor() *Destructor {
	return &Destructor{state: s, enabled: true}
}

// State of the destructor.
func (d *Destructor) State() *State {
	return d.state
}

// Enabled reports whether Close destroys the State.
func (d *Destructor) Enabled() bool {
	return d.enabled
}

// Enable makes Close destroy the State.
func (d *Destructor) Enable() {
	d.enabled = true
}

// Disable turns Close into a no-op.
func (d *Destructor) Disable() {
	d.enabled = false
}

// Close destroys the State if the destructor is enabled.
func (d *Destructor) Close() {
	if d.enabled {
		d.state.Destroy()
	}
}

// RemoteDestructor destroys a State from another goroutine. Closing it wakes
// the dispatch loop of the State, which then returns ErrRemoteDestroyed if the
// destructor was enabled.
type RemoteDestructor struct {
	destroy *atomic.Bool
	fd      int
	enabled atomic.Bool
	once    sync.Once
}

// remoteSignal is the read end of a RemoteDestructor registered with the
// poller of the State.
type remoteSignal struct {
	fd      int
	destroy *atomic.Bool
}

// CreateRemoteDestructor creates an enabled RemoteDestructor.
func (s *State) CreateRemoteDestructor() (*RemoteDestructor, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	return s.createRemoteDestructor()
}

func (s *State) createRemoteDestructor() (*RemoteDestructor, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, wrap(ErrCreatePipe, err)
	}

	key := s.nextKey()
	if err := s.poller.Register(key, fds[0]); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, wrap(ErrPoll, err)
	}
	if err := s.poller.Update(key, fds[0], poll.Readable); err != nil {
		s.poller.Unregister(fds[0])
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, wrap(ErrPoll, err)
	}

	flag := new(atomic.Bool)
	s.pollables[key] = &remoteSignal{fd: fds[0], destroy: flag}

	d := &RemoteDestructor{destroy: flag, fd: fds[1]}
	d.enabled.Store(true)
	return d, nil
}

// Enabled reports whether Close destroys the State.
func (d *RemoteDestructor) Enabled() bool {
	return d.enabled.Load()
}

// Enable makes Close destroy the State.
func (d *RemoteDestructor) Enable() {
	d.enabled.Store(true)
}

// Disable makes Close only wake the dispatch loop.
func (d *RemoteDestructor) Disable() {
	d.enabled.Store(false)
}

// Close destroys the State if enabled. It is safe to call from any goroutine
// and more than once.
func (d *RemoteDestructor) Close() {
	d.once.Do(func() {
		if d.enabled.Load() {
			d.destroy.Store(true)
		}
		_ = unix.Close(d.fd)
	})
}
