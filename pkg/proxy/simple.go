// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// SimpleProxy serves a Wayland socket. Every accepted client gets its own
// State with its own server connection, driven by its own goroutine on a
// locked OS thread.
type SimpleProxy struct {
	acceptor *Acceptor
}

// NewSimpleProxy binds a new socket in XDG_RUNTIME_DIR.
func NewSimpleProxy() (*SimpleProxy, error) {
	return NewSimpleProxyWithMaxTries(1000)
}

// NewSimpleProxyWithMaxTries binds the first free of wayland-1 to
// wayland-maxTries.
func NewSimpleProxyWithMaxTries(maxTries uint32) (*SimpleProxy, error) {
	a, err := NewAcceptor(maxTries, false)
	if err != nil {
		return nil, wrap(ErrCreateAcceptor, err)
	}
	return &SimpleProxy{acceptor: a}, nil
}

// Display is the WAYLAND_DISPLAY of the socket.
func (p *SimpleProxy) Display() string {
	return p.acceptor.Display()
}

// Command creates a command that connects to the proxy.
func (p *SimpleProxy) Command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), "WAYLAND_DISPLAY="+p.Display())
	return cmd
}

// Close removes the socket.
func (p *SimpleProxy) Close() error {
	return p.acceptor.Close()
}

// Run accepts clients until ctx is done. configure may adjust the Builder of
// each State, setup runs once for each new client, typically to install a
// wl_display handler. A disconnect handler installed by setup is still
// called. Both may be nil.
//
// Run destroys all States and waits for their goroutines before returning.
func (p *SimpleProxy) Run(ctx context.Context, configure func(*Builder), setup func(*Client)) error {
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		stopped     bool
		destructors = make(map[uint64]*RemoteDestructor)
	)

	register := func(id uint64, d *RemoteDestructor) bool {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return false
		}
		destructors[id] = d
		return true
	}
	unregister := func(id uint64) {
		mu.Lock()
		d := destructors[id]
		delete(destructors, id)
		mu.Unlock()
		if d != nil {
			d.Close()
		}
	}
	stopAll := func() {
		mu.Lock()
		stopped = true
		ds := destructors
		destructors = nil
		mu.Unlock()
		for _, d := range ds {
			d.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = unix.Shutdown(p.acceptor.fd, unix.SHUT_RDWR)
		case <-done:
		}
	}()
	defer func() {
		close(done)
		stopAll()
		wg.Wait()
	}()

	for id := uint64(1); ; id++ {
		fd, _, err := p.acceptor.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.WithField("client", id).Debug("Client connected")

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unregister(id)
			serveClient(id, fd, configure, setup, register)
		}()
	}
}

func serveClient(id uint64, fd int, configure func(*Builder), setup func(*Client), register func(uint64, *RemoteDestructor) bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	b := NewBuilder().WithLogPrefix(fmt.Sprintf("socket-%d", id))
	if configure != nil {
		configure(b)
	}
	s, err := b.Build()
	if err != nil {
		_ = unix.Close(fd)
		log.WithError(err).Error("Could not create a new state")
		return
	}
	defer s.Close()

	d, err := s.CreateRemoteDestructor()
	if err != nil {
		_ = unix.Close(fd)
		log.WithError(err).Error("Could not create a remote destructor")
		return
	}
	if !register(id, d) {
		d.Close()
		_ = unix.Close(fd)
		return
	}

	c, err := s.createClient(fd, false)
	if err != nil {
		log.WithError(err).Error("Could not add client to state")
		return
	}
	if setup != nil {
		setup(c)
	}
	destructor := s.CreateDestructor()
	next := c.handler
	c.SetHandler(ClientHandlerFunc(func(c *Client) {
		if next != nil {
			next.Disconnected(c)
		}
		log.WithField("client", id).Debug("Client disconnected")
		destructor.Close()
	}))

	for !s.IsDestroyed() {
		if _, err := s.DispatchBlocking(); err != nil && !errors.Is(err, ErrRemoteDestroyed) && !errors.Is(err, ErrDestroyed) {
			log.WithError(err).WithField("client", id).Error("Could not dispatch state")
		}
	}
}
