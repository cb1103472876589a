// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAcceptorNames(t *testing.T) {
	xrd := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", xrd)

	var acceptors []*Acceptor
	defer func() {
		for _, a := range acceptors {
			_ = a.Close()
		}
	}()
	for i, expected := range []string{"wayland-1", "wayland-2", "wayland-3"} {
		a, err := NewAcceptor(3, true)
		if err != nil {
			t.Fatalf("acceptor %d: %v", i, err)
		}
		acceptors = append(acceptors, a)
		if a.Display() != expected {
			t.Fatalf("acceptor %d bound %s", i, a.Display())
		}
		if a.Path() != filepath.Join(xrd, expected) {
			t.Fatalf("acceptor %d has path %s", i, a.Path())
		}
	}

	if _, err := NewAcceptor(3, true); !errors.Is(err, ErrAddressesInUse) {
		t.Fatalf("expected ErrAddressesInUse, got %v", err)
	}

	if err := acceptors[0].Close(); err != nil {
		t.Fatal(err)
	}
	a, err := NewAcceptor(3, true)
	if err != nil {
		t.Fatal(err)
	}
	acceptors[0] = a
	if a.Display() != "wayland-1" {
		t.Fatalf("released name was not reused, got %s", a.Display())
	}
}

func TestAcceptorWithoutRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	os.Unsetenv("XDG_RUNTIME_DIR")

	if _, err := NewAcceptor(1, true); !errors.Is(err, ErrXrdNotSet) {
		t.Fatalf("expected ErrXrdNotSet, got %v", err)
	}
}

func TestAcceptorAccept(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	a, err := NewAcceptor(1, true)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, ok, err := a.Accept(); err != nil || ok {
		t.Fatalf("accept without a pending connection: %v %v", ok, err)
	}

	fd := dial(t, a.Path())
	defer unix.Close(fd)

	conn, ok, err := a.Accept()
	if err != nil || !ok {
		t.Fatalf("accept with a pending connection: %v %v", ok, err)
	}
	_ = unix.Close(conn)
}

type newClientRecorder struct {
	NopStateHandler
	clients []*Client
}

func (r *newClientRecorder) NewClient(c *Client) {
	r.clients = append(r.clients, c)
}

func TestStateAcceptor(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	handler := &newClientRecorder{}
	s, _ := newTestState(t, NewBuilder().WithHandler(handler))

	a, err := s.CreateAcceptor(1)
	if err != nil {
		t.Fatal(err)
	}
	fd := dial(t, a.Path())
	defer unix.Close(fd)
	dispatch(t, s)

	if len(handler.clients) != 1 {
		t.Fatalf("handler saw %d clients", len(handler.clients))
	}
	if len(s.Clients()) != 1 {
		t.Fatalf("state has %d clients", len(s.Clients()))
	}

	s.Destroy()
	if !a.closed {
		t.Fatal("acceptor survived the state")
	}
}

func TestBuilderConnectsToDisplay(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	a, err := NewAcceptor(1, true)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	s, err := NewBuilder().WithLogging(false).WithServerDisplayName(a.Display()).Build()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if !s.HasServer() {
		t.Fatal("state has no server")
	}

	if _, err := NewBuilder().WithLogging(false).WithServerDisplayName("wayland-99").Build(); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func dial(t *testing.T, path string) int {
	t.Helper()

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		t.Fatal(err)
	}
	return fd
}
