// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"errors"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

// peer is the far end of a proxied connection, either a fake server or a
// fake client.
type peer struct {
	t    *testing.T
	file *os.File
	fd   int
	in   wire.InputBuffer
	fds  wire.FdQueue
	out  wire.OutputBuffer
}

func newPeer(t *testing.T, f *os.File) *peer {
	p := &peer{t: t, file: f, fd: int(f.Fd())}
	t.Cleanup(func() {
		p.out.Close()
		p.fds.Close()
		_ = f.Close()
	})
	return p
}

func (p *peer) send(id uint32, opcode uint16, args func(f *wire.Formatter)) {
	p.t.Helper()

	f := p.out.Begin(id, opcode)
	if args != nil {
		args(f)
	}
	if err := f.End(); err != nil {
		p.t.Fatal(err)
	}
	if res, err := p.out.Flush(p.fd); err != nil {
		p.t.Fatal(err)
	} else if res != wire.Done {
		p.t.Fatal("flush blocked")
	}
}

func (p *peer) recv() (uint32, uint16, *wire.Parser) {
	p.t.Helper()

	mayRead := true
	frame, err := p.in.ReadMessage(p.fd, &mayRead, &p.fds)
	if err != nil {
		p.t.Fatal(err)
	}
	if frame == nil {
		p.t.Fatal("no message available")
	}
	frame = append([]byte(nil), frame...)
	id, opcode, _ := wire.Header(frame)
	return id, opcode, wire.NewParser(frame, &p.fds)
}

func (p *peer) expectNothing() {
	p.t.Helper()

	mayRead := true
	frame, err := p.in.ReadMessage(p.fd, &mayRead, &p.fds)
	if err != nil {
		p.t.Fatal(err)
	}
	if frame != nil {
		id, opcode, _ := wire.Header(frame)
		p.t.Fatalf("unexpected message %d on object %d", opcode, id)
	}
}

func (p *peer) expectClosed() {
	p.t.Helper()

	for i := 0; i < 64; i++ {
		mayRead := true
		frame, err := p.in.ReadMessage(p.fd, &mayRead, &p.fds)
		if errors.Is(err, wire.ErrClosed) {
			return
		} else if err != nil {
			p.t.Fatal(err)
		}
		if frame == nil {
			p.t.Fatal("connection is still open")
		}
	}
	p.t.Fatal("connection is still open")
}

func words(t *testing.T, p *wire.Parser, n int) []uint32 {
	t.Helper()

	res := make([]uint32, n)
	for i := range res {
		v, err := p.Uint()
		if err != nil {
			t.Fatal(err)
		}
		res[i] = v
	}
	if err := p.Finish(); err != nil {
		t.Fatal(err)
	}
	return res
}

// newTestState creates a State connected to a fake server.
func newTestState(t *testing.T, b *Builder) (*State, *peer) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	proxySide := os.NewFile(uintptr(fds[0]), "proxy")
	s, err := b.WithLogging(false).WithServerFile(proxySide).Build()
	_ = proxySide.Close()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s, newPeer(t, os.NewFile(uintptr(fds[1]), "server"))
}

func connect(t *testing.T, s *State) (*Client, *peer) {
	t.Helper()

	c, f, err := s.Connect()
	if err != nil {
		t.Fatal(err)
	}
	return c, newPeer(t, f)
}

func dispatch(t *testing.T, s *State) {
	t.Helper()

	for i := 0; i < 3; i++ {
		if _, err := s.DispatchAvailable(); err != nil {
			t.Fatal(err)
		}
	}
}
