// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

func TestSyncRoundTrip(t *testing.T) {
	s, server := newTestState(t, NewBuilder())
	c, client := connect(t, s)

	for round := 0; round < 2; round++ {
		client.send(1, protocol.DisplaySync, func(f *wire.Formatter) { f.Uint(2) })
		dispatch(t, s)

		id, opcode, p := server.recv()
		if id != 1 || opcode != protocol.DisplaySync {
			t.Fatalf("server received %d on %d", opcode, id)
		}
		if w := words(t, p, 1); w[0] != 2 {
			t.Fatalf("callback has server id %d, expected 2", w[0])
		}

		server.send(2, protocol.CallbackDone, func(f *wire.Formatter) { f.Uint(42) })
		server.send(1, protocol.DisplayDeleteID, func(f *wire.Formatter) { f.Uint(2) })
		dispatch(t, s)

		id, opcode, p = client.recv()
		if id != 2 || opcode != protocol.CallbackDone {
			t.Fatalf("client received %d on %d", opcode, id)
		}
		if w := words(t, p, 1); w[0] != 42 {
			t.Fatalf("callback data is %d", w[0])
		}
		id, opcode, p = client.recv()
		if id != 1 || opcode != protocol.DisplayDeleteID {
			t.Fatalf("client received %d on %d", opcode, id)
		}
		if w := words(t, p, 1); w[0] != 2 {
			t.Fatalf("client id %d was deleted", w[0])
		}

		if _, ok := c.endpoint.objects[2]; ok {
			t.Fatal("client id 2 is still in use")
		}
		if _, ok := s.server.objects[2]; ok {
			t.Fatal("server id 2 is still in use")
		}
	}
}

func TestDuplicateClientID(t *testing.T) {
	s, server := newTestState(t, NewBuilder())
	c, client := connect(t, s)

	obj := s.CreateObject(protocol.WlCallback, 1)
	if err := obj.SetClientID(c, 5); err != nil {
		t.Fatal(err)
	}
	other := s.CreateObject(protocol.WlCallback, 1)
	if err := other.SetClientID(c, 5); !errors.Is(err, &IDError{Kind: ClientIDInUse}) {
		t.Fatalf("expected ClientIDInUse, got %v", err)
	}
	obj.handleClientDestroy()
	if err := obj.TryDeleteID(); err != nil {
		t.Fatal(err)
	}
	dispatch(t, s)
	client.recv()

	client.send(1, protocol.DisplaySync, func(f *wire.Formatter) { f.Uint(5) })
	client.send(1, protocol.DisplaySync, func(f *wire.Formatter) { f.Uint(5) })
	dispatch(t, s)

	if !c.IsDestroyed() {
		t.Fatal("client reused a live id and was not disconnected")
	}
	server.recv()
	server.expectNothing()
	client.expectClosed()
}

func TestRecursiveDispatch(t *testing.T) {
	s, server := newTestState(t, NewBuilder())
	c, client := connect(t, s)

	var inner error
	c.Display().SetHandler(HandlerFuncs{
		Request: func(obj *Object, msg *Message) {
			_, inner = s.Dispatch(0)
			obj.ForwardRequest(msg)
		},
	})

	client.send(1, protocol.DisplaySync, func(f *wire.Formatter) { f.Uint(2) })
	dispatch(t, s)

	if !errors.Is(inner, ErrRecursiveCall) {
		t.Fatalf("expected ErrRecursiveCall, got %v", inner)
	}
	if s.IsDestroyed() {
		t.Fatal("recursive call destroyed the state")
	}
	if id, _, _ := server.recv(); id != 1 {
		t.Fatalf("sync arrived on %d", id)
	}
}

func TestDestroyIdempotent(t *testing.T) {
	s, _ := newTestState(t, NewBuilder())
	c, client := connect(t, s)

	disconnects := 0
	c.SetHandler(ClientHandlerFunc(func(*Client) { disconnects++ }))

	s.Destroy()
	s.Destroy()

	if !s.IsDestroyed() || !c.IsDestroyed() {
		t.Fatal("state or client not destroyed")
	}
	if disconnects != 0 {
		t.Fatalf("disconnect handler ran %d times", disconnects)
	}
	if _, err := s.DispatchAvailable(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}
	if _, _, err := s.Connect(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}

	msg, err := NewRequest(protocol.WlDisplay, "sync", s.CreateObject(protocol.WlCallback, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.display.SendRequest(msg); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}

	fds := []unix.PollFd{{Fd: int32(s.PollFD()), Events: unix.POLLIN}}
	if n, err := unix.Poll(fds, 0); err != nil {
		t.Fatal(err)
	} else if n != 1 {
		t.Fatal("poll fd is not readable after destroy")
	}

	client.expectClosed()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestServerHangup(t *testing.T) {
	s, server := newTestState(t, NewBuilder())

	sync, err := NewRequest(protocol.WlDisplay, "sync", s.CreateObject(protocol.WlCallback, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.display.SendRequest(sync); err != nil {
		t.Fatal(err)
	}

	var (
		clients []*Client
		peers   []*peer
	)
	for i := 0; i < 3; i++ {
		c, client := connect(t, s)
		msg, err := NewEvent(protocol.WlDisplay, "delete_id", uint32(100+i))
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Display().SendEvent(msg); err != nil {
			t.Fatal(err)
		}
		clients = append(clients, c)
		peers = append(peers, client)
	}
	if s.server.out.Len() == 0 {
		t.Fatal("no request is pending for the server")
	}
	for _, c := range clients {
		if c.endpoint.out.Len() == 0 {
			t.Fatalf("no event is pending for %v", c)
		}
	}
	_ = server.file.Close()

	var errs []error
	if _, err := s.Dispatch(10 * time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.DispatchAvailable(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
	hangups := 0
	for _, err := range errs {
		if errors.Is(err, ErrServerHangup) {
			hangups++
		} else if !errors.Is(err, ErrDestroyed) {
			t.Fatalf("expected ErrDestroyed, got %v", err)
		}
	}
	if hangups != 1 || !errors.Is(errs[0], ErrServerHangup) {
		t.Fatalf("expected one leading ErrServerHangup, got %v", errs)
	}

	for _, client := range peers {
		client.expectClosed()
	}
	for _, c := range clients {
		if !c.IsDestroyed() {
			t.Fatalf("%v survived the teardown", c)
		}
	}
	if len(s.Clients()) != 0 {
		t.Fatal("clients survived the teardown")
	}
}

func TestDestroyFromDisconnectHandler(t *testing.T) {
	s, _ := newTestState(t, NewBuilder().WithMaxClientBuffer(16))
	c, client := connect(t, s)
	c.SetHandler(ClientHandlerFunc(func(*Client) { s.Destroy() }))

	seat := s.CreateObject(protocol.WlSeat, 2)
	if err := seat.SetClientID(c, 3); err != nil {
		t.Fatal(err)
	}
	msg, err := NewEvent(protocol.WlSeat, "name", "a seat with a long name")
	if err != nil {
		t.Fatal(err)
	}
	if err := seat.SendEvent(msg); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Dispatch(10 * time.Millisecond); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}
	if !s.IsDestroyed() {
		t.Fatal("state was not destroyed by the disconnect handler")
	}

	fds := []unix.PollFd{{Fd: int32(s.PollFD()), Events: unix.POLLIN}}
	for round := 0; round < 2; round++ {
		if n, err := unix.Poll(fds, 0); err != nil {
			t.Fatal(err)
		} else if n != 1 {
			t.Fatalf("poll fd is not readable after destroy in round %d", round)
		}
		if _, err := s.Dispatch(10 * time.Millisecond); !errors.Is(err, ErrDestroyed) {
			t.Fatalf("expected ErrDestroyed, got %v", err)
		}
	}
	client.expectClosed()
}

func TestSendRequestEncodeErrorKeepsID(t *testing.T) {
	s, server := newTestState(t, NewBuilder())

	shm := s.CreateObject(protocol.WlShm, 1)
	if err := shm.SetServerID(MinServerID + 5); err != nil {
		t.Fatal(err)
	}
	pool := s.CreateObject(protocol.WlShmPool, 1)
	msg, err := NewRequest(protocol.WlShm, "create_pool", pool, "not a file", int32(4096))
	if err != nil {
		t.Fatal(err)
	}
	if err := shm.SendRequest(msg); !errors.Is(err, &ObjectError{Kind: WrongArgType}) {
		t.Fatalf("expected WrongArgType, got %v", err)
	}
	if id, ok := pool.ServerID(); ok {
		t.Fatalf("unsent object kept the server id %d", id)
	}
	if _, ok := s.server.objects[2]; ok {
		t.Fatal("server id 2 is still in use")
	}

	callback := s.CreateObject(protocol.WlCallback, 1)
	sync, err := NewRequest(protocol.WlDisplay, "sync", callback)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.display.SendRequest(sync); err != nil {
		t.Fatal(err)
	}
	if id, _ := callback.ServerID(); id != 2 {
		t.Fatalf("callback has server id %d, expected 2", id)
	}
	dispatch(t, s)

	id, opcode, p := server.recv()
	if id != 1 || opcode != protocol.DisplaySync {
		t.Fatalf("server received %d on %d", opcode, id)
	}
	if w := words(t, p, 1); w[0] != 2 {
		t.Fatalf("callback was sent as %d", w[0])
	}
	server.expectNothing()
}

func TestSendEventEncodeErrorKeepsID(t *testing.T) {
	s, _ := newTestState(t, NewBuilder())
	c, client := connect(t, s)

	source := &protocol.Interface{
		Name:    "test_offer_source",
		Version: 1,
		Events: []protocol.Message{{
			Name: "offer",
			Args: []protocol.Arg{
				{Name: "id", Type: protocol.NewID, Interface: "wl_callback"},
				{Name: "serial", Type: protocol.Uint},
			},
		}},
	}
	obj := s.CreateObject(source, 1)
	if err := obj.SetClientID(c, 3); err != nil {
		t.Fatal(err)
	}

	child := s.CreateObject(protocol.WlCallback, 1)
	msg, err := NewEvent(source, "offer", child, int32(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.SendEvent(msg); !errors.Is(err, &ObjectError{Kind: WrongArgType}) {
		t.Fatalf("expected WrongArgType, got %v", err)
	}
	if id, ok := child.ClientID(); ok {
		t.Fatalf("unsent object kept the client id %d", id)
	}
	if _, ok := c.endpoint.objects[MinServerID]; ok {
		t.Fatal("client id is still in use")
	}

	msg, err = NewEvent(source, "offer", child, uint32(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.SendEvent(msg); err != nil {
		t.Fatal(err)
	}
	if id, _ := child.ClientID(); id != MinServerID {
		t.Fatalf("child has client id %d, expected %d", id, MinServerID)
	}
	dispatch(t, s)

	id, opcode, p := client.recv()
	if id != 3 || opcode != 0 {
		t.Fatalf("client received %d on %d", opcode, id)
	}
	if w := words(t, p, 2); w[0] != MinServerID || w[1] != 1 {
		t.Fatalf("offer was sent as %v", w)
	}
}

func TestFdForwarding(t *testing.T) {
	s, server := newTestState(t, NewBuilder())
	c, client := connect(t, s)

	keyboard := s.CreateObject(protocol.WlKeyboard, 1)
	if err := keyboard.SetServerID(MinServerID + 1); err != nil {
		t.Fatal(err)
	}
	if err := keyboard.SetClientID(c, 7); err != nil {
		t.Fatal(err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	server.send(MinServerID+1, 0, func(f *wire.Formatter) {
		f.Uint(1).Fd(r).Uint(3)
	})
	dispatch(t, s)

	id, opcode, p := client.recv()
	if id != 7 || opcode != 0 {
		t.Fatalf("client received %d on %d", opcode, id)
	}
	if format, _ := p.Uint(); format != 1 {
		t.Fatalf("format is %d", format)
	}
	fd, err := p.Fd()
	if err != nil {
		t.Fatal(err)
	}
	defer fd.Close()
	if size, _ := p.Uint(); size != 3 {
		t.Fatalf("size is %d", size)
	}

	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	data, err := io.ReadAll(fd)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" {
		t.Fatalf("read %q through the forwarded fd", data)
	}
}

func TestDisplayError(t *testing.T) {
	var (
		gotObj  *Object
		gotID   uint32
		gotCode uint32
		gotMsg  string
	)
	handler := &displayErrorRecorder{fn: func(obj *Object, id, code uint32, msg string) {
		gotObj, gotID, gotCode, gotMsg = obj, id, code, msg
	}}
	s, server := newTestState(t, NewBuilder().WithHandler(handler))

	server.send(1, protocol.DisplayError, func(f *wire.Formatter) {
		f.Object(1).Uint(3).String("boom")
	})
	_, err := s.DispatchAvailable()
	if !errors.Is(err, ErrDispatchEvents) {
		t.Fatalf("expected ErrDispatchEvents, got %v", err)
	}
	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("expected a ServerError, got %v", err)
	}
	if serr.Code != 3 || serr.Message != "boom" || serr.Interface != "wl_display" {
		t.Fatalf("unexpected server error %v", serr)
	}
	if gotObj != s.display || gotID != 1 || gotCode != 3 || gotMsg != "boom" {
		t.Fatalf("handler got %v %d %d %q", gotObj, gotID, gotCode, gotMsg)
	}
	if !s.IsDestroyed() {
		t.Fatal("state survived a server error")
	}
}

type displayErrorRecorder struct {
	NopStateHandler
	fn func(obj *Object, id, code uint32, msg string)
}

func (r *displayErrorRecorder) DisplayError(obj *Object, id, code uint32, msg string) {
	r.fn(obj, id, code, msg)
}

func TestClientBufferLimit(t *testing.T) {
	s, _ := newTestState(t, NewBuilder().WithMaxClientBuffer(16))
	c, client := connect(t, s)

	disconnects := 0
	c.SetHandler(ClientHandlerFunc(func(*Client) { disconnects++ }))

	seat := s.CreateObject(protocol.WlSeat, 2)
	if err := seat.SetClientID(c, 3); err != nil {
		t.Fatal(err)
	}
	msg, err := NewEvent(protocol.WlSeat, "name", "a seat with a long name")
	if err != nil {
		t.Fatal(err)
	}
	if err := seat.SendEvent(msg); err != nil {
		t.Fatal(err)
	}
	dispatch(t, s)

	if !c.IsDestroyed() {
		t.Fatal("client exceeding its buffer was not disconnected")
	}
	c.Disconnect()
	if disconnects != 1 {
		t.Fatalf("disconnect handler ran %d times", disconnects)
	}
	client.expectClosed()
}

func TestInjectBorrowedHandler(t *testing.T) {
	s, _ := newTestState(t, NewBuilder())
	c, _ := connect(t, s)

	replacement := &countingHandler{}
	var inner error
	display := c.Display()
	display.SetHandler(HandlerFuncs{
		Request: func(obj *Object, msg *Message) {
			inner = s.InjectRequest(obj, msg)
			obj.SetHandler(replacement)
		},
	})

	msg, err := NewRequest(protocol.WlDisplay, "sync", s.CreateObject(protocol.WlCallback, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InjectRequest(display, msg); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(inner, &ObjectError{Kind: HandlerBorrowed}) {
		t.Fatalf("expected HandlerBorrowed, got %v", inner)
	}
	if display.Handler() != Handler(replacement) {
		t.Fatal("handler replacement was not applied")
	}
	if err := s.InjectRequest(display, msg); err != nil {
		t.Fatal(err)
	}
	if replacement.requests != 1 {
		t.Fatalf("replacement handled %d requests", replacement.requests)
	}
}

type countingHandler struct {
	Forward
	requests int
}

func (h *countingHandler) HandleRequest(*Object, *Message) {
	h.requests++
}

func TestRemoteDestructor(t *testing.T) {
	s, _ := newTestState(t, NewBuilder())

	disabled, err := s.CreateRemoteDestructor()
	if err != nil {
		t.Fatal(err)
	}
	disabled.Disable()
	disabled.Close()
	if _, err := s.DispatchBlocking(); err != nil {
		t.Fatal(err)
	}
	if s.IsDestroyed() {
		t.Fatal("disabled remote destructor destroyed the state")
	}

	d, err := s.CreateRemoteDestructor()
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	<-done
	if _, err := s.DispatchBlocking(); !errors.Is(err, ErrRemoteDestroyed) {
		t.Fatalf("expected ErrRemoteDestroyed, got %v", err)
	}
	if !s.IsDestroyed() {
		t.Fatal("state survived its remote destructor")
	}
	d.Close()
}

func TestDestructor(t *testing.T) {
	s, _ := newTestState(t, NewBuilder())

	d := s.CreateDestructor()
	d.Disable()
	d.Close()
	if s.IsDestroyed() {
		t.Fatal("disabled destructor destroyed the state")
	}
	d.Enable()
	d.Close()
	if !s.IsDestroyed() {
		t.Fatal("destructor did not destroy the state")
	}
}

func TestTrace(t *testing.T) {
	var records []TraceRecord
	tracer := TracerFunc(func(rec *TraceRecord) { records = append(records, *rec) })
	s, server := newTestState(t, NewBuilder().WithTracer(tracer))
	_, client := connect(t, s)

	client.send(1, protocol.DisplaySync, func(f *wire.Formatter) { f.Uint(2) })
	dispatch(t, s)
	server.recv()

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	expected := []string{
		"client#1    -> wl_display#1.sync(callback: wl_callback#2)",
		"server      <= wl_display#1.sync(callback: wl_callback#2)",
	}
	for i, rec := range records {
		if line := rec.Format(""); !strings.HasSuffix(line, expected[i]) {
			t.Fatalf("record %d is %q", i, line)
		}
	}
	if stats := s.Stats(); stats.RequestsReceived != 1 || stats.RequestsSent != 1 || stats.ClientsConnected != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestUnknownReceiverKillsClient(t *testing.T) {
	s, _ := newTestState(t, NewBuilder())
	c, client := connect(t, s)

	client.send(99, 0, nil)
	dispatch(t, s)

	if !c.IsDestroyed() {
		t.Fatal("client addressing an unknown object was not disconnected")
	}
	if s.IsDestroyed() {
		t.Fatal("client error destroyed the state")
	}
}

func TestBlockedFlushResumes(t *testing.T) {
	s, _ := newTestState(t, NewBuilder().WithMaxClientBuffer(0))
	c, client := connect(t, s)

	seat := s.CreateObject(protocol.WlSeat, 2)
	if err := seat.SetClientID(c, 3); err != nil {
		t.Fatal(err)
	}
	name := strings.Repeat("x", 4000)
	const count = 512
	for i := 0; i < count; i++ {
		msg, err := NewEvent(protocol.WlSeat, "name", name)
		if err != nil {
			t.Fatal(err)
		}
		if err := seat.SendEvent(msg); err != nil {
			t.Fatal(err)
		}
	}
	dispatch(t, s)
	if c.endpoint.out.Len() == 0 {
		t.Fatal("flush did not block")
	}

	received := 0
	for i := 0; received < count && i < 100*count; i++ {
		mayRead := true
		frame, err := client.in.ReadMessage(client.fd, &mayRead, &client.fds)
		if err != nil {
			t.Fatal(err)
		}
		if frame != nil {
			received++
			continue
		}
		if _, err := s.DispatchAvailable(); err != nil {
			t.Fatal(err)
		}
		if s.flushable.Length() != 0 {
			t.Fatalf("%d endpoints left in the flush queue", s.flushable.Length())
		}
	}
	if received != count {
		t.Fatalf("client received %d of %d events", received, count)
	}
	if c.endpoint.out.Len() != 0 {
		t.Fatalf("%d bytes were never flushed", c.endpoint.out.Len())
	}
}
