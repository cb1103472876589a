// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"errors"
	"os"
	"time"
	"weak"

	"github.com/eapache/queue"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mahkoh/wl-proxy-sub010/pkg/poll"
	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/wire"
)

const (
	// serverKey is the poll key of the server connection.
	serverKey uint64 = 0

	// maxAcceptsPerDispatch bounds the connections accepted per acceptor and
	// dispatch round.
	maxAcceptsPerDispatch = 10

	minRegistrySweep = 64
)

// acceptorSource is an Acceptor registered with the poller of a State.
type acceptorSource struct {
	key      uint64
	acceptor *Acceptor
}

// State is a proxy between one server connection and any number of client
// connections. A State must only be used by a single goroutine.
//
// States are created with a Builder and driven with Dispatch or one of its
// variants. All objects, clients and acceptors of a State are released by
// Destroy.
type State struct {
	poller   *poll.Poller
	registry *protocol.Registry
	handler  StateHandler
	tracer   Tracer
	name     string

	displayIface    *protocol.Interface
	maxClientBuffer int

	locked    bool
	destroyed bool
	closed    bool

	lastKey   uint64
	server    *endpoint
	display   *Object
	clients   map[uint64]*Client
	acceptors []*acceptorSource
	pollables map[uint64]any

	acceptable        *queue.Queue
	toKill            *queue.Queue
	readable          *queue.Queue
	flushable         *queue.Queue
	interestEndpoints *queue.Queue
	interestAcceptors *queue.Queue

	objects map[uint64]weak.Pointer[Object]
	lastUID uint64
	sweepAt int

	forwardToClient bool
	forwardToServer bool

	stats  Stats
	events [poll.MaxEvents]poll.Event

	// wakeFd is the read end of the closed pipe that keeps PollFD readable
	// after Destroy.
	wakeFd int
}

func newState(poller *poll.Poller, registry *protocol.Registry) *State {
	s := &State{
		poller:          poller,
		registry:        registry,
		displayIface:    protocol.WlDisplay,
		clients:         make(map[uint64]*Client),
		pollables:       make(map[uint64]any),
		objects:         make(map[uint64]weak.Pointer[Object]),
		sweepAt:         minRegistrySweep,
		forwardToClient: true,
		forwardToServer: true,
		wakeFd:          -1,
	}
	if iface, ok := registry.Lookup(protocol.WlDisplay.Name); ok {
		s.displayIface = iface
	}
	s.resetQueues()
	return s
}

func (s *State) resetQueues() {
	s.acceptable = queue.New()
	s.toKill = queue.New()
	s.readable = queue.New()
	s.flushable = queue.New()
	s.interestEndpoints = queue.New()
	s.interestAcceptors = queue.New()
}

// attachServer installs the server connection on fd.
func (s *State) attachServer(fd int) error {
	if err := s.poller.Register(serverKey, fd); err != nil {
		return wrap(ErrPoll, err)
	}
	ep := newEndpoint(serverKey, fd, nil)
	// 0 is the null object and 1 is wl_display.
	ep.ids.acquire()
	ep.ids.acquire()
	s.server = ep
	s.pollables[serverKey] = ep

	s.display = s.CreateObject(s.displayIface, 1)
	s.display.serverID = displayID
	ep.objects[displayID] = s.display

	s.changeInterest(ep, func(i uint32) uint32 { return i | poll.Readable })
	return nil
}

func (s *State) nextKey() uint64 {
	s.lastKey++
	return s.lastKey
}

// SetHandler installs the StateHandler.
func (s *State) SetHandler(h StateHandler) {
	if s.destroyed {
		return
	}
	s.handler = h
}

// SetTracer installs a Tracer, nil disables tracing.
func (s *State) SetTracer(t Tracer) {
	if s.destroyed {
		return
	}
	s.tracer = t
}

// SetDefaultForwardToClient sets the forward-to-client flag of new objects.
func (s *State) SetDefaultForwardToClient(enabled bool) {
	s.forwardToClient = enabled
}

// SetDefaultForwardToServer sets the forward-to-server flag of new objects.
func (s *State) SetDefaultForwardToServer(enabled bool) {
	s.forwardToServer = enabled
}

// Name of the State, the log prefix it was built with.
func (s *State) Name() string {
	return s.name
}

// Registry the State decodes messages with.
func (s *State) Registry() *protocol.Registry {
	return s.registry
}

// HasServer reports whether the State is connected to a server.
func (s *State) HasServer() bool {
	return s.server != nil
}

// Stats returns a copy of the counters of the State.
func (s *State) Stats() Stats {
	return s.stats
}

// IsDestroyed reports whether Destroy has been called.
func (s *State) IsDestroyed() bool {
	return s.destroyed
}

// Clients returns the connected clients.
func (s *State) Clients() []*Client {
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}

// PollFD is readable whenever Dispatch has work to do. It stays readable once
// the State has been destroyed.
func (s *State) PollFD() int {
	return s.poller.FD()
}

// CreateObject creates an Object that is not yet known to any peer.
func (s *State) CreateObject(iface *protocol.Interface, version uint32) *Object {
	s.lastUID++
	o := &Object{
		state:           s,
		uid:             s.lastUID,
		iface:           iface,
		version:         version,
		forwardToClient: s.forwardToClient,
		forwardToServer: s.forwardToServer,
	}
	if !s.destroyed {
		if len(s.objects) >= s.sweepAt {
			s.sweepObjects()
		}
		s.objects[o.uid] = weak.Make(o)
	}
	return o
}

// sweepObjects forgets collected objects.
func (s *State) sweepObjects() {
	for uid, p := range s.objects {
		if p.Value() == nil {
			delete(s.objects, uid)
		}
	}
	s.sweepAt = max(minRegistrySweep, 2*len(s.objects))
}

// Connect creates a client on one end of a new socket pair. The other end is
// returned and belongs to the caller.
func (s *State) Connect() (*Client, *os.File, error) {
	if s.destroyed {
		return nil, nil, ErrDestroyed
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, wrap(ErrSocketpair, err)
	}
	c, err := s.createClient(fds[0], false)
	if err != nil {
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	return c, os.NewFile(uintptr(fds[1]), "wayland-client"), nil
}

// AddClient creates a client for an already connected socket. The State
// works on a duplicate of the descriptor, f still belongs to the caller.
func (s *State) AddClient(f *os.File) (*Client, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	fd, err := dupCloexec(f)
	if err != nil {
		return nil, err
	}
	return s.createClient(fd, false)
}

func (s *State) createClient(fd int, notify bool) (*Client, error) {
	if s.destroyed {
		_ = unix.Close(fd)
		return nil, ErrDestroyed
	}
	key := s.nextKey()
	if err := s.poller.Register(key, fd); err != nil {
		_ = unix.Close(fd)
		return nil, wrap(ErrPoll, err)
	}

	c := &Client{state: s, key: key}
	c.endpoint = newEndpoint(key, fd, c)
	c.display = s.Display()
	if err := c.display.SetClientID(c, displayID); err != nil {
		s.poller.Unregister(fd)
		_ = unix.Close(fd)
		return nil, err
	}
	s.clients[key] = c
	s.pollables[key] = c.endpoint
	s.changeInterest(c.endpoint, func(i uint32) uint32 { return i | poll.Readable })
	if err := s.updateInterests(); err != nil {
		return nil, err
	}

	s.stats.ClientsConnected++
	log.WithField("client", key).Debug("Client connected")

	if notify && s.handler != nil {
		s.handler.NewClient(c)
	}
	return c, nil
}

// CreateAcceptor binds a new listening socket whose connections become
// clients of this State. The StateHandler is notified of every new client.
func (s *State) CreateAcceptor(maxTries uint32) (*Acceptor, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	a, err := NewAcceptor(maxTries, true)
	if err != nil {
		return nil, err
	}
	key := s.nextKey()
	if err := s.poller.Register(key, a.fd); err != nil {
		_ = a.Close()
		return nil, wrap(ErrPoll, err)
	}
	src := &acceptorSource{key: key, acceptor: a}
	s.acceptors = append(s.acceptors, src)
	s.pollables[key] = src
	s.interestAcceptors.Add(src)
	if err := s.updateInterests(); err != nil {
		return nil, err
	}
	return a, nil
}

// changeInterest applies f to the desired interests of ep and queues the
// endpoint for an interest update.
func (s *State) changeInterest(ep *endpoint, f func(uint32) uint32) {
	if s.destroyed {
		return
	}
	old := ep.desiredInterest
	ep.desiredInterest = f(old)
	if old != ep.desiredInterest && ep.currentInterest != ep.desiredInterest && !ep.interestUpdateQueued {
		ep.interestUpdateQueued = true
		s.interestEndpoints.Add(ep)
	}
}

func (s *State) addFlushable(ep *endpoint) {
	if ep.flushQueued {
		return
	}
	ep.flushQueued = true
	s.flushable.Add(ep)
}

func (s *State) killClient(c *Client) {
	if c.destroyed {
		return
	}
	s.toKill.Add(c)
}

// removeEndpoint unregisters ep and releases its resources.
func (s *State) removeEndpoint(ep *endpoint) {
	if ep.unregistered {
		return
	}
	ep.unregistered = true
	delete(s.pollables, ep.key)
	if ep.client != nil {
		delete(s.clients, ep.key)
	}
	s.poller.Unregister(ep.fd)
	ep.close()
}

// Dispatch performs one round of work. A negative timeout waits until work is
// available, a zero timeout only handles work that is already pending. The
// result reports whether any work has been performed.
//
// Errors other than ErrRecursiveCall and ErrDestroyed destroy the State. If
// a handler destroys the State during the round, Dispatch stops at the next
// step and returns ErrDestroyed.
func (s *State) Dispatch(timeout time.Duration) (bool, error) {
	if s.locked {
		return false, ErrRecursiveCall
	}
	if s.destroyed {
		return false, ErrDestroyed
	}
	s.locked = true
	defer func() { s.locked = false }()

	worked, err := s.dispatch(timeout)
	if err != nil && !errors.Is(err, ErrDestroyed) {
		s.Destroy()
	}
	return worked, err
}

func (s *State) dispatch(timeout time.Duration) (bool, error) {
	var worked bool
	step := func(f func() (bool, error)) error {
		w, err := f()
		worked = worked || w
		if err != nil {
			return err
		}
		// The keep-readable pipe is oneshot, waiting on a destroyed State
		// would consume it.
		if s.destroyed {
			return ErrDestroyed
		}
		return nil
	}

	if timeout != 0 {
		if err := step(s.flushLocked); err != nil {
			return worked, err
		}
	}
	wait := func() (bool, error) { return false, s.waitForWork(timeout) }
	for _, f := range []func() (bool, error){wait, s.acceptConnections, s.readMessages, s.flushLocked} {
		if err := step(f); err != nil {
			return worked, err
		}
	}
	return worked, nil
}

// DispatchBlocking waits for work and performs it.
func (s *State) DispatchBlocking() (bool, error) {
	return s.Dispatch(-1)
}

// DispatchAvailable performs the work that is already pending.
func (s *State) DispatchAvailable() (bool, error) {
	return s.Dispatch(0)
}

// BeforePoll flushes all pending messages. Call it before waiting on PollFD
// in an external event loop.
func (s *State) BeforePoll() error {
	if s.locked {
		return ErrRecursiveCall
	}
	if s.destroyed {
		return ErrDestroyed
	}
	s.locked = true
	defer func() { s.locked = false }()

	if _, err := s.flushLocked(); err != nil {
		s.Destroy()
		return err
	}
	return nil
}

func (s *State) flushLocked() (bool, error) {
	worked, err := s.performWrites()
	if err != nil {
		return worked, err
	}
	if s.killClients() {
		worked = true
	}
	return worked, s.updateInterests()
}

func (s *State) performWrites() (bool, error) {
	if s.flushable.Length() == 0 {
		return false, nil
	}
	for s.flushable.Length() > 0 {
		ep := s.flushable.Remove().(*endpoint)
		ep.flushQueued = false
		if ep.unregistered {
			continue
		}
		res, err := ep.flush()
		if err != nil {
			if ep.client == nil {
				if errors.Is(err, wire.ErrClosed) {
					return true, ErrServerHangup
				}
				return true, wrap(ErrWriteToServer, err)
			}
			if !errors.Is(err, wire.ErrClosed) {
				log.WithError(err).WithField("client", ep.key).Warn("Could not write to client")
			}
			s.killClient(ep.client)
			continue
		}
		if res == wire.Done {
			s.changeInterest(ep, func(i uint32) uint32 { return i &^ poll.Writable })
		} else {
			s.changeInterest(ep, func(i uint32) uint32 { return i | poll.Writable })
		}
	}
	return true, nil
}

func (s *State) killClients() bool {
	if s.toKill.Length() == 0 {
		return false
	}
	for s.toKill.Length() > 0 {
		s.toKill.Remove().(*Client).Disconnect()
	}
	return true
}

func (s *State) updateInterests() error {
	for s.interestEndpoints.Length() > 0 {
		ep := s.interestEndpoints.Remove().(*endpoint)
		ep.interestUpdateQueued = false
		if ep.unregistered || ep.desiredInterest == ep.currentInterest {
			continue
		}
		if err := s.poller.Update(ep.key, ep.fd, ep.desiredInterest); err != nil {
			return wrap(ErrPoll, err)
		}
		ep.currentInterest = ep.desiredInterest
	}
	for s.interestAcceptors.Length() > 0 {
		src := s.interestAcceptors.Remove().(*acceptorSource)
		if src.acceptor.closed {
			continue
		}
		if err := s.poller.Update(src.key, src.acceptor.fd, poll.Readable); err != nil {
			return wrap(ErrPoll, err)
		}
	}
	return nil
}

func (s *State) waitForWork(timeout time.Duration) error {
	for {
		n, err := s.poller.Wait(timeout, s.events[:])
		if err != nil {
			return wrap(ErrPoll, err)
		}
		if n == 0 {
			return nil
		}
		timeout = 0

		for _, ev := range s.events[:n] {
			switch p := s.pollables[ev.Key].(type) {
			case *endpoint:
				if ev.Events&poll.Error != 0 {
					if p.client == nil {
						return ErrServerHangup
					}
					s.killClient(p.client)
					continue
				}
				fired := ev.Events
				p.currentInterest = 0
				s.changeInterest(p, func(i uint32) uint32 { return i &^ fired })
				if ev.Events&poll.Readable != 0 {
					s.readable.Add(p)
				}
				if ev.Events&poll.Writable != 0 {
					s.addFlushable(p)
				}
			case *acceptorSource:
				s.acceptable.Add(p)
			case *remoteSignal:
				s.poller.Unregister(p.fd)
				_ = unix.Close(p.fd)
				delete(s.pollables, ev.Key)
				if p.destroy.Load() {
					return ErrRemoteDestroyed
				}
			}
		}
	}
}

func (s *State) acceptConnections() (bool, error) {
	if s.acceptable.Length() == 0 {
		return false, nil
	}
	for s.acceptable.Length() > 0 {
		src := s.acceptable.Remove().(*acceptorSource)
		if src.acceptor.closed {
			continue
		}
		for i := 0; i < maxAcceptsPerDispatch; i++ {
			fd, ok, err := src.acceptor.Accept()
			if err != nil {
				return true, err
			}
			if !ok {
				break
			}
			if _, err := s.createClient(fd, true); err != nil {
				return true, err
			}
			if s.destroyed {
				return true, nil
			}
		}
		s.interestAcceptors.Add(src)
	}
	return true, nil
}

func (s *State) readMessages() (bool, error) {
	if s.readable.Length() == 0 {
		return false, nil
	}
	for s.readable.Length() > 0 {
		ep := s.readable.Remove().(*endpoint)
		if ep.unregistered {
			continue
		}
		err := ep.readMessages(s)
		if s.destroyed {
			return true, nil
		}
		if err != nil {
			if ep.client == nil {
				var serr *ServerError
				if errors.As(err, &serr) && s.handler != nil {
					s.handler.DisplayError(serr.object, serr.ObjectID, serr.Code, serr.Message)
				}
				return true, wrap(ErrDispatchEvents, err)
			}
			if !errors.Is(err, wire.ErrClosed) {
				log.WithError(err).WithField("client", ep.key).Warn("Could not handle client message")
			}
			s.killClient(ep.client)
			continue
		}
		if ep.client != nil && ep.client.destroyed {
			continue
		}
		s.changeInterest(ep, func(i uint32) uint32 { return i | poll.Readable })
	}
	return true, nil
}

// InjectRequest runs the handler of obj for a request that was not received
// from the client.
func (s *State) InjectRequest(obj *Object, msg *Message) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if _, err := signature(obj.iface.Request, msg); err != nil {
		return err
	}
	h, err := obj.borrowHandler()
	if err != nil {
		return err
	}
	defer obj.releaseHandler()
	h.HandleRequest(obj, msg)
	return nil
}

// InjectEvent runs the handler of obj for an event that was not received
// from the server.
func (s *State) InjectEvent(obj *Object, msg *Message) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if _, err := signature(obj.iface.Event, msg); err != nil {
		return err
	}
	h, err := obj.borrowHandler()
	if err != nil {
		return err
	}
	defer obj.releaseHandler()
	h.HandleEvent(obj, msg)
	return nil
}

// Destroy disconnects every client and the server and releases the handlers
// of all objects. Destroy is idempotent and may be called from handlers.
func (s *State) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true

	var stash []*endpoint
	for _, c := range s.clients {
		c.destroyed = true
		c.handler = nil
		stash = append(stash, c.endpoint)
	}
	if s.server != nil {
		stash = append(stash, s.server)
	}
	for _, ep := range stash {
		if ep.unregistered {
			continue
		}
		ep.unregistered = true
		s.poller.Unregister(ep.fd)
		clear(ep.objects)
	}
	for _, src := range s.acceptors {
		if src.acceptor.closed {
			continue
		}
		s.poller.Unregister(src.acceptor.fd)
		if err := src.acceptor.Close(); err != nil {
			log.WithError(err).Warn("Could not close acceptor")
		}
	}
	for key, p := range s.pollables {
		if r, ok := p.(*remoteSignal); ok {
			s.poller.Unregister(r.fd)
			_ = unix.Close(r.fd)
		}
		delete(s.pollables, key)
	}

	var live []*Object
	for _, p := range s.objects {
		if o := p.Value(); o != nil {
			live = append(live, o)
		}
	}
	for _, o := range live {
		o.drop()
	}
	clear(s.objects)
	clear(s.clients)
	s.acceptors = nil
	s.handler = nil
	s.tracer = nil
	s.resetQueues()

	for _, ep := range stash {
		ep.close()
	}

	s.keepReadable()
	log.Debug("State destroyed")
}

// keepReadable registers the read end of a closed pipe so that PollFD stays
// readable after Destroy.
func (s *State) keepReadable() {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		log.WithError(err).Warn("Could not create pipe")
		return
	}
	_ = unix.Close(fds[1])
	if err := s.poller.Register(serverKey, fds[0]); err != nil {
		log.WithError(err).Warn("Could not register pipe")
		_ = unix.Close(fds[0])
		return
	}
	if err := s.poller.Update(serverKey, fds[0], poll.Readable); err != nil {
		log.WithError(err).Warn("Could not register pipe")
	}
	s.wakeFd = fds[0]
}

// Close destroys the State and closes its poll descriptor.
func (s *State) Close() error {
	s.Destroy()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.wakeFd >= 0 {
		_ = unix.Close(s.wakeFd)
		s.wakeFd = -1
	}
	return s.poller.Close()
}
