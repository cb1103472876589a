// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/mahkoh/wl-proxy-sub010/pkg/poll"
	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
)

// DefaultMaxClientBuffer is the default bound of unsent bytes per client.
const DefaultMaxClientBuffer = 16 << 20

// Builder configures and creates a State.
//
// Without further configuration the server connection is taken from
// WAYLAND_SOCKET or WAYLAND_DISPLAY, message tracing is enabled by
// WL_PROXY_DEBUG=1 and WL_PROXY_PREFIX is added to the trace prefix.
type Builder struct {
	noServer    bool
	serverFile  *os.File
	displayName string

	trace     bool
	logPrefix string
	tracers   []Tracer

	maxClientBuffer int
	registry        *protocol.Registry
	handler         StateHandler
}

// NewBuilder creates a Builder with the default configuration.
func NewBuilder() *Builder {
	return &Builder{
		trace:           os.Getenv("WL_PROXY_DEBUG") == "1",
		maxClientBuffer: DefaultMaxClientBuffer,
	}
}

// WithoutServer creates a State without server connection. Objects of such a
// State can never be assigned a server id.
func (b *Builder) WithoutServer() *Builder {
	b.noServer = true
	return b
}

// WithServerFile uses a duplicate of f as server connection.
func (b *Builder) WithServerFile(f *os.File) *Builder {
	b.serverFile = f
	return b
}

// WithServerDisplayName connects to the named display instead of the one in
// the environment. Relative names are resolved in XDG_RUNTIME_DIR.
func (b *Builder) WithServerDisplayName(name string) *Builder {
	b.displayName = name
	return b
}

// WithLogging enables or disables message tracing to the log.
func (b *Builder) WithLogging(enabled bool) *Builder {
	b.trace = enabled
	return b
}

// WithLogPrefix sets the prefix of traced messages.
func (b *Builder) WithLogPrefix(prefix string) *Builder {
	b.logPrefix = prefix
	return b
}

// LogPrefix returns the prefix set with WithLogPrefix.
func (b *Builder) LogPrefix() string {
	return b.logPrefix
}

// WithTracer adds a Tracer that observes every message.
func (b *Builder) WithTracer(t Tracer) *Builder {
	b.tracers = append(b.tracers, t)
	return b
}

// WithMaxClientBuffer sets the number of unsent bytes after which a client
// is disconnected. Zero disables the limit.
func (b *Builder) WithMaxClientBuffer(n int) *Builder {
	b.maxClientBuffer = n
	return b
}

// WithRegistry sets the protocol registry. The default contains the core
// interfaces.
func (b *Builder) WithRegistry(r *protocol.Registry) *Builder {
	b.registry = r
	return b
}

// Registry returns the registry set with WithRegistry, nil for the default.
func (b *Builder) Registry() *protocol.Registry {
	return b.registry
}

// WithHandler sets the StateHandler.
func (b *Builder) WithHandler(h StateHandler) *Builder {
	b.handler = h
	return b
}

// tracePrefix combines WL_PROXY_PREFIX and the configured prefix into the
// form "{prefix} ".
func (b *Builder) tracePrefix() string {
	prefix := os.Getenv("WL_PROXY_PREFIX")
	if b.logPrefix != "" {
		if prefix != "" {
			prefix += " "
		}
		prefix += b.logPrefix
	}
	if prefix == "" {
		return ""
	}
	return "{" + prefix + "} "
}

// Build creates the State and connects it to the server.
func (b *Builder) Build() (*State, error) {
	registry := b.registry
	if registry == nil {
		registry = protocol.Core()
	}

	var fd = -1
	if !b.noServer {
		var err error
		if fd, err = b.serverFd(); err != nil {
			return nil, err
		}
	}

	poller, err := poll.New()
	if err != nil {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
		return nil, wrap(ErrPoll, err)
	}

	s := newState(poller, registry)
	s.maxClientBuffer = b.maxClientBuffer
	s.name = b.logPrefix
	s.handler = b.handler

	tracers := b.tracers
	if b.trace {
		tracers = append([]Tracer{NewLogTracer(b.tracePrefix())}, tracers...)
	}
	switch len(tracers) {
	case 0:
	case 1:
		s.tracer = tracers[0]
	default:
		s.tracer = MultiTracer(tracers)
	}

	if fd >= 0 {
		if err := s.attachServer(fd); err != nil {
			_ = unix.Close(fd)
			_ = poller.Close()
			return nil, err
		}
		if err := s.updateInterests(); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (b *Builder) serverFd() (int, error) {
	if b.serverFile != nil {
		return dupCloexec(b.serverFile)
	}
	if b.displayName != "" {
		return connectDisplay(b.displayName)
	}

	if v, ok := os.LookupEnv("WAYLAND_SOCKET"); ok {
		fd, err := strconv.Atoi(v)
		if err != nil {
			return -1, wrap(ErrWaylandSocketNotNumber, err)
		}
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		if err == nil {
			_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
		}
		if err != nil {
			return -1, wrap(ErrWaylandSocketFd, err)
		}
		_ = os.Unsetenv("WAYLAND_SOCKET")
		return fd, nil
	}

	name, ok := os.LookupEnv("WAYLAND_DISPLAY")
	if !ok {
		return -1, ErrWaylandDisplay
	}
	return connectDisplay(name)
}

// connectDisplay opens a blocking connection to a Wayland display.
func connectDisplay(name string) (int, error) {
	if name == "" {
		return -1, ErrWaylandDisplayEmpty
	}
	path := name
	if !filepath.IsAbs(path) {
		xrd, ok := os.LookupEnv("XDG_RUNTIME_DIR")
		if !ok {
			return -1, ErrXrdNotSet
		}
		path = filepath.Join(xrd, name)
	}
	if len(path)+1 > maxSocketPath {
		return -1, ErrSocketPathTooLong
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, wrap(ErrCreateSocket, err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("%w %s: %w", ErrConnect, path, err)
	}
	return fd, nil
}

func dupCloexec(f *os.File) (int, error) {
	sc, err := f.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	var dupErr error
	if err := sc.Control(func(raw uintptr) {
		fd, dupErr = unix.FcntlInt(raw, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return -1, err
	}
	if dupErr != nil {
		return -1, dupErr
	}
	return fd, nil
}
