// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// maxSocketPath is the size of sun_path including the terminating NUL.
const maxSocketPath = 108

// Acceptor is a listening Wayland socket in XDG_RUNTIME_DIR.
type Acceptor struct {
	display  string
	socket   string
	lockPath string
	fd       int
	lockFd   int
	closed   bool
}

// NewAcceptor binds the first free socket wayland-N, N = 1..maxTries. Each
// socket is guarded by a wayland-N.lock file, stale sockets are replaced.
func NewAcceptor(maxTries uint32, nonBlocking bool) (*Acceptor, error) {
	xrd, ok := os.LookupEnv("XDG_RUNTIME_DIR")
	if !ok {
		return nil, ErrXrdNotSet
	}

	flags := unix.SOCK_STREAM | unix.SOCK_CLOEXEC
	if nonBlocking {
		flags |= unix.SOCK_NONBLOCK
	}

	var errs error
	for i := uint32(1); i <= maxTries; i++ {
		display := fmt.Sprintf("wayland-%d", i)
		a, err := tryBind(xrd, display, flags)
		if err == nil {
			if err := unix.Listen(a.fd, 1024); err != nil {
				_ = a.Close()
				return nil, wrap(ErrCreateAcceptor, err)
			}
			log.WithField("display", display).Info("Bound Wayland socket")
			return a, nil
		}
		log.WithError(err).WithField("display", display).Debug("Could not bind socket")
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", display, err))
	}
	if errs == nil {
		return nil, ErrAddressesInUse
	}
	return nil, wrap(ErrAddressesInUse, errs)
}

func tryBind(xrd, display string, flags int) (*Acceptor, error) {
	socket := filepath.Join(xrd, display)
	lockPath := socket + ".lock"
	if len(socket)+1 > maxSocketPath {
		return nil, ErrSocketPathTooLong
	}

	lockFd, err := unix.Open(lockPath, unix.O_CREAT|unix.O_CLOEXEC|unix.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open the lock file: %w", err)
	}
	if err := unix.Flock(lockFd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(lockFd)
		return nil, fmt.Errorf("could not lock the lock file: %w", err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(socket, &st); err == nil {
		if err := unix.Unlink(socket); err != nil {
			_ = unix.Close(lockFd)
			return nil, fmt.Errorf("could not remove the stale socket: %w", err)
		}
	} else if !errors.Is(err, unix.ENOENT) {
		_ = unix.Close(lockFd)
		return nil, fmt.Errorf("could not stat the socket: %w", err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, flags, 0)
	if err != nil {
		_ = unix.Close(lockFd)
		return nil, wrap(ErrCreateSocket, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: socket}); err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(lockFd)
		return nil, fmt.Errorf("could not bind the socket: %w", err)
	}

	return &Acceptor{
		display:  display,
		socket:   socket,
		lockPath: lockPath,
		fd:       fd,
		lockFd:   lockFd,
	}, nil
}

// Display is the name to put into WAYLAND_DISPLAY.
func (a *Acceptor) Display() string {
	return a.display
}

// Path of the socket.
func (a *Acceptor) Path() string {
	return a.socket
}

// FD of the listening socket.
func (a *Acceptor) FD() int {
	return a.fd
}

// Setenv sets WAYLAND_DISPLAY to the display of this acceptor.
func (a *Acceptor) Setenv() error {
	return os.Setenv("WAYLAND_DISPLAY", a.display)
}

// Accept returns the next connection. For non-blocking acceptors ok is false
// when no connection is pending.
func (a *Acceptor) Accept() (fd int, ok bool, err error) {
	for {
		fd, _, err = unix.Accept4(a.fd, unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			return fd, true, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return -1, false, nil
		default:
			return -1, false, wrap(ErrAcceptConnection, err)
		}
	}
}

// Close removes the socket and its lock file.
func (a *Acceptor) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs error
	if err := unix.Unlink(a.socket); err != nil && !errors.Is(err, unix.ENOENT) {
		errs = multierror.Append(errs, fmt.Errorf("unlink %s: %w", a.socket, err))
	}
	if err := unix.Unlink(a.lockPath); err != nil && !errors.Is(err, unix.ENOENT) {
		errs = multierror.Append(errs, fmt.Errorf("unlink %s: %w", a.lockPath, err))
	}
	if err := unix.Close(a.fd); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := unix.Close(a.lockFd); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}
