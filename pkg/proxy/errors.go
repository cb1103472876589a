// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"errors"
	"fmt"
)

// Errors returned by the State. Errors carrying a cause wrap both the sentinel
// and the cause, errors.Is works for either.
var (
	ErrDestroyed       = errors.New("the state has already been destroyed")
	ErrRemoteDestroyed = errors.New("the state has been destroyed by a remote destructor")
	ErrRecursiveCall   = errors.New("cannot perform recursive call into the state")
	ErrServerHangup    = errors.New("the server hung up the connection")
	ErrWriteToServer   = errors.New("could not write to the server socket")
	ErrDispatchEvents  = errors.New("could not dispatch server events")
	ErrPoll            = errors.New("could not poll")

	ErrSocketpair       = errors.New("could not create a socket pair")
	ErrCreateAcceptor   = errors.New("could not create an acceptor")
	ErrAcceptConnection = errors.New("could not accept a new connection")
	ErrCreatePipe       = errors.New("could not create a pipe")
	ErrAddressesInUse   = errors.New("all socket addresses are in use")

	ErrWaylandDisplay      = errors.New("could not read WAYLAND_DISPLAY environment variable")
	ErrWaylandDisplayEmpty = errors.New("the display name is empty")
	ErrXrdNotSet           = errors.New("XDG_RUNTIME_DIR is not set")
	ErrSocketPathTooLong   = errors.New("the socket path is too long")
	ErrCreateSocket        = errors.New("could not create a socket")
	ErrConnect             = errors.New("could not connect to the server")

	ErrWaylandSocketNotNumber = errors.New("WAYLAND_SOCKET does not contain a valid number")
	ErrWaylandSocketFd        = errors.New("could not set FD_CLOEXEC on WAYLAND_SOCKET")
)

func wrap(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// IDErrorKind classifies failures of the id primitives of an Object.
type IDErrorKind int

const (
	StateDestroyed IDErrorKind = iota
	ClientDestroyed
	HasServerID
	NoServer
	NoServerSpace
	NotServerID
	ServerIDInUse
	HasClientID
	NoClientSpace
	NotClientID
	ClientIDInUse
)

// IDError is returned when an id cannot be assigned to an Object.
type IDError struct {
	Kind IDErrorKind
	ID   uint32
}

func (e *IDError) Error() string {
	switch e.Kind {
	case StateDestroyed:
		return "the state is already destroyed"
	case ClientDestroyed:
		return "the client is already destroyed"
	case HasServerID:
		return fmt.Sprintf("object already has the server id %d", e.ID)
	case NoServer:
		return "the state does not have a server"
	case NoServerSpace:
		return "there are no server ids available"
	case NotServerID:
		return fmt.Sprintf("the id %d is too small to be a server id", e.ID)
	case ServerIDInUse:
		return fmt.Sprintf("the server id %d is already in use", e.ID)
	case HasClientID:
		return fmt.Sprintf("object already has the client id %d", e.ID)
	case NoClientSpace:
		return "there are no client ids available"
	case NotClientID:
		return fmt.Sprintf("the id %d is not a valid client id", e.ID)
	case ClientIDInUse:
		return fmt.Sprintf("the client id %d is already in use", e.ID)
	default:
		return fmt.Sprintf("id error %d", int(e.Kind))
	}
}

// Is matches IDErrors of the same kind, the id is ignored.
func (e *IDError) Is(target error) bool {
	t, ok := target.(*IDError)
	return ok && t.Kind == e.Kind
}

// ObjectErrorKind classifies failures while handling or sending a message.
type ObjectErrorKind int

const (
	GenerateClientID ObjectErrorKind = iota
	GenerateServerID
	SetClientID
	SetServerID
	NoClientObject
	NoServerObject
	WrongObjectType
	MaxVersion
	UnsupportedInterface
	ReceiverNoServerID
	ReceiverNoClient
	ArgNoClientID
	ArgNoServerID
	UnknownMessageID
	Decode
	NullString
	WrongArgType
	Encode
	ServerErrorKind
	HandlerBorrowed
	NotAwaitingDeleteID
)

// ObjectError describes why a message could not be decoded, handled or
// encoded. Arg names the argument the error refers to, if any. For
// WrongObjectType, Interface is the expected and Got the actual interface.
type ObjectError struct {
	Kind      ObjectErrorKind
	Arg       string
	ID        uint32
	Interface string
	Got       string
	Err       error
}

func (e *ObjectError) Error() string {
	var msg string
	switch e.Kind {
	case GenerateClientID:
		msg = fmt.Sprintf("could not generate a client id for argument %s", e.Arg)
	case GenerateServerID:
		msg = fmt.Sprintf("could not generate a server id for argument %s", e.Arg)
	case SetClientID:
		msg = fmt.Sprintf("could not assign client id %d to argument %s", e.ID, e.Arg)
	case SetServerID:
		msg = fmt.Sprintf("could not assign server id %d to argument %s", e.ID, e.Arg)
	case NoClientObject:
		msg = fmt.Sprintf("client has no object with id %d", e.ID)
	case NoServerObject:
		msg = fmt.Sprintf("server has no object with id %d", e.ID)
	case WrongObjectType:
		msg = fmt.Sprintf("argument %s has type %s but should have type %s", e.Arg, e.Got, e.Interface)
	case MaxVersion:
		msg = fmt.Sprintf("the requested version %d for interface %s is larger than the max version", e.ID, e.Interface)
	case UnsupportedInterface:
		msg = fmt.Sprintf("the interface %s is not supported", e.Interface)
	case ReceiverNoServerID:
		msg = "the receiver has no server id"
	case ReceiverNoClient:
		msg = "the receiver has no client"
	case ArgNoClientID:
		msg = fmt.Sprintf("the argument %s is not associated with client %d", e.Arg, e.ID)
	case ArgNoServerID:
		msg = fmt.Sprintf("the argument %s has no server id", e.Arg)
	case UnknownMessageID:
		msg = fmt.Sprintf("unknown message id %d", e.ID)
	case Decode:
		msg = "could not decode the message"
		if e.Arg != "" {
			msg = fmt.Sprintf("could not decode argument %s", e.Arg)
		}
	case NullString:
		msg = fmt.Sprintf("argument %s is a null string but the argument is not nullable", e.Arg)
	case WrongArgType:
		msg = "the message has the wrong number of arguments"
		if e.Arg != "" {
			msg = fmt.Sprintf("argument %s has the wrong Go type", e.Arg)
		}
	case Encode:
		msg = "could not encode the message"
		if e.Arg != "" {
			msg = fmt.Sprintf("could not encode argument %s", e.Arg)
		}
	case ServerErrorKind:
		msg = "server sent an error"
	case HandlerBorrowed:
		msg = "the message handler is already borrowed"
	case NotAwaitingDeleteID:
		msg = "the client is not waiting for a delete_id message"
	default:
		msg = fmt.Sprintf("object error %d", int(e.Kind))
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// Is matches ObjectErrors of the same kind.
func (e *ObjectError) Is(target error) bool {
	t, ok := target.(*ObjectError)
	return ok && t.Kind == e.Kind
}

// ServerError is a wl_display.error event sent by the server. Such errors
// are fatal.
type ServerError struct {
	ObjectID  uint32
	Interface string
	Code      uint32
	Message   string

	object *Object
}

// Object the error refers to, nil if the proxy does not know it.
func (e *ServerError) Object() *Object {
	return e.object
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server sent error %d on object %s#%d: %s", e.Code, e.Interface, e.ObjectID, e.Message)
}

// MessageError locates an ObjectError in the stream of an endpoint.
type MessageError struct {
	Object    uint32
	Interface string
	Opcode    uint16
	Message   string
	Err       error
}

func (e *MessageError) Error() string {
	if e.Interface == "" {
		return fmt.Sprintf("could not handle message %d on object %d with unknown interface: %v", e.Opcode, e.Object, e.Err)
	}
	name := e.Message
	if name == "" {
		name = fmt.Sprint(e.Opcode)
	}
	return fmt.Sprintf("could not handle a %s#%d.%s message: %v", e.Interface, e.Object, name, e.Err)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// EndpointErrorKind classifies failures of an endpoint.
type EndpointErrorKind int

const (
	EndpointFlush EndpointErrorKind = iota
	EndpointRead
	EndpointNoReceiver
	EndpointHandleMessage
)

// EndpointError is an unrecoverable error of a single connection.
type EndpointError struct {
	Kind EndpointErrorKind
	ID   uint32
	Err  error
}

func (e *EndpointError) Error() string {
	switch e.Kind {
	case EndpointFlush:
		return fmt.Sprintf("could not flush the socket: %v", e.Err)
	case EndpointRead:
		return fmt.Sprintf("could not read a message: %v", e.Err)
	case EndpointNoReceiver:
		return fmt.Sprintf("receiver object %d does not exist", e.ID)
	default:
		return e.Err.Error()
	}
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}
