// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
)

// globalName is an optional wl_registry name.
type globalName struct {
	name  uint32
	valid bool
}

// GlobalMapper translates between the global names of the server and the
// names a client sees. It allows hiding server globals and announcing
// globals that only exist in the proxy.
//
// A GlobalMapper belongs to a single wl_registry object.
type GlobalMapper struct {
	serverToClient map[uint32]globalName
	clientToServer []globalName
}

// NewGlobalMapper creates an empty GlobalMapper. Client names start at 1.
func NewGlobalMapper() *GlobalMapper {
	return &GlobalMapper{
		serverToClient: map[uint32]globalName{0: {}},
		clientToServer: []globalName{{}},
	}
}

// AddSyntheticGlobal announces a global that has no server counterpart and
// returns its client name.
func (m *GlobalMapper) AddSyntheticGlobal(registry *Object, iface string, version uint32) (uint32, error) {
	name := uint32(len(m.clientToServer))
	m.clientToServer = append(m.clientToServer, globalName{})
	return name, sendGlobal(registry, name, iface, version)
}

// RemoveSyntheticGlobal withdraws a global created by AddSyntheticGlobal.
func (m *GlobalMapper) RemoveSyntheticGlobal(registry *Object, name uint32) error {
	return sendGlobalRemove(registry, name)
}

// ForwardGlobal announces a server global to the client under a new name.
func (m *GlobalMapper) ForwardGlobal(registry *Object, serverName uint32, iface string, version uint32) error {
	clientName := uint32(len(m.clientToServer))
	m.clientToServer = append(m.clientToServer, globalName{name: serverName, valid: true})
	m.serverToClient[serverName] = globalName{name: clientName, valid: true}
	return sendGlobal(registry, clientName, iface, version)
}

// IgnoreGlobal records a server global that is not announced to the client.
func (m *GlobalMapper) IgnoreGlobal(serverName uint32) {
	m.serverToClient[serverName] = globalName{}
}

// ForwardGlobalRemove withdraws the client global of a server global.
// Removals of ignored globals are swallowed.
func (m *GlobalMapper) ForwardGlobalRemove(registry *Object, serverName uint32) error {
	clientName, ok := m.serverToClient[serverName]
	if !ok {
		log.WithField("name", serverName).Warn("Server removed a global that does not exist")
		return nil
	}
	delete(m.serverToClient, serverName)
	if !clientName.valid {
		return nil
	}
	return sendGlobalRemove(registry, clientName.name)
}

// ForwardBind sends a bind of a client global to the server. Binds of
// synthetic globals are not forwarded.
func (m *GlobalMapper) ForwardBind(registry *Object, clientName uint32, obj *Object) error {
	if int64(clientName) >= int64(len(m.clientToServer)) {
		log.WithField("name", clientName).Warn("Client bound a global that does not exist")
		return nil
	}
	serverName := m.clientToServer[clientName]
	if !serverName.valid {
		return nil
	}
	msg, err := NewRequest(registry.iface, "bind", serverName.name, obj)
	if err != nil {
		return err
	}
	return registry.SendRequest(msg)
}

// ServerName returns the server name of a client global.
func (m *GlobalMapper) ServerName(clientName uint32) (uint32, bool) {
	if int64(clientName) >= int64(len(m.clientToServer)) {
		return 0, false
	}
	n := m.clientToServer[clientName]
	return n.name, n.valid
}

func sendGlobal(registry *Object, name uint32, iface string, version uint32) error {
	msg, err := NewEvent(registry.iface, "global", name, iface, version)
	if err != nil {
		return err
	}
	return registry.SendEvent(msg)
}

func sendGlobalRemove(registry *Object, name uint32) error {
	msg, err := NewEvent(registry.iface, "global_remove", name)
	if err != nil {
		return err
	}
	return registry.SendEvent(msg)
}

// GlobalFilter changes how globals of one interface are announced.
type GlobalFilter struct {
	Interface string
	// Hide removes the global from the registry of the client.
	Hide bool
	// MaxVersion caps the announced version, 0 keeps it.
	MaxVersion uint32
}

// RegistryFilter applies GlobalFilters to every registry a client creates.
type RegistryFilter struct {
	filters map[string]GlobalFilter
}

// NewRegistryFilter creates a RegistryFilter. Later filters for the same
// interface replace earlier ones.
func NewRegistryFilter(filters ...GlobalFilter) *RegistryFilter {
	f := &RegistryFilter{filters: make(map[string]GlobalFilter, len(filters))}
	for _, filter := range filters {
		f.filters[filter.Interface] = filter
	}
	return f
}

// Install sets the handler of the wl_display of c.
func (f *RegistryFilter) Install(c *Client) {
	c.Display().SetHandler(f.DisplayHandler())
}

// DisplayHandler returns a wl_display handler that installs a filtering
// handler on each new wl_registry.
func (f *RegistryFilter) DisplayHandler() Handler {
	return HandlerFuncs{
		Request: func(display *Object, msg *Message) {
			if msg.Opcode == protocol.DisplayGetRegistry {
				if registry := msg.Object(0); registry != nil {
					registry.SetHandler(&registryFilterHandler{filter: f, mapper: NewGlobalMapper()})
				}
			}
			display.ForwardRequest(msg)
		},
	}
}

type registryFilterHandler struct {
	filter *RegistryFilter
	mapper *GlobalMapper
}

func (h *registryFilterHandler) HandleRequest(registry *Object, msg *Message) {
	if msg.Opcode != protocol.RegistryBind {
		registry.ForwardRequest(msg)
		return
	}
	if err := h.mapper.ForwardBind(registry, msg.Uint(0), msg.Object(1)); err != nil {
		log.WithError(err).Warn("Could not handle client bind")
	}
}

func (h *registryFilterHandler) HandleEvent(registry *Object, msg *Message) {
	switch msg.Opcode {
	case protocol.RegistryGlobal:
		name, version := msg.Uint(0), msg.Uint(2)
		iface, _ := msg.String(1)
		if filter, ok := h.filter.filters[iface]; ok {
			if filter.Hide {
				log.WithFields(log.Fields{
					"name":      name,
					"interface": iface,
				}).Debug("Hiding global")
				h.mapper.IgnoreGlobal(name)
				return
			}
			if filter.MaxVersion > 0 && version > filter.MaxVersion {
				version = filter.MaxVersion
			}
		}
		if err := h.mapper.ForwardGlobal(registry, name, iface, version); err != nil {
			log.WithError(err).Warn("Could not handle server global")
		}
	case protocol.RegistryGlobalRemove:
		if err := h.mapper.ForwardGlobalRemove(registry, msg.Uint(0)); err != nil {
			log.WithError(err).Warn("Could not handle server global remove")
		}
	default:
		registry.ForwardEvent(msg)
	}
}
