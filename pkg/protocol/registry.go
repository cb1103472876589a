// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"fmt"
	"sort"
)

// Registry maps interface names to their schemas.
type Registry struct {
	ifaces map[string]*Interface
}

// NewRegistry creates a Registry containing the given interfaces.
func NewRegistry(ifaces ...*Interface) (*Registry, error) {
	r := &Registry{ifaces: make(map[string]*Interface)}
	for _, iface := range ifaces {
		if err := r.Add(iface); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Core creates a Registry containing the built-in core interfaces.
// The interfaces are shared and already finished, so Core is safe to call
// from several goroutines.
func Core() *Registry {
	r := &Registry{ifaces: make(map[string]*Interface, len(coreInterfaces))}
	for _, iface := range coreInterfaces {
		r.ifaces[iface.Name] = iface
	}
	return r
}

// Add registers an interface. Interfaces cannot be replaced.
func (r *Registry) Add(iface *Interface) error {
	if _, ok := r.ifaces[iface.Name]; ok {
		return fmt.Errorf("interface %s is already registered", iface.Name)
	}
	iface.finish()
	r.ifaces[iface.Name] = iface
	return nil
}

// Lookup returns the interface with the given name.
func (r *Registry) Lookup(name string) (*Interface, bool) {
	iface, ok := r.ifaces[name]
	return iface, ok
}

// Names of all registered interfaces in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ifaces))
	for name := range r.ifaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len is the number of registered interfaces.
func (r *Registry) Len() int {
	return len(r.ifaces)
}
