// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

type protocolXML struct {
	Name       string         `xml:"name,attr"`
	Interfaces []interfaceXML `xml:"interface"`
}

type interfaceXML struct {
	Name     string       `xml:"name,attr"`
	Version  string       `xml:"version,attr"`
	Requests []messageXML `xml:"request"`
	Events   []messageXML `xml:"event"`
}

type messageXML struct {
	Name  string   `xml:"name,attr"`
	Type  string   `xml:"type,attr"`
	Since string   `xml:"since,attr"`
	Args  []argXML `xml:"arg"`
}

type argXML struct {
	Name      string `xml:"name,attr"`
	Type      string `xml:"type,attr"`
	Interface string `xml:"interface,attr"`
	AllowNull string `xml:"allow-null,attr"`
}

// ParseXML reads the interfaces of a Wayland protocol XML document. All
// problems of the document are reported together.
func ParseXML(r io.Reader) ([]*Interface, error) {
	var doc protocolXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode protocol XML: %w", err)
	}

	var (
		errs   error
		ifaces []*Interface
	)
	for _, ix := range doc.Interfaces {
		iface, err := ix.convert()
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		ifaces = append(ifaces, iface)
	}
	if errs != nil {
		return nil, errs
	}
	return ifaces, nil
}

// LoadXML parses a protocol XML document and adds its interfaces to r.
func (r *Registry) LoadXML(rd io.Reader) ([]*Interface, error) {
	ifaces, err := ParseXML(rd)
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if err := r.Add(iface); err != nil {
			return nil, err
		}
	}
	return ifaces, nil
}

// LoadXMLFile is LoadXML for a file on disk.
func (r *Registry) LoadXMLFile(path string) ([]*Interface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return r.LoadXML(f)
}

func (ix interfaceXML) convert() (*Interface, error) {
	version, err := parseVersion(ix.Version)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", ix.Name, err)
	}

	iface := &Interface{Name: ix.Name, Version: version}

	var errs error
	for _, mx := range ix.Requests {
		if m, err := mx.convert(iface, true); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			iface.Requests = append(iface.Requests, m)
		}
	}
	for _, mx := range ix.Events {
		if m, err := mx.convert(iface, false); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			iface.Events = append(iface.Events, m)
		}
	}
	if errs != nil {
		return nil, errs
	}

	iface.finish()
	return iface, nil
}

func (mx messageXML) convert(iface *Interface, request bool) (Message, error) {
	m := Message{Name: mx.Name, Destructor: mx.Type == "destructor", Since: 1}

	if mx.Since != "" {
		v, err := parseVersion(mx.Since)
		if err != nil {
			return m, fmt.Errorf("%s.%s: %w", iface.Name, mx.Name, err)
		}
		if v > iface.Version {
			return m, fmt.Errorf("%s.%s: since %d exceeds interface version %d", iface.Name, mx.Name, v, iface.Version)
		}
		m.Since = v
	}

	for _, ax := range mx.Args {
		t, ok := parseArgType(ax.Type)
		if !ok {
			return m, fmt.Errorf("%s.%s: argument %s has unknown type %q", iface.Name, mx.Name, ax.Name, ax.Type)
		}
		if t == NewID && ax.Interface == "" && !request {
			return m, fmt.Errorf("%s.%s: events cannot carry untyped new_id arguments", iface.Name, mx.Name)
		}
		m.Args = append(m.Args, Arg{
			Name:      ax.Name,
			Type:      t,
			Interface: ax.Interface,
			AllowNull: ax.AllowNull == "true",
		})
	}
	return m, nil
}

func parseVersion(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return uint32(v), nil
}
