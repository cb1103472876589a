// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
	"github.com/mahkoh/wl-proxy-sub010/pkg/monitor"
	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
	"github.com/mahkoh/wl-proxy-sub010/pkg/storage"
)

// daemon bundles the proxy with its optional capture and monitor outputs.
type daemon struct {
	core     coreConf
	registry *protocol.Registry

	proxy    *proxy.SimpleProxy
	filter   atomic.Pointer[proxy.RegistryFilter]
	writer   *capture.Writer
	store    *storage.Store
	recorder *capture.Recorder
	monitor  *monitor.Monitor
}

func newDaemon(conf tomlConfig) (d *daemon, err error) {
	d = &daemon{core: conf.Core}
	d.filter.Store(proxy.NewRegistryFilter(conf.filters()...))

	defer func() {
		if err != nil {
			d.close()
			d = nil
		}
	}()

	if d.registry, err = conf.registry(); err != nil {
		return
	}

	var sinks capture.MultiSink
	if conf.Capture.File != "" {
		if d.writer, err = capture.Create(conf.Capture.File); err != nil {
			return
		}
		sinks = append(sinks, d.writer)
	}
	if conf.Capture.Store != "" {
		if d.store, err = storage.NewStore(conf.Capture.Store); err != nil {
			return
		}
		sinks = append(sinks, d.store)
	}
	if len(sinks) > 0 {
		d.recorder = capture.NewRecorder(sinks, capture.DefaultBuffer)
	}

	if conf.Monitor.Listen != "" {
		d.monitor = monitor.New(monitor.DefaultHistory)
	}

	d.proxy, err = proxy.NewSimpleProxyWithMaxTries(conf.Core.MaxTries)
	return
}

// configure prepares the Builder of each new State.
func (d *daemon) configure(b *proxy.Builder) {
	if d.core.TracePrefix != "" {
		b.WithLogPrefix(d.core.TracePrefix + "-" + b.LogPrefix())
	}
	if d.core.Display != "" {
		b.WithServerDisplayName(d.core.Display)
	}
	if d.registry != nil {
		b.WithRegistry(d.registry)
	}
	b.WithMaxClientBuffer(d.core.MaxClientBuffer).WithLogging(d.core.Trace)

	source := b.LogPrefix()
	if d.recorder != nil {
		b.WithTracer(d.recorder.Tracer(source))
	}
	if d.monitor != nil {
		b.WithTracer(d.monitor.Tracer(source))
	}
}

// setup installs the current registry filter on a new client.
func (d *daemon) setup(c *proxy.Client) {
	d.filter.Load().Install(c)

	if d.monitor == nil {
		return
	}
	source := c.State().Name()
	d.monitor.ClientConnected(source)
	c.SetHandler(proxy.ClientHandlerFunc(func(*proxy.Client) {
		d.monitor.ClientDisconnected(source)
	}))
}

// reload applies the parts of a changed configuration that do not need a
// restart. Connected clients keep their filter.
func (d *daemon) reload(conf tomlConfig) {
	applyLogging(conf.Logging)
	d.filter.Store(proxy.NewRegistryFilter(conf.filters()...))

	log.WithField("filters", len(conf.Filter)).Info("Reloaded configuration")
}

func (d *daemon) close() {
	var errs error
	if d.proxy != nil {
		if err := d.proxy.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if d.writer != nil {
		if err := d.writer.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		log.WithError(errs).Warn("Errors while shutting down")
	}
}
