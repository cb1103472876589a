// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/mahkoh/wl-proxy-sub010/pkg/protocol"
	"github.com/mahkoh/wl-proxy-sub010/pkg/proxy"
)

const defaultMaxTries = 100

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core    coreConf
	Logging logConf
	Filter  []filterConf
	Capture captureConf
	Monitor monitorConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Display         string
	MaxTries        uint32 `toml:"max-tries"`
	MaxClientBuffer int    `toml:"max-client-buffer"`
	Trace           bool
	TracePrefix     string `toml:"trace-prefix"`
	// Protocols are XML files or glob patterns of interfaces beyond the
	// core protocol. Globals of unknown interfaces are hidden from clients.
	Protocols []string
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// filterConf describes one wl_registry filter.
type filterConf struct {
	Interface  string
	Hide       bool
	MaxVersion uint32 `toml:"max-version"`
}

// captureConf describes the Capture-configuration block.
type captureConf struct {
	File  string
	Store string
}

// monitorConf describes the Monitor-configuration block.
type monitorConf struct {
	Listen string
}

// parseConfig reads and validates a configuration file.
func parseConfig(filename string) (conf tomlConfig, err error) {
	md, err := toml.DecodeFile(filename, &conf)
	if err != nil {
		return
	}

	if conf.Core.MaxTries == 0 {
		conf.Core.MaxTries = defaultMaxTries
	}
	if !md.IsDefined("core", "max-client-buffer") {
		conf.Core.MaxClientBuffer = proxy.DefaultMaxClientBuffer
	}

	err = conf.validate()
	return
}

// validate collects every problem of the configuration.
func (conf tomlConfig) validate() error {
	var errs error

	if conf.Core.MaxClientBuffer < 0 {
		errs = multierror.Append(errs, fmt.Errorf("core.max-client-buffer must not be negative"))
	}

	if conf.Logging.Level != "" {
		if _, err := log.ParseLevel(conf.Logging.Level); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}
	switch conf.Logging.Format {
	case "", "text", "json":
	default:
		errs = multierror.Append(errs, fmt.Errorf("logging.format: unknown format %q", conf.Logging.Format))
	}

	seen := make(map[string]bool)
	for i, f := range conf.Filter {
		if f.Interface == "" {
			errs = multierror.Append(errs, fmt.Errorf("filter %d: interface is empty", i))
		} else if seen[f.Interface] {
			errs = multierror.Append(errs, fmt.Errorf("filter %d: duplicate interface %s", i, f.Interface))
		}
		seen[f.Interface] = true

		if f.Hide && f.MaxVersion != 0 {
			errs = multierror.Append(errs, fmt.Errorf("filter %d: hide and max-version are exclusive", i))
		}
	}

	if conf.Monitor.Listen != "" {
		if _, _, err := net.SplitHostPort(conf.Monitor.Listen); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("monitor.listen: %w", err))
		}
	}

	return errs
}

// registry loads the core interfaces and all configured protocol files.
func (conf tomlConfig) registry() (*protocol.Registry, error) {
	registry := protocol.Core()

	var errs error
	for _, pattern := range conf.Core.Protocols {
		files, err := filepath.Glob(pattern)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("core.protocols: %w", err))
			continue
		}
		if len(files) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("core.protocols: %s matches no files", pattern))
			continue
		}
		for _, file := range files {
			if _, err := registry.LoadXMLFile(file); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("core.protocols: %s: %w", file, err))
			}
		}
	}
	if errs != nil {
		return nil, errs
	}

	for _, f := range conf.Filter {
		if _, ok := registry.Lookup(f.Interface); !ok {
			log.WithField("interface", f.Interface).Warn("Filter names an interface that is not loaded")
		}
	}
	return registry, nil
}

// filters converts the filter blocks.
func (conf tomlConfig) filters() []proxy.GlobalFilter {
	filters := make([]proxy.GlobalFilter, 0, len(conf.Filter))
	for _, f := range conf.Filter {
		filters = append(filters, proxy.GlobalFilter{
			Interface:  f.Interface,
			Hide:       f.Hide,
			MaxVersion: f.MaxVersion,
		})
	}
	return filters
}

// applyLogging configures the standard logger.
func applyLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}
