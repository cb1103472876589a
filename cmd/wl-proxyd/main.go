// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}
	applyLogging(conf.Logging)

	d, err := newDaemon(conf)
	if err != nil {
		log.WithError(err).Fatal("Failed to start")
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println(d.proxy.Display())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.proxy.Run(ctx, d.configure, d.setup)
	})
	if d.recorder != nil {
		g.Go(func() error {
			return d.recorder.Run(ctx)
		})
	}
	if d.monitor != nil {
		g.Go(func() error {
			return d.monitor.Serve(ctx, conf.Monitor.Listen)
		})
	}
	g.Go(func() error {
		return watchConfig(ctx, os.Args[1], d.reload)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Stopped with error")
	}
	log.Info("Shutting down..")
}
