// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mahkoh/wl-proxy-sub010/pkg/storage"
)

// query selects RecordItems from a Store.
type query func(s *storage.Store) ([]storage.RecordItem, error)

// parseQuery turns the arguments after the store directory into a query.
func parseQuery(args []string, now time.Time) (query, error) {
	switch {
	case len(args) == 0:
		return (*storage.Store).QueryAll, nil

	case len(args) == 2 && args[0] == "interface":
		iface := args[1]
		return func(s *storage.Store) ([]storage.RecordItem, error) {
			return s.QueryInterface(iface)
		}, nil

	case len(args) == 3 && args[0] == "client":
		source := args[1]
		client, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid client id %q: %w", args[2], err)
		}
		return func(s *storage.Store) ([]storage.RecordItem, error) {
			return s.QueryClient(source, client)
		}, nil

	case len(args) == 2 && args[0] == "since":
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return nil, err
		}
		from := now.Add(-d)
		return func(s *storage.Store) ([]storage.RecordItem, error) {
			return s.QueryRange(from, now)
		}, nil

	default:
		return nil, fmt.Errorf("unknown query %v", args)
	}
}

// queryStore for the "query" CLI option.
func queryStore(args []string) {
	if len(args) < 1 {
		printUsage()
	}

	q, err := parseQuery(args[1:], time.Now())
	if err != nil {
		printFatal(err, "Parsing query errored")
	}

	store, err := storage.NewStore(args[0])
	if err != nil {
		printFatal(err, "Opening store errored")
	}
	defer store.Close()

	ris, err := q(store)
	if err != nil {
		printFatal(err, "Querying store errored")
	}
	if err := printItems(os.Stdout, ris); err != nil {
		printFatal(err, "Printing messages errored")
	}
}

func printItems(w io.Writer, ris []storage.RecordItem) error {
	for _, ri := range ris {
		if _, err := fmt.Fprintf(w, "%6d %s\n", ri.Id, ri.Record()); err != nil {
			return err
		}
	}
	return nil
}

// pruneStore for the "prune" CLI option.
func pruneStore(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	d, err := time.ParseDuration(args[1])
	if err != nil {
		printFatal(err, "Parsing duration errored")
	}

	store, err := storage.NewStore(args[0])
	if err != nil {
		printFatal(err, "Opening store errored")
	}
	defer store.Close()

	if err := store.DeleteBefore(time.Now().Add(-d)); err != nil {
		printFatal(err, "Pruning store errored")
	}
}
