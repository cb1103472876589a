// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mahkoh/wl-proxy-sub010/pkg/capture"
	"github.com/mahkoh/wl-proxy-sub010/pkg/storage"
)

// openCapture opens a capture file, "-" reads stdin.
func openCapture(input string) (*capture.Reader, error) {
	if input == "-" {
		return capture.NewReader(os.Stdin)
	}
	return capture.Open(input)
}

// showCapture for the "show" CLI option.
func showCapture(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	r, err := openCapture(args[0])
	if err != nil {
		printFatal(err, "Opening capture errored")
	}
	defer r.Close()

	if err := printRecords(os.Stdout, r); err != nil {
		printFatal(err, "Reading capture errored")
	}
}

// printRecords writes one line per Record until the Reader is exhausted.
func printRecords(w io.Writer, r *capture.Reader) error {
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, rec.String()); err != nil {
			return err
		}
	}
}

// importCapture for the "import" CLI option.
func importCapture(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	r, err := openCapture(args[0])
	if err != nil {
		printFatal(err, "Opening capture errored")
	}
	defer r.Close()

	store, err := storage.NewStore(args[1])
	if err != nil {
		printFatal(err, "Opening store errored")
	}

	n, err := store.Import(r)
	if closeErr := store.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		printFatal(err, "Importing capture errored")
	}
	fmt.Printf("Imported %d messages\n", n)
}
