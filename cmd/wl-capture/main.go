// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// wl-capture inspects capture files and stores written by wl-proxyd.
package main

import (
	"fmt"
	"os"
)

// printUsage of wl-capture and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s show|import|query|prune:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s show -|filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints every message of a capture file, one per line.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s import filename store\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Appends all messages of a capture file to the store directory.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s query store [interface name | client source id | since duration]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the stored messages, optionally only those of one interface, one\n")
	_, _ = fmt.Fprintf(os.Stderr, "  client or the given duration up to now.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s prune store duration\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Deletes stored messages older than the duration, e.g. 24h.\n\n")

	os.Exit(1)
}

// printFatal of an error with a short context description and exits afterwards.
func printFatal(err error, msg string) {
	_, _ = fmt.Fprintf(os.Stderr, "%s errored: %s\n  %v\n", os.Args[0], msg, err)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "show":
		showCapture(os.Args[2:])

	case "import":
		importCapture(os.Args[2:])

	case "query":
		queryStore(os.Args[2:])

	case "prune":
		pruneStore(os.Args[2:])

	default:
		printUsage()
	}
}
