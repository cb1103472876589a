// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package capture records the messages seen by a proxy.
//
// A Record is the serializable form of a proxy.TraceRecord. Records are
// CBOR encoded and written to xz compressed capture files, where each record
// is guarded by a CRC16. A Recorder is a proxy.Tracer that passes records to
// a Sink without blocking the dispatch loop.
package capture
