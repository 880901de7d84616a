// Package capture journals the datagrams received from a Tellstick Net.
//
// Every datagram the session delivers is stored in the SQLite packets
// table together with its decoded event or decode error. The journal backs
// the HTTP packets endpoint and is pruned to the configured retention.
//
// The package also defines the replayable text form used by the raw and
// parse commands: one datagram per line, prefixed by its RFC 3339 receive
// time.
//
//	2026-10-17T08:30:00Z 7:RawDatah5:class6:sensor8:protocol8:mandolyn...
//
// Replay decodes such lines offline with the same protocol registry the
// session uses, so captured traffic can be re-examined after decoder
// changes.
package capture
