// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package gnss talks to a GNSS receiver over a serial line: it streams the
// receiver's sentences, writes correction data to it and sends configuration
// commands.
package gnss

import "io"

// Driver is a source of receiver sentences that also accepts correction data.
type Driver interface {
	io.Writer

	Start(lines chan<- string, stop <-chan bool, errCh chan<- error)
}
