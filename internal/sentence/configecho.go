// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package sentence

import (
	"strings"

	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
)

// ConfigEntries maps receiver configuration parameters to their last
// reported value.
type ConfigEntries map[string]string

func (c ConfigEntries) copy() ConfigEntries {
	out := make(ConfigEntries, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// configEcho accumulates the receiver's replies to the CONFIG command, e.g.
// "$CONFIG,COM1,CONFIG COM1 115200*23". Keys are never removed.
type configEcho struct {
	entries ConfigEntries
}

func (c *configEcho) parse(r Record) []observation.PathValue {
	if len(r.Fields) < 2 {
		return nil
	}

	text := strings.Join(r.Fields[1:], ",")
	words := strings.Fields(strings.TrimPrefix(strings.TrimSpace(text), "CONFIG "))
	if len(words) < 2 {
		return nil
	}

	key := strings.Join(words[:len(words)-1], " ")
	c.entries[key] = words[len(words)-1]

	return []observation.PathValue{
		{Path: PathReceiverConfig, Value: c.entries.copy()},
	}
}
