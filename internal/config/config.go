// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"gitlab.com/postmarketOS/gnss_rtk/internal/geo"
	"gitlab.com/postmarketOS/gnss_rtk/internal/ntrip"
)

const (
	DefaultBaudRate = 115200
	DefaultSource   = "gnss"
	// minimum interval between position reports to the caster, in ms
	MinIntervalMs = 1000
)

type Ntrip struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	Host       string  `toml:"host" yaml:"host"`
	Port       int     `toml:"port" yaml:"port"`
	Mountpoint string  `toml:"mountpoint" yaml:"mountpoint"`
	Username   string  `toml:"username" yaml:"username"`
	Password   string  `toml:"password" yaml:"password"`
	Latitude   float64 `toml:"latitude" yaml:"latitude"`
	Longitude  float64 `toml:"longitude" yaml:"longitude"`
	IntervalMs int     `toml:"interval_ms" yaml:"interval_ms"`
}

type Mqtt struct {
	Broker      string `toml:"broker" yaml:"broker"`
	ClientID    string `toml:"client_id" yaml:"client_id"`
	TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
}

type Config struct {
	DevicePath string `toml:"device_path" yaml:"device_path"`
	BaudRate   int    `toml:"device_baud_rate" yaml:"device_baud_rate"`
	// Source names the receiver in emitted observations.
	Source string `toml:"source" yaml:"source"`
	// Listen is the websocket stream address, disabled if empty.
	Listen string `toml:"listen" yaml:"listen"`
	// InitCommands are sent to the receiver before streaming starts.
	InitCommands []string `toml:"init_commands" yaml:"init_commands"`

	Ntrip Ntrip `toml:"ntrip" yaml:"ntrip"`
	Mqtt  Mqtt  `toml:"mqtt" yaml:"mqtt"`
}

// Parse reads a TOML config file, or YAML if the file name ends in .yaml or
// .yml. Unset values get their defaults and the result is validated.
func Parse(file string) (c *Config, err error) {
	contents, err := os.ReadFile(file)
	if err != nil {
		err = fmt.Errorf("config.Parse(): %w", err)
		return
	}

	c = &Config{}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(contents, c)
	default:
		err = toml.Unmarshal(contents, c)
	}
	if err != nil {
		return nil, fmt.Errorf("config.Parse(): %q: %w", file, err)
	}

	c.setDefaults()
	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("config.Parse(): %q: %w", file, err)
	}

	return
}

func (c *Config) setDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Ntrip.Port == 0 {
		c.Ntrip.Port = 2101
	}
	if c.Ntrip.IntervalMs == 0 {
		c.Ntrip.IntervalMs = MinIntervalMs
	}
}

func (c *Config) Validate() error {
	if c.DevicePath == "" {
		return fmt.Errorf("device_path is required")
	}
	if c.BaudRate < 0 {
		return fmt.Errorf("invalid device_baud_rate: %d", c.BaudRate)
	}
	if !c.Ntrip.Enabled {
		return nil
	}

	n := c.Ntrip
	if n.Host == "" {
		return fmt.Errorf("ntrip.host is required")
	}
	if n.Mountpoint == "" {
		return fmt.Errorf("ntrip.mountpoint is required")
	}
	if n.Port < 1 || n.Port > 65535 {
		return fmt.Errorf("invalid ntrip.port: %d", n.Port)
	}
	if n.IntervalMs < MinIntervalMs {
		return fmt.Errorf("ntrip.interval_ms must be at least %d, got %d", MinIntervalMs, n.IntervalMs)
	}
	if n.Latitude < -90 || n.Latitude > 90 || n.Longitude < -180 || n.Longitude > 180 {
		return fmt.Errorf("invalid ntrip position: %f, %f", n.Latitude, n.Longitude)
	}
	return nil
}

// NtripOptions returns the session options for the configured caster. The
// rover position is reported at zero height.
func (c *Config) NtripOptions() ntrip.Options {
	n := c.Ntrip
	return ntrip.Options{
		Host:       n.Host,
		Port:       n.Port,
		Mountpoint: n.Mountpoint,
		Username:   n.Username,
		Password:   n.Password,
		Position:   geo.GeodeticToECEF(n.Latitude, n.Longitude, 0),
		Interval:   time.Duration(n.IntervalMs) * time.Millisecond,
	}
}
