// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ntrip

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"strings"
	"time"

	"gitlab.com/postmarketOS/gnss_rtk/internal/geo"
	"gitlab.com/postmarketOS/gnss_rtk/internal/nmea"
)

const (
	userAgent        = "NTRIP gnss_rtk/1.0"
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

func request(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET /%s HTTP/1.0\r\n", strings.TrimPrefix(opts.Mountpoint, "/"))
	fmt.Fprintf(&b, "Host: %s\r\n", opts.Host)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	if opts.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		fmt.Fprintf(&b, "Authorization: Basic %s\r\n", auth)
	}
	b.WriteString("\r\n")
	return b.String()
}

// handshake requests the mountpoint and returns a reader positioned at the
// start of the correction data. Casters answer either "ICY 200 OK" (NTRIP
// 1.0) or a regular HTTP response.
func handshake(conn net.Conn, opts Options) (io.Reader, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := io.WriteString(conn, request(opts)); err != nil {
		return nil, fmt.Errorf("ntrip.handshake(): %w", err)
	}

	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("ntrip.handshake(): %w", err)
	}
	status := strings.TrimSpace(line)

	if strings.HasPrefix(status, "ICY 200") {
		return br, nil
	}

	fields := strings.Fields(status)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") || fields[1] != "200" {
		return nil, fmt.Errorf("ntrip.handshake(): caster refused mountpoint %q: %q", opts.Mountpoint, status)
	}

	chunked := false
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("ntrip.handshake(): %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Transfer-Encoding") &&
			strings.EqualFold(strings.TrimSpace(value), "chunked") {
			chunked = true
		}
	}

	if chunked {
		return httputil.NewChunkedReader(br), nil
	}
	return br, nil
}

// report sends the rover position to the caster as a GGA sentence.
func report(conn net.Conn, pos geo.ECEF, now time.Time) error {
	g := geo.ECEFToGeodetic(pos)
	gga := nmea.GGA(now, g.Latitude, g.Longitude, g.Height).String() + "\r\n"

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(conn, gga); err != nil {
		return fmt.Errorf("ntrip.report(): %w", err)
	}
	return nil
}
