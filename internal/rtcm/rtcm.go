// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rtcm finds RTCM version 3 frames in a correction stream and decodes
// the reference station messages (1005 and 1006). Other message types are
// returned undecoded.
package rtcm

import (
	"errors"
	"fmt"
)

const (
	preamble = 0xD3
	// header is preamble + 6 reserved bits + 10 bit length
	headerLen = 3
	crcLen    = 3

	// ARP coordinates are in units of 0.1 mm
	ARPScale = 10000
)

var (
	ErrNoFrame    = errors.New("rtcm: no frame found")
	ErrShortFrame = errors.New("rtcm: incomplete frame")
)

// Frame is a message of a type this package does not decode.
type Frame struct {
	Type    int
	Payload []byte
}

// StationARP is the antenna reference point of a reference station, from
// message 1005 or 1006.
type StationARP struct {
	Type      int
	Station   int
	ITRFYear  int
	X, Y, Z   int64 // 0.1 mm
	AntHeight int64 // 0.1 mm, 1006 only
}

func (s StationARP) StationID() int {
	return s.Station
}

func (s StationARP) ARP() (x, y, z int64) {
	return s.X, s.Y, s.Z
}

func (s StationARP) Scale() float64 {
	return ARPScale
}

type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode returns the first valid message in buf and the number of bytes up
// to and including it. Bytes before the frame that can't start a frame are
// skipped. If no complete frame is found but one may run past the end of buf,
// Decode returns ErrShortFrame with n set to where that frame starts.
func (d *Decoder) Decode(buf []byte) (msg any, n int, err error) {
	short := -1
	for i := 0; i < len(buf); i++ {
		if buf[i] != preamble {
			continue
		}
		if len(buf)-i < headerLen {
			if short < 0 {
				short = i
			}
			continue
		}
		// 6 reserved bits must be zero
		if getBitU(buf[i:], 8, 6) != 0 {
			continue
		}
		length := int(getBitU(buf[i:], 14, 10))
		end := i + headerLen + length + crcLen
		if end > len(buf) {
			// may be a stray preamble byte, keep looking
			if short < 0 {
				short = i
			}
			continue
		}

		frame := buf[i:end]
		if !checkCRC(frame) {
			continue
		}

		m, decodeErr := decodePayload(frame[headerLen : headerLen+length])
		if decodeErr != nil {
			return nil, end, decodeErr
		}
		return m, end, nil
	}
	if short >= 0 {
		return nil, short, ErrShortFrame
	}
	return nil, len(buf), ErrNoFrame
}

func decodePayload(payload []byte) (any, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("rtcm: payload too short for message type")
	}

	msgType := int(getBitU(payload, 0, 12))
	switch msgType {
	case 1005, 1006:
		return decodeStationARP(msgType, payload)
	}
	return Frame{Type: msgType, Payload: payload}, nil
}

// see RTKLIB decode_type1005/1006 for the layout
func decodeStationARP(msgType int, payload []byte) (StationARP, error) {
	want := 19
	if msgType == 1006 {
		want = 21
	}
	if len(payload) < want {
		return StationARP{}, fmt.Errorf("rtcm: message %d length %d, expected %d", msgType, len(payload), want)
	}

	s := StationARP{Type: msgType}
	i := 12
	s.Station = int(getBitU(payload, i, 12))
	i += 12
	s.ITRFYear = int(getBitU(payload, i, 6))
	i += 6 + 4
	s.X = getBitS(payload, i, 38)
	i += 38 + 2
	s.Y = getBitS(payload, i, 38)
	i += 38 + 2
	s.Z = getBitS(payload, i, 38)
	i += 38
	if msgType == 1006 {
		s.AntHeight = int64(getBitU(payload, i, 16))
	}

	return s, nil
}

func getBitU(buf []byte, pos int, n int) uint64 {
	var v uint64
	for i := pos; i < pos+n; i++ {
		v = v<<1 | uint64(buf[i/8]>>(7-uint(i%8))&1)
	}
	return v
}

// getBitS reads n bits as a two's complement number.
func getBitS(buf []byte, pos int, n int) int64 {
	v := getBitU(buf, pos, n)
	if v&(1<<uint(n-1)) != 0 {
		return int64(v) - int64(1)<<uint(n)
	}
	return int64(v)
}
