// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import "encoding/binary"

// Encode serializes a packet into a new buffer.
func Encode(p Packet) []byte {
	return AppendEncode(make([]byte, 0, p.Size()), p)
}

// AppendEncode appends the wire form of p to dst.
func AppendEncode(dst []byte, p Packet) []byte {
	return p.appendTo(dst)
}

func header(op Opcode, high uint8) byte {
	return byte(op)&0x0F | (high&0x0F)<<4
}

func boolNibble(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Requests

func (GetVersion) appendTo(dst []byte) []byte {
	return append(dst, header(OpGetVersion, 0))
}

func (p Ping) appendTo(dst []byte) []byte {
	return append(dst, header(OpPing, p.Payload), p.Version)
}

func (p Led) appendTo(dst []byte) []byte {
	return append(dst, header(OpLed, boolNibble(p.On)))
}

func (p SetParam) appendTo(dst []byte) []byte {
	dst = append(dst, header(OpSetParam, p.Index))
	return binary.LittleEndian.AppendUint16(dst, p.Value)
}

func (p GetParam) appendTo(dst []byte) []byte {
	return append(dst, header(OpGetParam, p.Index))
}

func (p EnableGenerator) appendTo(dst []byte) []byte {
	dst = append(dst, header(OpEnableGenerator, p.Index), p.Period)
	dst = binary.LittleEndian.AppendUint16(dst, p.Value)
	dst = binary.LittleEndian.AppendUint16(dst, p.Step)
	return append(dst, p.Bounce)
}

func (p DisableGenerator) appendTo(dst []byte) []byte {
	return append(dst, header(OpDisableGenerator, p.Index))
}

func (p StartGenerators) appendTo(dst []byte) []byte {
	return append(dst, header(OpStartGenerators, 0), p.FPS)
}

func (StopGenerators) appendTo(dst []byte) []byte {
	return append(dst, header(OpStopGenerators, 0))
}

// Responses

func (p Version) appendTo(dst []byte) []byte {
	return append(dst, header(OpVersion, 0), p.Major, p.Minor, p.Patch)
}

func (p Pong) appendTo(dst []byte) []byte {
	return append(dst, header(OpPong, p.Payload), p.Version)
}

func (p Param) appendTo(dst []byte) []byte {
	dst = append(dst, header(OpParam, p.Index))
	return binary.LittleEndian.AppendUint16(dst, p.Value)
}

// Params beyond MaxParams are not encoded.
func (p Params) appendTo(dst []byte) []byte {
	values := p.Values
	if len(values) > MaxParams {
		values = values[:MaxParams]
	}
	dst = append(dst, header(OpParams, 0), byte(len(values)))
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}

func (p Error) appendTo(dst []byte) []byte {
	return append(dst, header(OpError, uint8(p.Code)), p.Arg0, p.Arg1)
}

func (p Unknown) appendTo(dst []byte) []byte {
	return append(dst, p.Raw...)
}
