// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import "encoding/binary"

func opcodeOf(buf []byte) (Opcode, uint8) {
	return Opcode(buf[0] & 0x0F), buf[0] >> 4
}

func unknown(buf []byte) Unknown {
	raw := make([]byte, len(buf))
	copy(raw, buf)
	return Unknown{Raw: raw}
}

// DecodeRequest parses a host -> device packet. Decoding never fails: empty,
// truncated or unrecognized packets yield Unknown. Trailing bytes beyond the
// opcode's layout are ignored.
func DecodeRequest(buf []byte) Request {
	if len(buf) == 0 {
		return unknown(buf)
	}

	op, high := opcodeOf(buf)
	switch op {
	case OpGetVersion:
		return GetVersion{}
	case OpPing:
		if len(buf) < sizePing {
			break
		}
		return Ping{Payload: high, Version: buf[1]}
	case OpLed:
		return Led{On: high != 0}
	case OpSetParam:
		if len(buf) < sizeSetParam {
			break
		}
		return SetParam{Index: high, Value: binary.LittleEndian.Uint16(buf[1:])}
	case OpGetParam:
		return GetParam{Index: high}
	case OpEnableGenerator:
		if len(buf) < sizeEnableGenerator {
			break
		}
		return EnableGenerator{
			Index:  high,
			Period: buf[1],
			Value:  binary.LittleEndian.Uint16(buf[2:]),
			Step:   binary.LittleEndian.Uint16(buf[4:]),
			Bounce: buf[6],
		}
	case OpDisableGenerator:
		return DisableGenerator{Index: high}
	case OpStartGenerators:
		if len(buf) < sizeStartGenerators {
			break
		}
		return StartGenerators{FPS: buf[1]}
	case OpStopGenerators:
		return StopGenerators{}
	}
	return unknown(buf)
}

// DecodeResponse parses a device -> host packet with the same totality rules
// as DecodeRequest. A Params packet whose count exceeds MaxParams or the
// bytes present is Unknown.
func DecodeResponse(buf []byte) Response {
	if len(buf) == 0 {
		return unknown(buf)
	}

	op, high := opcodeOf(buf)
	switch op {
	case OpVersion:
		if len(buf) < sizeVersion {
			break
		}
		return Version{Major: buf[1], Minor: buf[2], Patch: buf[3]}
	case OpPong:
		if len(buf) < sizePong {
			break
		}
		return Pong{Payload: high, Version: buf[1]}
	case OpParam:
		if len(buf) < sizeParam {
			break
		}
		return Param{Index: high, Value: binary.LittleEndian.Uint16(buf[1:])}
	case OpParams:
		if len(buf) < sizeParamsHeader {
			break
		}
		count := int(buf[1])
		if count > MaxParams || len(buf) < sizeParamsHeader+2*count {
			break
		}
		values := make([]uint16, count)
		for i := range values {
			values[i] = binary.LittleEndian.Uint16(buf[sizeParamsHeader+2*i:])
		}
		return Params{Values: values}
	case OpError:
		if len(buf) < sizeError {
			break
		}
		return Error{Code: ErrorCode(high), Arg0: buf[1], Arg1: buf[2]}
	}
	return unknown(buf)
}
