// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

// NewPing creates a PING request (0x2). Only the low 4 bits of payload are
// transmitted.
func NewPing(payload, version uint8) Ping {
	return Ping{Payload: payload & 0x0F, Version: version}
}

// NewPong creates the PONG answering ping (0x2).
func NewPong(ping Ping) Pong {
	return Pong{Payload: ping.Payload, Version: ping.Version + 1}
}

// NewLed creates a LED request (0x3).
func NewLed(on bool) Led {
	return Led{On: on}
}

// NewSetParam creates a SET_PARAM request (0x4). The index is kept as given
// so ValidatePacket can reject it when out of range.
func NewSetParam(index uint8, value uint16) SetParam {
	return SetParam{Index: index, Value: value}
}

// NewGetParam creates a GET_PARAM request (0x5).
func NewGetParam(index uint8) GetParam {
	return GetParam{Index: index}
}

// NewEnableGenerator creates an ENABLE_GENERATOR request (0x6).
func NewEnableGenerator(index, period uint8, value, step uint16, bounce uint8) EnableGenerator {
	return EnableGenerator{
		Index:  index,
		Period: period,
		Value:  value,
		Step:   step,
		Bounce: bounce,
	}
}

// NewDisableGenerator creates a DISABLE_GENERATOR request (0x7).
func NewDisableGenerator(index uint8) DisableGenerator {
	return DisableGenerator{Index: index}
}

// NewStartGenerators creates a START_GENERATORS request (0x8).
func NewStartGenerators(fps uint8) StartGenerators {
	return StartGenerators{FPS: fps}
}

// NewParams creates a PARAMS response (0xA). More than MaxParams values yield
// an ERROR response with code ParamsOverflow instead.
func NewParams(values []uint16) Response {
	if len(values) > MaxParams {
		received := len(values)
		if received > 0xFF {
			received = 0xFF
		}
		return NewError(ErrorParamsOverflow, MaxParams, uint8(received))
	}
	out := make([]uint16, len(values))
	copy(out, values)
	return Params{Values: out}
}

// NewInvalidIndex creates an ERROR response (0xE) for an out of range
// parameter index.
func NewInvalidIndex(index uint8) Error {
	return NewError(ErrorInvalidIndex, index, 0)
}

// NewError creates an ERROR response (0xE).
func NewError(code ErrorCode, arg0, arg1 uint8) Error {
	return Error{Code: code & 0x0F, Arg0: arg0, Arg1: arg1}
}
