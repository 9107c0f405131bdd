// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import (
	"fmt"
	"strings"
)

// OpcodeName returns the human-readable name of a packet's message type.
// Request and response opcodes overlap, so the name is chosen by packet type.
func OpcodeName(p Packet) string {
	switch p.(type) {
	// Requests
	case GetVersion:
		return "GET_VERSION"
	case Ping:
		return "PING"
	case Led:
		return "LED"
	case SetParam:
		return "SET_PARAM"
	case GetParam:
		return "GET_PARAM"
	case EnableGenerator:
		return "ENABLE_GENERATOR"
	case DisableGenerator:
		return "DISABLE_GENERATOR"
	case StartGenerators:
		return "START_GENERATORS"
	case StopGenerators:
		return "STOP_GENERATORS"

	// Responses
	case Version:
		return "VERSION"
	case Pong:
		return "PONG"
	case Param:
		return "PARAM"
	case Params:
		return "PARAMS"
	case Error:
		return "ERROR"

	default:
		return "UNKNOWN"
	}
}

// ErrorCodeName returns the human-readable name of an error code.
func ErrorCodeName(code ErrorCode) string {
	switch code {
	case ErrorParamsOverflow:
		return "PARAMS_OVERFLOW"
	case ErrorInvalidIndex:
		return "INVALID_INDEX"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR(0x%X)", uint8(code))
	}
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	return ErrorCodeName(c)
}

// FormatPacket formats a packet into a single human-readable line.
func FormatPacket(p Packet) string {
	name := OpcodeName(p)
	switch v := p.(type) {
	case GetVersion, StopGenerators:
		return name
	case Ping:
		return fmt.Sprintf("%s payload=%d version=%d", name, v.Payload, v.Version)
	case Led:
		state := "off"
		if v.On {
			state = "on"
		}
		return fmt.Sprintf("%s %s", name, state)
	case SetParam:
		return fmt.Sprintf("%s index=%d value=%d (0x%04X)", name, v.Index, v.Value, v.Value)
	case GetParam:
		return fmt.Sprintf("%s index=%d", name, v.Index)
	case EnableGenerator:
		return fmt.Sprintf("%s index=%d value=%d period=%d step=%d bounce=%d",
			name, v.Index, v.Value, v.Period, v.Step, v.Bounce)
	case DisableGenerator:
		return fmt.Sprintf("%s index=%d", name, v.Index)
	case StartGenerators:
		return fmt.Sprintf("%s fps=%d", name, v.FPS)
	case Version:
		return fmt.Sprintf("%s %s", name, v)
	case Pong:
		return fmt.Sprintf("%s payload=%d version=%d", name, v.Payload, v.Version)
	case Param:
		return fmt.Sprintf("%s index=%d value=%d (0x%04X)", name, v.Index, v.Value, v.Value)
	case Params:
		return fmt.Sprintf("%s count=%d %s", name, len(v.Values), FormatValues(v.Values))
	case Error:
		switch v.Code {
		case ErrorParamsOverflow:
			return fmt.Sprintf("%s %s expected=%d received=%d", name, v.Code, v.Arg0, v.Arg1)
		case ErrorInvalidIndex:
			return fmt.Sprintf("%s %s index=%d", name, v.Code, v.Arg0)
		}
		return fmt.Sprintf("%s %s args=[%d %d]", name, v.Code, v.Arg0, v.Arg1)
	case Unknown:
		return fmt.Sprintf("%s opcode=0x%X raw=% X", name, uint8(v.RawOpcode()), v.Raw)
	}
	return name
}

// FormatValues renders parameter values as a bracketed hex list.
func FormatValues(values []uint16) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%04X", v)
	}
	b.WriteByte(']')
	return b.String()
}
