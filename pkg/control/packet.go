// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import "fmt"

// Packet is any control channel message.
type Packet interface {
	// Opcode returns the packet's opcode nibble.
	Opcode() Opcode
	// Size returns the encoded length in bytes.
	Size() int
	appendTo(dst []byte) []byte
}

// Request is a host -> device packet.
type Request interface {
	Packet
	isRequest()
}

// Response is a device -> host packet.
type Response interface {
	Packet
	isResponse()
}

// ============================================================
// Requests
// ============================================================

// GetVersion asks the device for its firmware version.
type GetVersion struct{}

// Ping checks the link. The device answers with a Pong carrying the same
// payload and Version+1.
type Ping struct {
	Payload uint8 // 4 bits
	Version uint8
}

// Led switches the board LED.
type Led struct {
	On bool
}

// SetParam overrides one parameter value.
type SetParam struct {
	Index uint8 // 4 bits
	Value uint16
}

// GetParam reads one parameter value.
type GetParam struct {
	Index uint8 // 4 bits
}

// EnableGenerator configures the generator behind one parameter.
type EnableGenerator struct {
	Index  uint8 // 4 bits
	Period uint8
	Value  uint16
	Step   uint16
	Bounce uint8
}

// DisableGenerator removes the generator behind one parameter.
type DisableGenerator struct {
	Index uint8 // 4 bits
}

// StartGenerators begins frame emission at FPS frames per second.
type StartGenerators struct {
	FPS uint8
}

// StopGenerators halts frame emission.
type StopGenerators struct{}

func (GetVersion) Opcode() Opcode       { return OpGetVersion }
func (Ping) Opcode() Opcode             { return OpPing }
func (Led) Opcode() Opcode              { return OpLed }
func (SetParam) Opcode() Opcode         { return OpSetParam }
func (GetParam) Opcode() Opcode         { return OpGetParam }
func (EnableGenerator) Opcode() Opcode  { return OpEnableGenerator }
func (DisableGenerator) Opcode() Opcode { return OpDisableGenerator }
func (StartGenerators) Opcode() Opcode  { return OpStartGenerators }
func (StopGenerators) Opcode() Opcode   { return OpStopGenerators }

func (GetVersion) Size() int       { return sizeGetVersion }
func (Ping) Size() int             { return sizePing }
func (Led) Size() int              { return sizeLed }
func (SetParam) Size() int         { return sizeSetParam }
func (GetParam) Size() int         { return sizeGetParam }
func (EnableGenerator) Size() int  { return sizeEnableGenerator }
func (DisableGenerator) Size() int { return sizeDisableGenerator }
func (StartGenerators) Size() int  { return sizeStartGenerators }
func (StopGenerators) Size() int   { return sizeStopGenerators }

func (GetVersion) isRequest()       {}
func (Ping) isRequest()             {}
func (Led) isRequest()              {}
func (SetParam) isRequest()         {}
func (GetParam) isRequest()         {}
func (EnableGenerator) isRequest()  {}
func (DisableGenerator) isRequest() {}
func (StartGenerators) isRequest()  {}
func (StopGenerators) isRequest()   {}

// ============================================================
// Responses
// ============================================================

// Version reports the firmware version.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// Pong answers a Ping.
type Pong struct {
	Payload uint8 // 4 bits
	Version uint8
}

// Param carries one parameter value.
type Param struct {
	Index uint8 // 4 bits
	Value uint16
}

// Params carries a full decoded frame.
type Params struct {
	Values []uint16
}

// Error reports a device-side failure. The meaning of the arguments depends
// on the code.
type Error struct {
	Code ErrorCode // 4 bits
	Arg0 uint8
	Arg1 uint8
}

func (Version) Opcode() Opcode { return OpVersion }
func (Pong) Opcode() Opcode    { return OpPong }
func (Param) Opcode() Opcode   { return OpParam }
func (Params) Opcode() Opcode  { return OpParams }
func (Error) Opcode() Opcode   { return OpError }

func (Version) Size() int  { return sizeVersion }
func (Pong) Size() int     { return sizePong }
func (Param) Size() int    { return sizeParam }
func (p Params) Size() int { return sizeParamsHeader + 2*len(p.Values) }
func (Error) Size() int    { return sizeError }

func (Version) isResponse() {}
func (Pong) isResponse()    {}
func (Param) isResponse()   {}
func (Params) isResponse()  {}
func (Error) isResponse()   {}

// String returns the version as major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ============================================================
// Unknown
// ============================================================

// Unknown is produced for packets that are empty, truncated or carry an
// unrecognized opcode. It is both a Request and a Response so decoding never
// fails. Raw holds a copy of the offending bytes.
type Unknown struct {
	Raw []byte
}

// Opcode returns OpUnknown.
func (Unknown) Opcode() Opcode { return OpUnknown }

// Size returns the length of the raw bytes.
func (u Unknown) Size() int { return len(u.Raw) }

// RawOpcode returns the opcode nibble of the raw bytes, or OpUnknown for an
// empty packet.
func (u Unknown) RawOpcode() Opcode {
	if len(u.Raw) == 0 {
		return OpUnknown
	}
	return Opcode(u.Raw[0] & 0x0F)
}

func (Unknown) isRequest()  {}
func (Unknown) isResponse() {}
