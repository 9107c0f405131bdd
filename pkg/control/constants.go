// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package control implements the SM2M USB control channel codec.
//
// Every packet fits in one 64-byte USB transfer. The low nibble of the first
// byte is the opcode; the high nibble and the following bytes carry the
// payload packed as tightly as the opcode allows. Multi-byte values are
// little-endian. Requests travel from host to device, responses from device
// to host, and response opcodes mirror the request they answer.
package control

// Packet size limits
const (
	MaxPacketSize = 64
	MaxParams     = 12
)

// Opcode is the low nibble of the first packet byte.
type Opcode uint8

// Request opcodes (host -> device)
const (
	OpGetVersion       Opcode = 0x1
	OpPing             Opcode = 0x2
	OpLed              Opcode = 0x3
	OpSetParam         Opcode = 0x4
	OpGetParam         Opcode = 0x5
	OpEnableGenerator  Opcode = 0x6
	OpDisableGenerator Opcode = 0x7
	OpStartGenerators  Opcode = 0x8
	OpStopGenerators   Opcode = 0x9
)

// Response opcodes (device -> host)
const (
	OpVersion Opcode = 0x1
	OpPong    Opcode = 0x2
	OpParam   Opcode = 0x5
	OpParams  Opcode = 0xA
	OpError   Opcode = 0xE
)

// OpUnknown marks a packet whose opcode was not recognized.
const OpUnknown Opcode = 0xF

// ErrorCode is carried in the high nibble of an Error response.
type ErrorCode uint8

const (
	ErrorParamsOverflow ErrorCode = 0x1 // args: expected, received
	ErrorInvalidIndex   ErrorCode = 0x2 // args: index
)

// Packet sizes per opcode
const (
	sizeGetVersion       = 1
	sizePing             = 2
	sizeLed              = 1
	sizeSetParam         = 3
	sizeGetParam         = 1
	sizeEnableGenerator  = 7
	sizeDisableGenerator = 1
	sizeStartGenerators  = 2
	sizeStopGenerators   = 1

	sizeVersion      = 4
	sizePong         = 2
	sizeParam        = 3
	sizeParamsHeader = 2
	sizeError        = 3
)
