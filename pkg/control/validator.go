// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyInvalidIndex AnomalyType = iota
	AnomalyInvalidValue
	AnomalyLengthMismatch
	AnomalyUnknownOpcode
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks a decoded packet for values the device would reject
// or that are suspicious. Returns an empty slice for a valid packet.
func ValidatePacket(p Packet) []ValidationError {
	errors := []ValidationError{}

	switch v := p.(type) {
	case SetParam:
		errors = append(errors, validateIndex("SET_PARAM", v.Index)...)
	case GetParam:
		errors = append(errors, validateIndex("GET_PARAM", v.Index)...)
	case Param:
		errors = append(errors, validateIndex("PARAM", v.Index)...)
	case DisableGenerator:
		errors = append(errors, validateIndex("DISABLE_GENERATOR", v.Index)...)
	case EnableGenerator:
		errors = append(errors, validateEnableGenerator(v)...)
	case StartGenerators:
		if v.FPS == 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: "START_GENERATORS with fps=0",
				Details: map[string]interface{}{"fps": v.FPS},
			})
		}
	case Params:
		errors = append(errors, validateParams(v)...)
	case Unknown:
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownOpcode,
			Message: fmt.Sprintf("Unknown or truncated packet opcode=0x%X len=%d", uint8(v.RawOpcode()), len(v.Raw)),
			Details: map[string]interface{}{"opcode": uint8(v.RawOpcode()), "length": len(v.Raw)},
		})
	}

	return errors
}

func validateIndex(name string, index uint8) []ValidationError {
	if int(index) < MaxParams {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyInvalidIndex,
		Message: fmt.Sprintf("%s index=%d out of range (max %d)", name, index, MaxParams-1),
		Details: map[string]interface{}{"index": index, "max": MaxParams - 1},
	}}
}

// validateEnableGenerator validates ENABLE_GENERATOR packet
func validateEnableGenerator(v EnableGenerator) []ValidationError {
	errors := validateIndex("ENABLE_GENERATOR", v.Index)

	if v.Period == 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: "ENABLE_GENERATOR with period=0 (treated as every frame)",
			Details: map[string]interface{}{"period": v.Period},
		})
	}
	if v.Bounce == 1 && v.Step != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: "ENABLE_GENERATOR bounce=1 replaces every generated value",
			Details: map[string]interface{}{"bounce": v.Bounce, "step": v.Step},
		})
	}

	return errors
}

// validateParams validates PARAMS packet
func validateParams(v Params) []ValidationError {
	if len(v.Values) == 0 {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: "PARAMS carries no values",
			Details: map[string]interface{}{"count": 0},
		}}
	}
	if len(v.Values) > MaxParams {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("PARAMS count=%d exceeds max %d", len(v.Values), MaxParams),
			Details: map[string]interface{}{"count": len(v.Values), "max": MaxParams},
		}}
	}
	return nil
}
