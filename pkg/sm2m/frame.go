// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sm2m

// Sanitize keeps a parameter value from being mistaken for the marker.
func Sanitize(v uint16) uint16 {
	if v == Marker {
		return Marker ^ 1
	}
	return v
}

// AppendFrame appends the marker and the sanitized values to dst.
func AppendFrame(dst []uint16, values ...uint16) []uint16 {
	dst = append(dst, Marker)
	for _, v := range values {
		dst = append(dst, Sanitize(v))
	}
	return dst
}
