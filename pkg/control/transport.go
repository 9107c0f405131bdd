// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import (
	"errors"
	"runtime"
)

var (
	// ErrWouldBlock is returned by a Transport that cannot accept or supply a
	// packet right now.
	ErrWouldBlock = errors.New("control: operation would block")
	// ErrClosed is returned by a closed transport or pipe end.
	ErrClosed = errors.New("control: transport closed")
)

// Transport is the device side of the USB control channel. All methods are
// non-blocking.
type Transport interface {
	// Poll reports whether a packet is waiting to be read.
	Poll() bool
	// Read copies one packet into p.
	Read(p []byte) (int, error)
	// Write queues packet bytes for the host.
	Write(p []byte) (int, error)
}

// WriteAll retries would-block and short writes until the whole buffer has
// been accepted. It returns early only on a hard error.
func WriteAll(t Transport, buf []byte) error {
	_, err := WriteAllCounting(t, buf)
	return err
}

// WriteAllCounting is WriteAll that also reports how many writes had to be
// retried.
func WriteAllCounting(t Transport, buf []byte) (uint64, error) {
	var retries uint64
	for len(buf) > 0 {
		n, err := t.Write(buf)
		if errors.Is(err, ErrWouldBlock) {
			retries++
			runtime.Gosched()
			continue
		}
		if err != nil {
			return retries, err
		}
		if n < len(buf) {
			retries++
		}
		buf = buf[n:]
	}
	return retries, nil
}

// ReadPacket reads one packet if one is waiting, ErrWouldBlock otherwise.
func ReadPacket(t Transport, buf []byte) (int, error) {
	if !t.Poll() {
		return 0, ErrWouldBlock
	}
	return t.Read(buf)
}

// WriteResponse encodes a response into a stack buffer and writes it with
// WriteAllCounting.
func WriteResponse(t Transport, r Response) (uint64, error) {
	var buf [MaxPacketSize]byte
	return WriteAllCounting(t, AppendEncode(buf[:0], r))
}
