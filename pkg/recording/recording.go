// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package recording stores captured parameter frames as a CBOR sequence: one
// header item followed by one item per frame.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// FormatVersion is written into every header.
const FormatVersion = 1

var (
	// ErrUnsupportedVersion is returned for recordings of another format.
	ErrUnsupportedVersion = errors.New("unsupported recording version")
	// ErrInvalidRecord is returned for frame records that cannot be replayed.
	ErrInvalidRecord = errors.New("invalid frame record")
)

// Header opens a recording.
type Header struct {
	Version uint8     `cbor:"1,keyasint"`
	Session uuid.UUID `cbor:"2,keyasint"`
	Device  string    `cbor:"3,keyasint"`
	Started time.Time `cbor:"4,keyasint"`
	Note    string    `cbor:"5,keyasint,omitempty"`
}

// NewHeader creates a header with a fresh session id.
func NewHeader(device string, started time.Time) Header {
	return Header{
		Version: FormatVersion,
		Session: uuid.New(),
		Device:  device,
		Started: started,
	}
}

// Record is one captured frame.
type Record struct {
	// Offset from Header.Started
	Offset time.Duration `cbor:"1,keyasint"`
	Values []uint16      `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Writer appends frames to a recording.
type Writer struct {
	enc    *cbor.Encoder
	header Header
	now    func() time.Time
	count  uint64
}

// NewWriter writes the header to w.
func NewWriter(w io.Writer, header Header) (*Writer, error) {
	if header.Version == 0 {
		header.Version = FormatVersion
	}
	enc := encMode.NewEncoder(w)
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &Writer{enc: enc, header: header, now: time.Now}, nil
}

// Header returns the header written by NewWriter.
func (w *Writer) Header() Header { return w.header }

// Count returns the number of frames written.
func (w *Writer) Count() uint64 { return w.count }

// Write records a frame captured now.
func (w *Writer) Write(values []uint16) error {
	return w.WriteAt(w.now().Sub(w.header.Started), values)
}

// WriteAt records a frame captured at offset.
func (w *Writer) WriteAt(offset time.Duration, values []uint16) error {
	if len(values) == 0 || len(values) > control.MaxParams {
		return fmt.Errorf("%w: %d values", ErrInvalidRecord, len(values))
	}
	if err := w.enc.Encode(Record{Offset: offset, Values: values}); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	w.count++
	return nil
}

// Reader reads frames back.
type Reader struct {
	dec    *cbor.Decoder
	header Header
	last   time.Duration
}

// NewReader reads and checks the header.
func NewReader(r io.Reader) (*Reader, error) {
	dec := decMode.NewDecoder(r)
	var header Header
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	return &Reader{dec: dec, header: header}, nil
}

// Header returns the recording header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next frame, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read frame: %w", err)
	}
	if len(rec.Values) == 0 || len(rec.Values) > control.MaxParams {
		return Record{}, fmt.Errorf("%w: %d values", ErrInvalidRecord, len(rec.Values))
	}
	if rec.Offset < r.last {
		return Record{}, fmt.Errorf("%w: offset %v before %v", ErrInvalidRecord, rec.Offset, r.last)
	}
	r.last = rec.Offset
	return rec, nil
}

// Replay calls fn for every remaining frame, spaced by the recorded offsets
// divided by speed. A speed of zero or less replays without delay.
func (r *Reader) Replay(ctx context.Context, speed float64, fn func(Record) error) error {
	start := time.Now()
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if speed > 0 {
			due := start.Add(time.Duration(float64(rec.Offset) / speed))
			if wait := time.Until(due); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
}

// File is a recording being written to disk.
type File struct {
	*Writer
	f *os.File
}

// Create creates a recording file.
func Create(path string, header Header) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	w, err := NewWriter(f, header)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Writer: w, f: f}, nil
}

// Close syncs and closes the file.
func (f *File) Close() error {
	if err := f.f.Sync(); err != nil {
		f.f.Close()
		return err
	}
	return f.f.Close()
}

// Open opens a recording file for reading. The caller closes the returned
// file.
func Open(path string) (*Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open recording: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, f, nil
}
