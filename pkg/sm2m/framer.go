// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sm2m

// Framer is the receive side framing state machine. It is fed one bus word
// at a time and returns a completed frame whenever one closes.
//
// Parameter count negotiation: after the first marker the framer counts
// words until the next marker. Counts above MaxParamsCount are rejected and
// the framer goes back to looking for a marker. The words seen while
// counting form a complete frame of their own and are returned when the
// closing marker arrives.
//
// A frame cut short by a marker, or words arriving where a marker was
// expected, mean the stream no longer matches the learned count. The framer
// then treats the marker as the start of a new negotiation.
type Framer struct {
	state   StateKind
	count   int
	buffer  ParamsBuffer
	overrun bool
	stats   *Statistics
	emitted uint64
}

// NewFramer creates a framer in the DetectMarker state.
func NewFramer() *Framer {
	return &Framer{state: DetectMarker}
}

// SetStatistics attaches a statistics tracker updated on every word.
func (f *Framer) SetStatistics(stats *Statistics) {
	f.stats = stats
}

// Reset returns the framer to DetectMarker and forgets the learned count.
func (f *Framer) Reset() {
	f.state = DetectMarker
	f.count = 0
	f.overrun = false
	f.buffer = ParamsBuffer{}
}

// State returns a snapshot of the current state.
func (f *Framer) State() State {
	return State{Kind: f.state, Count: f.count}
}

// Frames returns the number of frames emitted since creation.
func (f *Framer) Frames() uint64 {
	return f.emitted
}

// Advance feeds one word. It returns the completed frame and true when the
// word closes a frame.
func (f *Framer) Advance(w uint16) (ParamsBuffer, bool) {
	marker := w == Marker
	f.stats.word(marker)

	switch f.state {
	case DetectMarker:
		if marker {
			f.startCounting()
		}

	case DetectParamsCount:
		if !marker {
			f.count++
			f.buffer.Register(w)
			return ParamsBuffer{}, false
		}
		switch {
		case f.count > MaxParamsCount:
			f.stats.reject()
			f.Reset()
		case f.count == 0:
			// Back to back markers restart the negotiation
			f.startCounting()
		default:
			frame := f.buffer
			f.startReading()
			return f.emit(frame), true
		}

	case WaitForMarker:
		switch {
		case !marker:
			f.overrun = true
		case f.overrun:
			f.stats.discard()
			f.startCounting()
		default:
			f.startReading()
		}

	case ReadParams:
		if marker {
			f.stats.discard()
			f.startCounting()
			return ParamsBuffer{}, false
		}
		f.buffer.Register(w)
		if f.buffer.Full() {
			frame := f.buffer
			f.state = WaitForMarker
			return f.emit(frame), true
		}
	}

	return ParamsBuffer{}, false
}

// Feed advances over all words and calls fn for every completed frame.
func (f *Framer) Feed(words []uint16, fn func(ParamsBuffer)) {
	for _, w := range words {
		if frame, ok := f.Advance(w); ok && fn != nil {
			fn(frame)
		}
	}
}

func (f *Framer) startCounting() {
	f.state = DetectParamsCount
	f.count = 0
	f.overrun = false
	f.buffer = NewParamsBuffer(MaxParamsCount)
}

func (f *Framer) startReading() {
	f.state = ReadParams
	f.overrun = false
	f.buffer = NewParamsBuffer(f.count)
}

func (f *Framer) emit(frame ParamsBuffer) ParamsBuffer {
	frame.count = frame.cursor
	f.emitted++
	f.stats.frame()
	return frame
}
