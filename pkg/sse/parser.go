package sse

import (
	"bytes"
	"strings"
)

// retainLimit caps the capacity kept by an empty parser buffer so a single
// oversized frame does not pin its backing array for the life of the stream.
const retainLimit = 64 * 1024

var (
	keepAlive  = []byte(KeepAlive)
	terminator = []byte("\n\n")
)

// FrameParser incrementally reassembles SSE frames from arbitrarily split
// chunks.
//
// ┌──────────────┐   ┌─────────────────────┐   ┌──────────────────┐
// │ raw chunk    │──▶│ leftover + chunk    │──▶│ complete frames  │
// └──────────────┘   │ (keep-alives gone)  │   └──────────────────┘
//                    └─────────────────────┘
//                              │
//                              ▼
//                    ┌─────────────────────┐
//                    │ new leftover        │
//                    └─────────────────────┘
//
// The parser tracks how far it has already scanned, so the work done per
// Feed is bounded by the size of the new chunk rather than by everything
// buffered so far. A FrameParser is not safe for concurrent use; each
// stream owns its own.
type FrameParser struct {
	// buf is the leftover: bytes that do not yet form a complete frame.
	buf []byte

	// clean is the length of the buf prefix known to contain no keep-alive.
	clean int

	// scanned is the offset in buf where the next terminator search resumes.
	scanned int

	keepAlives int
}

// NewFrameParser returns an empty FrameParser.
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Feed appends chunk to the leftover, strips keep-alive sentinels and
// returns every frame completed by this chunk, in stream order. Blocks
// that complete without any "data:" line are consumed silently.
//
// An empty chunk, or one that only extends a partial frame, returns no
// frames.
func (p *FrameParser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	// A sentinel not seen before must end inside the new bytes, so it can
	// start no earlier than len(KeepAlive)-1 bytes before them.
	from := max(p.clean-len(keepAlive)+1, 0)
	buf, removed, first := stripKeepAlives(p.buf, from)
	p.buf = buf
	if removed > 0 {
		p.keepAlives += removed
		p.scanned = min(p.scanned, max(first-1, 0))
	}

	var events []Event
	start := 0
	for {
		i := bytes.Index(p.buf[p.scanned:], terminator)
		if i < 0 {
			break
		}

		end := p.scanned + i
		if ev, ok := parseFrame(p.buf[start:end]); ok {
			events = append(events, ev)
		}

		start = end + len(terminator)
		p.scanned = start
	}

	if start > 0 {
		n := copy(p.buf, p.buf[start:])
		p.buf = p.buf[:n]
		p.scanned -= start
	}

	if len(p.buf) == 0 && cap(p.buf) > retainLimit {
		p.buf = nil
	}

	// Nothing in buf[scanned:] is a terminator; keep one trailing byte in
	// range so a "\n\n" split across chunks is still found.
	p.scanned = max(p.scanned, len(p.buf)-1, 0)
	p.clean = len(p.buf)

	return events
}

// Leftover returns the buffered bytes that do not yet form a complete frame.
func (p *FrameParser) Leftover() string {
	return string(p.buf)
}

// Buffered returns the number of leftover bytes.
func (p *FrameParser) Buffered() int {
	return len(p.buf)
}

// KeepAlives returns the number of keep-alive sentinels stripped so far.
func (p *FrameParser) KeepAlives() int {
	return p.keepAlives
}

// Extract is the stateless form of FrameParser.Feed: it concatenates
// leftover and chunk, strips every keep-alive, and returns the data bodies of
// all complete frames in order together with the new leftover.
func Extract(leftover, chunk string) ([]string, string) {
	p := &FrameParser{buf: []byte(leftover)}

	events := p.Feed([]byte(chunk))
	frames := make([]string, 0, len(events))
	for _, ev := range events {
		frames = append(frames, ev.Data)
	}

	return frames, p.Leftover()
}

// stripKeepAlives removes every keep-alive sentinel in buf at or after from,
// in place. Removing one sentinel can join the bytes around it into another,
// so the search backs up after each removal. Returns the shortened buffer,
// the number of sentinels removed and the lowest offset a removal happened
// at.
func stripKeepAlives(buf []byte, from int) ([]byte, int, int) {
	removed, first := 0, -1

	for {
		i := bytes.Index(buf[from:], keepAlive)
		if i < 0 {
			return buf, removed, first
		}

		at := from + i
		buf = append(buf[:at], buf[at+len(keepAlive):]...)
		removed++
		if first < 0 || at < first {
			first = at
		}

		from = max(at-len(keepAlive)+1, 0)
	}
}

// parseFrame turns one blank-line delimited block into an Event.
// Per the SSE spec, a line has the form "field:value" where the first space
// after the colon is optional and stripped if present. Returns false when the
// block holds no "data:" line.
func parseFrame(block []byte) (Event, bool) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)

	for line := range strings.SplitSeq(string(block), "\n") {
		line = strings.TrimSuffix(line, "\r")

		// Blank lines and comments carry nothing.
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		default:
			// "retry" and unknown fields are ignored per the SSE spec.
		}
	}

	if !hasData {
		return Event{}, false
	}

	ev.Data = data.String()
	return ev, true
}
